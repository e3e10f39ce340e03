package providers

import "strconv"

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// Overrides the accelerator hardware type (CPU, GPU, NPU, ...).
	DeviceType string `toml:"device_type"`
	// Inference precision: FP32, FP16 or ACCURACY.
	Precision string `toml:"precision"`
	// Overrides the accelerator default number of threads.
	NumOfThreads int `toml:"num_of_threads"`
	// Directory for compiled blob caching.
	CacheDir string `toml:"cache_dir"`
}

// Map returns the provider options as ONNX Runtime keys, omitting unset values.
func (o OpenVINOOptions) Map() map[string]string {
	m := make(map[string]string)
	if o.DeviceType != "" {
		m["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		m["precision"] = o.Precision
	}
	if o.NumOfThreads > 0 {
		m["num_of_threads"] = strconv.Itoa(o.NumOfThreads)
	}
	if o.CacheDir != "" {
		m["cache_dir"] = o.CacheDir
	}
	return m
}
