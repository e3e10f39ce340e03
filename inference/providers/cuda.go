package providers

import (
	"strconv"

	ort "github.com/yalue/onnxruntime_go"
)

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `toml:"device_id"`
	// The size limit of the device memory arena in bytes. Zero leaves the runtime default.
	GPUMemLimit int64 `toml:"gpu_mem_limit"`
	// The strategy for extending the device memory arena: kNextPowerOfTwo or kSameAsRequested.
	ArenaExtendStrategy string `toml:"arena_extend_strategy"`
	// The type of search done for cuDNN convolution algorithms: EXHAUSTIVE, HEURISTIC or DEFAULT.
	CudnnConvAlgoSearch string `toml:"cudnn_conv_algo_search"`
	// Prefer NHWC operators over NCHW. Matches the layout of the frames fed to YOLOv4 exports.
	PreferNHWC bool `toml:"prefer_nhwc"`
}

// Map returns the provider options as ONNX Runtime keys. Unset values are omitted so the runtime
// defaults apply.
func (o CUDAOptions) Map() map[string]string {
	m := map[string]string{
		"device_id": strconv.Itoa(o.DeviceID),
	}
	if o.GPUMemLimit > 0 {
		m["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}
	if o.ArenaExtendStrategy != "" {
		m["arena_extend_strategy"] = o.ArenaExtendStrategy
	}
	if o.CudnnConvAlgoSearch != "" {
		m["cudnn_conv_algo_search"] = o.CudnnConvAlgoSearch
	}
	if o.PreferNHWC {
		m["prefer_nhwc"] = "1"
	}
	return m
}

// ToNativeProviderOptions converts the CUDA options to native provider options. The caller must
// Destroy the result.
func (o CUDAOptions) ToNativeProviderOptions() (*ort.CUDAProviderOptions, error) {
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, err
	}
	if err := opts.Update(o.Map()); err != nil {
		opts.Destroy()
		return nil, err
	}
	return opts, nil
}
