// Package providers - ONNX Runtime sessions and execution provider selection.
package providers

import (
	"strings"

	"github.com/pkg/errors"
)

// ProviderBackend names an ONNX Runtime execution provider.
type ProviderBackend string

const (
	// CPUProviderBackend runs on the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
	// CUDAProviderBackend uses NVIDIA CUDA for GPU acceleration.
	CUDAProviderBackend ProviderBackend = "cuda"
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// ParseBackend parses a backend name. The empty string selects the CPU provider.
func ParseBackend(s string) (ProviderBackend, error) {
	switch b := ProviderBackend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return CPUProviderBackend, nil
	case CPUProviderBackend, CUDAProviderBackend, CoreMLProviderBackend, OpenVINOProviderBackend:
		return b, nil
	default:
		return "", errors.Errorf("unsupported execution provider %q", s)
	}
}
