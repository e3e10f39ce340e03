package providers

import (
	"os"
	"runtime"
)

// LibraryPathEnv overrides the default shared library location.
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// DefaultLibraryPath returns the ONNX Runtime shared library to load when none is configured:
// the LibraryPathEnv variable if set, otherwise a platform specific file under ./third_party.
func DefaultLibraryPath() string {
	if p := os.Getenv(LibraryPathEnv); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}
