package providers

import (
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// OptimizationLevel names an ONNX Runtime graph optimization level.
type OptimizationLevel string

const (
	// OptimizationDisableAll disables all graph rewrites.
	OptimizationDisableAll OptimizationLevel = "disable_all"
	// OptimizationBasic enables semantics-preserving rewrites such as constant folding.
	OptimizationBasic OptimizationLevel = "basic"
	// OptimizationExtended adds node fusions.
	OptimizationExtended OptimizationLevel = "extended"
	// OptimizationAll adds layout optimizations.
	OptimizationAll OptimizationLevel = "all"
)

// ParseOptimizationLevel parses a level name. The empty string selects OptimizationExtended.
func ParseOptimizationLevel(s string) (OptimizationLevel, error) {
	switch l := OptimizationLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return OptimizationExtended, nil
	case OptimizationDisableAll, OptimizationBasic, OptimizationExtended, OptimizationAll:
		return l, nil
	default:
		return "", errors.Errorf("unsupported graph optimization level %q", s)
	}
}

// Native returns the ONNX Runtime constant for the level.
func (l OptimizationLevel) Native() ort.GraphOptimizationLevel {
	switch l {
	case OptimizationDisableAll:
		return ort.GraphOptimizationLevelDisableAll
	case OptimizationBasic:
		return ort.GraphOptimizationLevelEnableBasic
	case OptimizationAll:
		return ort.GraphOptimizationLevelEnableAll
	default:
		return ort.GraphOptimizationLevelEnableExtended
	}
}
