package providers

// CoreML provider flags, as defined by coreml_provider_factory.h.
const (
	coreMLFlagUseCPUOnly                = 0x001
	coreMLFlagEnableOnSubgraph          = 0x002
	coreMLFlagOnlyEnableDeviceWithANE   = 0x004
	coreMLFlagOnlyAllowStaticInputShape = 0x008
	coreMLFlagCreateMLProgram           = 0x010
)

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// Limit CoreML to running on CPU only.
	CPUOnly bool `toml:"cpu_only"`
	// Enable CoreML EP to run on a subgraph in the body of a control flow operator.
	EnableOnSubgraphs bool `toml:"enable_on_subgraphs"`
	// Only enable the provider on devices with an Apple Neural Engine.
	RequireANE bool `toml:"require_ane"`
	// Only allow the provider to take nodes with inputs that have static shapes.
	RequireStaticInputShapes bool `toml:"require_static_input_shapes"`
	// Create an MLProgram format model. Requires Core ML 5 or later.
	MLProgram bool `toml:"ml_program"`
}

// Flags returns the options as the CoreML provider flag word.
func (o CoreMLOptions) Flags() uint32 {
	var flags uint32
	if o.CPUOnly {
		flags |= coreMLFlagUseCPUOnly
	}
	if o.EnableOnSubgraphs {
		flags |= coreMLFlagEnableOnSubgraph
	}
	if o.RequireANE {
		flags |= coreMLFlagOnlyEnableDeviceWithANE
	}
	if o.RequireStaticInputShapes {
		flags |= coreMLFlagOnlyAllowStaticInputShape
	}
	if o.MLProgram {
		flags |= coreMLFlagCreateMLProgram
	}
	return flags
}
