package providers

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-ortdetect/inference"
)

// ErrSessionClosed is returned by Run after Close.
var ErrSessionClosed = errors.New("session closed")

var (
	envMu    sync.Mutex
	envReady bool
)

// Options configures a Session.
type Options struct {
	// LibraryPath is the ONNX Runtime shared library. Empty selects DefaultLibraryPath.
	LibraryPath string
	// ModelPath is the ONNX model file.
	ModelPath string
	// InputNames and OutputNames name the graph nodes. Empty lists are read from the model.
	InputNames  []string
	OutputNames []string
	// InputWidth and InputHeight fill dynamic spatial dimensions of the NHWC input.
	InputWidth  int
	InputHeight int
	// Backend selects the execution provider.
	Backend ProviderBackend
	// Optimization is the graph optimization level.
	Optimization OptimizationLevel
	// IntraOpThreads and InterOpThreads bound the runtime thread pools; zero keeps the defaults.
	IntraOpThreads int
	InterOpThreads int
	// Provider specific settings, used when Backend selects them.
	CUDA     CUDAOptions
	CoreML   CoreMLOptions
	OpenVINO OpenVINOOptions
}

// Session runs a model through ONNX Runtime. It implements inference.Runner.
type Session struct {
	mu          sync.Mutex
	session     *ort.DynamicAdvancedSession
	inputShape  ort.Shape
	inputNames  []string
	outputNames []string
}

var _ inference.Runner = (*Session)(nil)

// NewSession loads a model and prepares it for repeated single-frame inference.
//
// Order of operations:
//  1. Library path check: the shared library must exist before the runtime is loaded.
//  2. Environment setup: done once per process.
//  3. Node discovery: input and output names and the input shape are read from the model.
//  4. Session options: threading, optimization level and execution provider.
//  5. Session creation.
//
// Arguments:
//   - opts: The session options.
//
// Returns:
//   - *Session: The session; the caller must Close it.
//   - error: An error if the library, model or provider cannot be loaded.
func NewSession(opts Options) (*Session, error) {
	if opts.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if opts.InputWidth <= 0 || opts.InputHeight <= 0 {
		return nil, errors.Errorf("input size %dx%d", opts.InputWidth, opts.InputHeight)
	}

	libPath := opts.LibraryPath
	if libPath == "" {
		libPath = DefaultLibraryPath()
	}
	if _, err := os.Stat(libPath); err != nil {
		return nil, errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}
	if err := initEnvironment(libPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading model %s", opts.ModelPath)
	}
	if len(inputs) != 1 {
		return nil, errors.Errorf("model %s has %d inputs, want 1", opts.ModelPath, len(inputs))
	}
	inputShape, err := resolveInputShape(inputs[0].Dimensions, opts.InputWidth, opts.InputHeight)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s input %q", opts.ModelPath, inputs[0].Name)
	}

	inputNames := opts.InputNames
	if len(inputNames) == 0 {
		inputNames = []string{inputs[0].Name}
	}
	outputNames := opts.OutputNames
	if len(outputNames) == 0 {
		for _, o := range outputs {
			outputNames = append(outputNames, o.Name)
		}
	}

	options, err := newSessionOptions(opts)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(opts.ModelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	return &Session{
		session:     session,
		inputShape:  inputShape,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// InputShape returns the NHWC shape of the tensor Run expects.
func (s *Session) InputShape() []int64 {
	return append([]int64(nil), s.inputShape...)
}

// OutputNames returns the output nodes in the order Run returns them.
func (s *Session) OutputNames() []string {
	return append([]string(nil), s.outputNames...)
}

// Run executes the model on one normalized NHWC frame.
//
// Arguments:
//   - ctx: Checked before inference starts; a running inference is not interrupted.
//   - input: Exactly InputShape's element count of float32 values.
//
// Returns:
//   - []inference.Tensor: One tensor per output node, copied out of native memory.
//   - error: An error if the session is closed, the input has the wrong size or inference fails.
func (s *Session) Run(ctx context.Context, input []float32) ([]inference.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, ErrSessionClosed
	}
	if want := inference.ElementCount(s.inputShape); len(input) != want {
		return nil, errors.Errorf("input holds %d values, want %d for shape %v", len(input), want, s.inputShape)
	}

	in, err := ort.NewTensor(s.inputShape, input)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	defer in.Destroy()

	// Nil outputs are allocated by the runtime.
	outputs := make([]ort.Value, len(s.outputNames))
	if err := s.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, errors.Wrap(err, "error running ORT session")
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	result := make([]inference.Tensor, len(outputs))
	for i, v := range outputs {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, errors.Errorf("output %q has unsupported type %T", s.outputNames[i], v)
		}
		result[i] = inference.Tensor{
			Shape: append([]int64(nil), t.GetShape()...),
			Data:  append([]float32(nil), t.GetData()...),
		}
	}
	return result, nil
}

// Close releases the native session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	if err != nil {
		return errors.Wrap(err, "error destroying ORT session")
	}
	return nil
}

func initEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envReady {
		return nil
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	if err := ort.SetEnvironmentLogLevel(ort.LoggingLevelWarning); err != nil {
		return errors.Wrap(err, "error setting ORT log level")
	}
	envReady = true
	return nil
}

func newSessionOptions(opts Options) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	if err := configureSessionOptions(options, opts); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func configureSessionOptions(options *ort.SessionOptions, opts Options) error {
	if opts.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return errors.Wrap(err, "error setting intra-op threads")
		}
	}
	if opts.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(opts.InterOpThreads); err != nil {
			return errors.Wrap(err, "error setting inter-op threads")
		}
	}
	if err := options.SetGraphOptimizationLevel(opts.Optimization.Native()); err != nil {
		return errors.Wrap(err, "error setting graph optimization level")
	}

	switch opts.Backend {
	case "", CPUProviderBackend:
	case CUDAProviderBackend:
		cuda, err := opts.CUDA.ToNativeProviderOptions()
		if err != nil {
			return errors.Wrap(err, "error converting CUDA options")
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "error enabling CUDA")
		}
	case CoreMLProviderBackend:
		if err := options.AppendExecutionProviderCoreML(opts.CoreML.Flags()); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case OpenVINOProviderBackend:
		if err := options.AppendExecutionProviderOpenVINO(opts.OpenVINO.Map()); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	default:
		return errors.Errorf("unsupported execution provider %q", opts.Backend)
	}
	return nil
}

// resolveInputShape fixes the dynamic dimensions of an NHWC input: batch becomes 1, height and
// width come from the configuration and channels must be 3.
func resolveInputShape(dims []int64, width, height int) (ort.Shape, error) {
	if len(dims) != 4 {
		return nil, errors.Errorf("input has rank %d, want NHWC", len(dims))
	}
	want := []int64{1, int64(height), int64(width), 3}
	shape := make(ort.Shape, 4)
	for i, d := range dims {
		switch {
		case d < 0:
			shape[i] = want[i]
		case d != want[i]:
			return nil, errors.Errorf("input shape %v does not match %v", dims, want)
		default:
			shape[i] = d
		}
	}
	return shape, nil
}
