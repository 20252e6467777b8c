package inference

import (
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-perception/inference/providers"
)

// ONNXOpener opens models with ONNX Runtime. Device placement, device buffers and the stream are
// owned by the configured execution provider; with CUDA or TensorRT, unless SeparateCopyStreams
// is set, every copy and kernel of one Run is ordered on a single stream.
type ONNXOpener struct {
	Providers providers.Config
	Logger    *zap.Logger
}

// Open implements Opener.
//
// Order of operations:
//  1. Environment setup: loads the native library once per process.
//  2. Tensor enumeration: every input and output must be a tensor with a fixed shape.
//  3. Tensor allocation: one host tensor per model tensor, reused for every inference.
//  4. Session options: threading, graph optimization and the execution provider.
//  5. Session creation: binds the preallocated tensors to the model.
//
// Anything allocated before a failing step is released before Open returns.
func (o ONNXOpener) Open(modelPath string) (Graph, error) {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := providers.InitEnvironment(providers.SharedLibPath(o.Providers.SharedLibraryPath)); err != nil {
		return nil, err
	}

	inInfo, outInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading model inputs and outputs")
	}

	g := &onnxGraph{logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = g.Close()
		}
	}()

	inNames := make([]string, 0, len(inInfo))
	for _, info := range inInfo {
		if err := g.addTensor(info, RoleInput); err != nil {
			return nil, err
		}
		inNames = append(inNames, info.Name)
	}
	outNames := make([]string, 0, len(outInfo))
	for _, info := range outInfo {
		if err := g.addTensor(info, RoleOutput); err != nil {
			return nil, err
		}
		outNames = append(outNames, info.Name)
	}

	options, err := providers.NewSessionOptions(o.Providers)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(modelPath, inNames, outNames, g.inValues, g.outValues, options)
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session")
	}
	g.session = session

	logger.Debug("onnx session created",
		zap.String("provider", string(o.Providers.Backend)),
		zap.Strings("inputs", inNames),
		zap.Strings("outputs", outNames))

	ok = true
	return g, nil
}

// onnxGraph runs an AdvancedSession on a single execution queue. Run performs the upload,
// kernel launches and download on the provider stream and returns once they complete; it is
// launched asynchronously by Execute and joined by Synchronize.
type onnxGraph struct {
	logger  *zap.Logger
	session *ort.AdvancedSession

	inValues  []ort.Value
	outValues []ort.Value
	inputs    []*Buffer
	outputs   []*Buffer

	mu        sync.Mutex
	pending   chan error
	closeOnce sync.Once
	closeErr  error
}

func (g *onnxGraph) addTensor(info ort.InputOutputInfo, role Role) error {
	if info.OrtValueType != ort.ONNXTypeTensor {
		return errors.Errorf("%s %q is not a tensor (%v)", role, info.Name, info.OrtValueType)
	}
	shape := Shape(info.Dimensions).Clone()
	if !shape.Fixed() {
		return errors.Errorf("%s %q has a dynamic shape %v", role, info.Name, shape)
	}
	dtype, err := fromORTType(info.DataType)
	if err != nil {
		return errors.Wrapf(err, "%s %q", role, info.Name)
	}

	value, data, err := newHostTensor(dtype, shape)
	if err != nil {
		return errors.Wrapf(err, "error allocating %s %q", role, info.Name)
	}
	buf, err := NewBuffer(TensorInfo{Name: info.Name, Shape: shape, DType: dtype, Role: role}, data)
	if err != nil {
		_ = value.Destroy()
		return err
	}

	if role == RoleInput {
		g.inValues = append(g.inValues, value)
		g.inputs = append(g.inputs, buf)
	} else {
		g.outValues = append(g.outValues, value)
		g.outputs = append(g.outputs, buf)
	}
	return nil
}

func (g *onnxGraph) Inputs() []*Buffer  { return g.inputs }
func (g *onnxGraph) Outputs() []*Buffer { return g.outputs }

// Upload is performed by the provider inside Run.
func (g *onnxGraph) Upload() error { return nil }

// Bind is a no-op; the tensors were bound when the session was created.
func (g *onnxGraph) Bind() error { return nil }

func (g *onnxGraph) Execute() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return errors.New("session is closed")
	}
	if g.pending != nil {
		return errors.New("execution already in flight")
	}
	done := make(chan error, 1)
	g.pending = done
	go func(session *ort.AdvancedSession) {
		done <- session.Run()
	}(g.session)
	return nil
}

// Download is performed by the provider inside Run.
func (g *onnxGraph) Download() error { return nil }

func (g *onnxGraph) Synchronize() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.join()
}

// join waits for the execution in flight, if any. g.mu must be held.
func (g *onnxGraph) join() error {
	if g.pending == nil {
		return nil
	}
	err := <-g.pending
	g.pending = nil
	return err
}

func (g *onnxGraph) Close() error {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		// Never tear down under a running execution.
		_ = g.join()

		var errs []error
		if g.session != nil {
			if err := g.session.Destroy(); err != nil {
				errs = append(errs, errors.Wrap(err, "error destroying ORT session"))
			}
			g.session = nil
		}
		for _, v := range append(g.inValues, g.outValues...) {
			if err := v.Destroy(); err != nil {
				errs = append(errs, errors.Wrap(err, "error destroying tensor"))
			}
		}
		g.inValues, g.outValues = nil, nil
		if len(errs) > 0 {
			g.closeErr = errs[0]
			for _, err := range errs[1:] {
				g.logger.Warn("additional release failure", zap.Error(err))
			}
		}
	})
	return g.closeErr
}

func fromORTType(t ort.TensorElementDataType) (DType, error) {
	switch t {
	case ort.TensorElementDataTypeFloat:
		return DTypeFloat32, nil
	case ort.TensorElementDataTypeDouble:
		return DTypeFloat64, nil
	case ort.TensorElementDataTypeUint8:
		return DTypeUint8, nil
	case ort.TensorElementDataTypeInt8:
		return DTypeInt8, nil
	case ort.TensorElementDataTypeUint16:
		return DTypeUint16, nil
	case ort.TensorElementDataTypeInt16:
		return DTypeInt16, nil
	case ort.TensorElementDataTypeInt32:
		return DTypeInt32, nil
	case ort.TensorElementDataTypeInt64:
		return DTypeInt64, nil
	default:
		return DTypeInvalid, errors.Errorf("unsupported element type %v", t)
	}
}

func newHostTensor(d DType, shape Shape) (ort.Value, any, error) {
	switch d {
	case DTypeFloat32:
		return allocORT[float32](shape)
	case DTypeFloat64:
		return allocORT[float64](shape)
	case DTypeUint8:
		return allocORT[uint8](shape)
	case DTypeInt8:
		return allocORT[int8](shape)
	case DTypeUint16:
		return allocORT[uint16](shape)
	case DTypeInt16:
		return allocORT[int16](shape)
	case DTypeInt32:
		return allocORT[int32](shape)
	case DTypeInt64:
		return allocORT[int64](shape)
	default:
		return nil, nil, errors.Errorf("unsupported dtype %s", d)
	}
}

func allocORT[T ort.TensorData](shape Shape) (ort.Value, any, error) {
	t, err := ort.NewEmptyTensor[T](ort.NewShape(shape...))
	if err != nil {
		return nil, nil, err
	}
	return t, t.GetData(), nil
}
