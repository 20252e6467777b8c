package inference

import (
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Runner owns one loaded model and its fixed buffers. A Runner is not safe for concurrent
// Invoke calls; concurrent misuse is rejected with ErrRunnerBusy.
type Runner struct {
	path   string
	graph  Graph
	arena  *arena
	logger *zap.Logger

	// invoking is held for the whole of an Invoke; Close acquires it to wait one out.
	invoking  sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

type runnerOptions struct {
	logger     *zap.Logger
	seed       int64
	warmupRuns int
}

// Option configures Load.
type Option func(*runnerOptions)

// WithLogger sets the logger used for load and shutdown messages.
func WithLogger(logger *zap.Logger) Option {
	return func(o *runnerOptions) {
		o.logger = logger
	}
}

// WithWarmupSeed fixes the warmup noise so loads are reproducible.
func WithWarmupSeed(seed int64) Option {
	return func(o *runnerOptions) {
		o.seed = seed
	}
}

// WithWarmupRuns sets how many warmup inferences Load performs. At least one always runs.
func WithWarmupRuns(n int) Option {
	return func(o *runnerOptions) {
		o.warmupRuns = n
	}
}

// Load opens the model at modelPath, records its input and output tensors, and runs a warmup
// inference on random inputs. A failed warmup fails the load and releases everything.
//
// Arguments:
//   - modelPath: The serialized model artifact.
//   - opener: The backend that turns the artifact into an executable Graph.
//   - opts: Load options.
//
// Returns:
//   - *Runner: The ready runner.
//   - error: A *LoadError on any failure.
func Load(modelPath string, opener Opener, opts ...Option) (*Runner, error) {
	o := runnerOptions{
		logger:     zap.NewNop(),
		seed:       time.Now().UnixNano(),
		warmupRuns: 1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.warmupRuns < 1 {
		o.warmupRuns = 1
	}
	name := filepath.Base(modelPath)
	logger := o.logger.With(zap.String("model", name))

	if _, err := os.Stat(modelPath); err != nil {
		return nil, &LoadError{Path: modelPath, Op: "stat", Err: err}
	}

	logger.Info("loading model engine", zap.String("path", modelPath))
	graph, err := opener.Open(modelPath)
	if err != nil {
		return nil, &LoadError{Path: modelPath, Op: "open", Err: err}
	}

	a, err := newArena(graph.Inputs(), graph.Outputs())
	if err != nil {
		_ = graph.Close()
		return nil, &LoadError{Path: modelPath, Op: "buffers", Err: err}
	}

	r := &Runner{
		path:   modelPath,
		graph:  graph,
		arena:  a,
		logger: logger,
	}

	rng := rand.New(rand.NewSource(o.seed))
	for i := 0; i < o.warmupRuns; i++ {
		for _, b := range a.inputs {
			b.Randomize(rng)
		}
		if err := r.run(); err != nil {
			_ = r.Close()
			return nil, &LoadError{Path: modelPath, Op: "warmup", Err: err}
		}
	}

	for _, b := range a.inputs {
		logger.Debug("input tensor",
			zap.String("name", b.info.Name),
			zap.Int64s("shape", b.info.Shape),
			zap.Stringer("dtype", b.info.DType))
	}
	for _, b := range a.outputs {
		logger.Debug("output tensor",
			zap.String("name", b.info.Name),
			zap.Int64s("shape", b.info.Shape),
			zap.Stringer("dtype", b.info.DType))
	}
	logger.Info("model engine loaded",
		zap.Int("inputs", len(a.inputs)),
		zap.Int("outputs", len(a.outputs)),
		zap.Int("warmup_runs", o.warmupRuns))

	return r, nil
}

// Inputs describes the model inputs in declaration order.
func (r *Runner) Inputs() []TensorInfo {
	return infos(r.arena.inputs)
}

// Outputs describes the model outputs in declaration order.
func (r *Runner) Outputs() []TensorInfo {
	return infos(r.arena.outputs)
}

// Invoke runs one inference. Inputs are matched to model inputs by name when named, by
// position otherwise, and must match each input's element type and flattened element count.
//
// The output tensors passed to use are views of the runner's host buffers. They are valid only
// until use returns and are overwritten by the next Invoke; use must copy anything it keeps.
//
// Arguments:
//   - inputs: One tensor per model input.
//   - use: Consumer of the outputs, called once after the inference completes.
//
// Returns:
//   - error: An *InvalidInputError for mismatched inputs, a wrapped backend error, or the error
//     returned by use.
func (r *Runner) Invoke(inputs []Tensor, use func(outputs []Tensor) error) error {
	if r.closed.Load() {
		return ErrRunnerClosed
	}
	if !r.invoking.TryLock() {
		return ErrRunnerBusy
	}
	defer r.invoking.Unlock()
	if r.closed.Load() {
		return ErrRunnerClosed
	}

	targets, err := r.match(inputs)
	if err != nil {
		return err
	}
	for i, t := range inputs {
		if err := targets[i].CopyFrom(t); err != nil {
			return err
		}
	}

	if err := r.run(); err != nil {
		return err
	}

	if use == nil {
		return nil
	}
	outputs := make([]Tensor, len(r.arena.outputs))
	for i, b := range r.arena.outputs {
		outputs[i] = b.Tensor()
	}
	return use(outputs)
}

// InvokeCopy runs one inference and returns copies of the outputs that the caller owns.
func (r *Runner) InvokeCopy(inputs []Tensor) ([]Tensor, error) {
	var out []Tensor
	err := r.Invoke(inputs, func(outputs []Tensor) error {
		out = make([]Tensor, len(outputs))
		for i, t := range outputs {
			out[i] = t.Clone()
		}
		return nil
	})
	return out, err
}

// match resolves every input tensor to its buffer and validates it before any copy happens.
func (r *Runner) match(inputs []Tensor) ([]*Buffer, error) {
	if len(inputs) != len(r.arena.inputs) {
		return nil, &InvalidInputError{
			Expected: int64(len(r.arena.inputs)),
			Got:      int64(len(inputs)),
			Reason:   "input tensor count mismatch",
		}
	}
	targets := make([]*Buffer, len(inputs))
	seen := make(map[*Buffer]bool, len(inputs))
	for i, t := range inputs {
		b := r.arena.inputs[i]
		if t.Name != "" {
			named, ok := r.arena.byName[t.Name]
			if !ok || named.info.Role != RoleInput {
				return nil, &InvalidInputError{Tensor: t.Name, Reason: "not a model input"}
			}
			b = named
		}
		if seen[b] {
			return nil, &InvalidInputError{Tensor: b.info.Name, Reason: "input given twice"}
		}
		seen[b] = true
		if err := b.accepts(t); err != nil {
			return nil, err
		}
		targets[i] = b
	}
	return targets, nil
}

// run performs one inference over whatever is in the input buffers.
func (r *Runner) run() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"upload", r.graph.Upload},
		{"bind", r.graph.Bind},
		{"execute", r.graph.Execute},
		{"download", r.graph.Download},
	}
	var enqueueErr error
	for _, step := range steps {
		if err := step.fn(); err != nil {
			enqueueErr = errors.Wrapf(err, "%s", step.name)
			break
		}
	}
	// Drain the stream even after a failed enqueue so no work is left in flight.
	if err := r.graph.Synchronize(); err != nil && enqueueErr == nil {
		return errors.Wrap(err, "synchronize")
	}
	return enqueueErr
}

// Close releases the model and all of its buffers, after any Invoke in progress has returned.
// It is safe to call more than once.
func (r *Runner) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.invoking.Lock()
		defer r.invoking.Unlock()
		r.closeErr = r.graph.Close()
		if r.closeErr != nil {
			r.logger.Error("failed to release model engine", zap.Error(r.closeErr))
			return
		}
		r.logger.Info("model engine released")
	})
	return r.closeErr
}
