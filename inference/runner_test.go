package inference

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	vecIn  = TensorInfo{Name: "input", Shape: Shape{1, 4}, DType: DTypeFloat32}
	vecOut = TensorInfo{Name: "output", Shape: Shape{1, 4}, DType: DTypeFloat32}
)

func loadDoubler(t *testing.T) (*Runner, *fakeGraph) {
	t.Helper()
	g := newFakeGraph(t, []TensorInfo{vecIn}, []TensorInfo{vecOut}, doubler)
	r, err := Load(modelFile(t), openerFor(g), WithWarmupSeed(1))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, g
}

func TestLoadMissingArtifact(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.engine"), openerFor(nil))

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "stat", loadErr.Op)
}

func TestLoadOpenFailure(t *testing.T) {
	opener := OpenerFunc(func(string) (Graph, error) { return nil, errors.New("corrupt engine") })
	_, err := Load(modelFile(t), opener)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "open", loadErr.Op)
	assert.Contains(t, err.Error(), "corrupt engine")
}

func TestLoadRejectsGraphWithoutOutputs(t *testing.T) {
	g := newFakeGraph(t, []TensorInfo{vecIn}, nil, nil)
	_, err := Load(modelFile(t), openerFor(g))

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "buffers", loadErr.Op)
	assert.Equal(t, 1, g.closeCalls, "partially loaded graph must be released")
}

func TestLoadWarmupRunsFullSequence(t *testing.T) {
	_, g := loadDoubler(t)
	assert.Equal(t, []string{"upload", "bind", "execute", "download", "synchronize"}, g.calls)
}

func TestLoadWarmupFailureReleasesEverything(t *testing.T) {
	g := newFakeGraph(t, []TensorInfo{vecIn}, []TensorInfo{vecOut}, doubler)
	g.failOn = "execute"

	_, err := Load(modelFile(t), openerFor(g))

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "warmup", loadErr.Op)
	assert.Equal(t, 1, g.closeCalls)
	assert.Contains(t, g.calls, "synchronize", "stream is drained after a failed enqueue")
}

func TestLoadWarmupRuns(t *testing.T) {
	g := newFakeGraph(t, []TensorInfo{vecIn}, []TensorInfo{vecOut}, doubler)
	r, err := Load(modelFile(t), openerFor(g), WithWarmupRuns(3))
	require.NoError(t, err)
	defer r.Close()

	assert.Len(t, g.calls, 15)
}

func TestInvokeComputesOutputs(t *testing.T) {
	r, _ := loadDoubler(t)

	out, err := r.InvokeCopy([]Tensor{NewTensor("", Shape{4}, []float32{1, 2, 3, 4})})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "output", out[0].Name)
	assert.Equal(t, []float32{2, 4, 6, 8}, out[0].Data)
}

func TestInvokeIsIdempotentAndReusesBuffers(t *testing.T) {
	r, _ := loadDoubler(t)
	in := []Tensor{NewTensor("input", Shape{1, 4}, []float32{0.5, -1, 3, 7})}

	var first, second []float32
	var firstPtr, secondPtr *float32
	require.NoError(t, r.Invoke(in, func(outputs []Tensor) error {
		data, _ := DataAs[float32](outputs[0])
		first = append(first, data...)
		firstPtr = &data[0]
		return nil
	}))
	require.NoError(t, r.Invoke(in, func(outputs []Tensor) error {
		data, _ := DataAs[float32](outputs[0])
		second = append(second, data...)
		secondPtr = &data[0]
		return nil
	}))

	assert.Equal(t, first, second)
	assert.Same(t, firstPtr, secondPtr, "outputs must come from the same fixed host buffer")
}

func TestInvokeCopyDoesNotAliasBuffers(t *testing.T) {
	r, _ := loadDoubler(t)

	a, err := r.InvokeCopy([]Tensor{NewTensor("", Shape{4}, []float32{1, 1, 1, 1})})
	require.NoError(t, err)
	_, err = r.InvokeCopy([]Tensor{NewTensor("", Shape{4}, []float32{5, 5, 5, 5})})
	require.NoError(t, err)

	assert.Equal(t, []float32{2, 2, 2, 2}, a[0].Data)
}

func TestInvokeRejectsInvalidInputs(t *testing.T) {
	r, g := loadDoubler(t)
	before := len(g.calls)

	tests := []struct {
		name   string
		inputs []Tensor
	}{
		{"no inputs", nil},
		{"too many inputs", []Tensor{
			NewTensor("", Shape{4}, make([]float32, 4)),
			NewTensor("", Shape{4}, make([]float32, 4)),
		}},
		{"element count", []Tensor{NewTensor("", Shape{5}, make([]float32, 5))}},
		{"dtype", []Tensor{NewTensor("", Shape{4}, make([]int32, 4))}},
		{"unknown name", []Tensor{NewTensor("image", Shape{4}, make([]float32, 4))}},
		{"output name", []Tensor{NewTensor("output", Shape{4}, make([]float32, 4))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Invoke(tt.inputs, nil)
			var invalid *InvalidInputError
			assert.ErrorAs(t, err, &invalid)
		})
	}
	assert.Len(t, g.calls, before, "invalid inputs never reach the device")
}

func TestInvokeMatchesInputsByName(t *testing.T) {
	a := TensorInfo{Name: "a", Shape: Shape{2}, DType: DTypeFloat32}
	b := TensorInfo{Name: "b", Shape: Shape{2}, DType: DTypeFloat32}
	sum := TensorInfo{Name: "sum", Shape: Shape{2}, DType: DTypeFloat32}
	g := newFakeGraph(t, []TensorInfo{a, b}, []TensorInfo{sum}, func(in, out []any) error {
		x, y, dst := in[0].([]float32), in[1].([]float32), out[0].([]float32)
		for i := range dst {
			dst[i] = x[i] - y[i]
		}
		return nil
	})
	r, err := Load(modelFile(t), openerFor(g))
	require.NoError(t, err)
	defer r.Close()

	out, err := r.InvokeCopy([]Tensor{
		NewTensor("b", Shape{2}, []float32{1, 1}),
		NewTensor("a", Shape{2}, []float32{5, 7}),
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 6}, out[0].Data)

	_, err = r.InvokeCopy([]Tensor{
		NewTensor("a", Shape{2}, []float32{1, 1}),
		NewTensor("a", Shape{2}, []float32{1, 1}),
	})
	var invalid *InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestInvokeBackendFailure(t *testing.T) {
	r, g := loadDoubler(t)
	g.failOn = "download"
	g.calls = nil

	err := r.Invoke([]Tensor{NewTensor("", Shape{4}, make([]float32, 4))}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download")
	assert.Equal(t, []string{"upload", "bind", "execute", "download", "synchronize"}, g.calls)
}

func TestInvokeRejectsReentrantUse(t *testing.T) {
	r, _ := loadDoubler(t)
	in := []Tensor{NewTensor("", Shape{4}, make([]float32, 4))}

	var inner error
	require.NoError(t, r.Invoke(in, func([]Tensor) error {
		inner = r.Invoke(in, nil)
		return nil
	}))
	assert.ErrorIs(t, inner, ErrRunnerBusy)

	assert.NoError(t, r.Invoke(in, nil), "runner is usable again once the call returns")
}

func TestCloseIsIdempotent(t *testing.T) {
	r, g := loadDoubler(t)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, g.closeCalls)

	err := r.Invoke([]Tensor{NewTensor("", Shape{4}, make([]float32, 4))}, nil)
	assert.ErrorIs(t, err, ErrRunnerClosed)
}

func TestCloseWaitsForInvokeInProgress(t *testing.T) {
	r, g := loadDoubler(t)
	in := []Tensor{NewTensor("", Shape{4}, make([]float32, 4))}

	started, release := make(chan struct{}), make(chan struct{})
	invoked := make(chan error, 1)
	go func() {
		invoked <- r.Invoke(in, func([]Tensor) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	closed := make(chan error, 1)
	go func() { closed <- r.Close() }()
	select {
	case <-closed:
		t.Fatal("Close returned while an Invoke was still using the buffers")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-invoked)
	require.NoError(t, <-closed)
	assert.Equal(t, 1, g.closeCalls)
	assert.ErrorIs(t, r.Invoke(in, nil), ErrRunnerClosed)
}

func TestRunnerDescribesTensors(t *testing.T) {
	r, _ := loadDoubler(t)

	require.Len(t, r.Inputs(), 1)
	assert.Equal(t, "input", r.Inputs()[0].Name)
	assert.Equal(t, RoleInput, r.Inputs()[0].Role)
	assert.Equal(t, int64(16), r.Outputs()[0].Bytes())
}
