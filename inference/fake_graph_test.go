package inference

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeGraph stages data the way a device backend does: Upload snapshots host inputs, Execute
// computes device outputs, Download copies them back to host memory.
type fakeGraph struct {
	inputs  []*Buffer
	outputs []*Buffer

	device    []any
	deviceOut []any
	compute   func(in []any, out []any) error

	calls      []string
	failOn     string
	closeCalls int
}

func newFakeGraph(t *testing.T, in, out []TensorInfo, compute func(in, out []any) error) *fakeGraph {
	t.Helper()
	g := &fakeGraph{compute: compute}
	for _, info := range in {
		info.Role = RoleInput
		b, err := AllocBuffer(info)
		require.NoError(t, err)
		g.inputs = append(g.inputs, b)
	}
	for _, info := range out {
		info.Role = RoleOutput
		b, err := AllocBuffer(info)
		require.NoError(t, err)
		g.outputs = append(g.outputs, b)
		dev, err := makeData(info.DType, b.Len())
		require.NoError(t, err)
		g.deviceOut = append(g.deviceOut, dev)
	}
	return g
}

func (g *fakeGraph) Inputs() []*Buffer  { return g.inputs }
func (g *fakeGraph) Outputs() []*Buffer { return g.outputs }

func (g *fakeGraph) step(name string) error {
	g.calls = append(g.calls, name)
	if g.failOn == name {
		return errors.Errorf("%s failed", name)
	}
	return nil
}

func (g *fakeGraph) Upload() error {
	if err := g.step("upload"); err != nil {
		return err
	}
	g.device = g.device[:0]
	for _, b := range g.inputs {
		g.device = append(g.device, b.Tensor().Clone().Data)
	}
	return nil
}

func (g *fakeGraph) Bind() error { return g.step("bind") }

func (g *fakeGraph) Execute() error {
	if err := g.step("execute"); err != nil {
		return err
	}
	if g.compute == nil {
		return nil
	}
	return g.compute(g.device, g.deviceOut)
}

func (g *fakeGraph) Download() error {
	if err := g.step("download"); err != nil {
		return err
	}
	for i, b := range g.outputs {
		reflect.Copy(reflect.ValueOf(b.Data()), reflect.ValueOf(g.deviceOut[i]))
	}
	return nil
}

func (g *fakeGraph) Synchronize() error { return g.step("synchronize") }

func (g *fakeGraph) Close() error {
	g.closeCalls++
	return nil
}

// modelFile creates an artifact path that exists on disk.
func modelFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(path, []byte("model"), 0o600))
	return path
}

func openerFor(g Graph) Opener {
	return OpenerFunc(func(string) (Graph, error) { return g, nil })
}

// doubler writes 2*x of the first float32 input into the first float32 output.
func doubler(in, out []any) error {
	src := in[0].([]float32)
	dst := out[0].([]float32)
	for i := range dst {
		dst[i] = 2 * src[i]
	}
	return nil
}
