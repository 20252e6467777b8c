package recording

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-perception/images"
	"github.com/nvr-ai/go-perception/perception"
	"github.com/nvr-ai/go-perception/signals"
	"github.com/nvr-ai/go-perception/transport"
)

func encodedFrame(t *testing.T, z uint16) []byte {
	t.Helper()
	depth := images.NewDepthMap(2, 2)
	depth.Data[3] = z
	b, err := transport.EncodeFrame(perception.Frame{
		RGB:   signals.NotObserved[*images.RGB](),
		Depth: signals.Present(depth),
	})
	require.NoError(t, err)
	return b
}

func TestLoadDirectoryOrdersByFrame(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []int{10, 2, 1} {
		_, err := Save(dir, n, encodedFrame(t, uint16(n)))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	files, err := LoadDirectory(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{files[0].Frame, files[1].Frame, files[2].Frame})
	assert.Equal(t, filepath.Join(dir, "frame-10.cbor"), files[2].Path)
}

func TestLoadDirectoryErrors(t *testing.T) {
	_, err := LoadDirectory(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame-x.cbor"), nil, 0o644))
	_, err = LoadDirectory(dir)
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	files := []File{
		{Path: "a", Data: encodedFrame(t, 5), Frame: 1},
		{Path: "b", Data: []byte{0xff, 0x00}, Frame: 2},
		{Path: "c", Data: encodedFrame(t, 6), Frame: 3},
	}
	var skipped []string
	out := Valid(files, func(f File, err error) {
		assert.Error(t, err)
		skipped = append(skipped, f.Path)
	})
	assert.Equal(t, []string{"b"}, skipped)
	require.Len(t, out, 2)
	assert.Equal(t, 3, out[1].Frame)
	assert.Len(t, files, 3)
}

func collect(ch <-chan File, n int) []int {
	var frames []int
	for f := range ch {
		frames = append(frames, f.Frame)
		if len(frames) == n {
			break
		}
	}
	return frames
}

func TestReplayOnce(t *testing.T) {
	files := []File{{Frame: 1}, {Frame: 2}, {Frame: 3}}
	assert.Equal(t, []int{1, 2, 3}, collect(Replay(context.Background(), files, 0, false), 10))
	assert.Empty(t, collect(Replay(context.Background(), nil, 0, true), 1))
}

func TestReplayLoopAndCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := Replay(ctx, []File{{Frame: 1}, {Frame: 2}}, 1000, true)
	assert.Equal(t, []int{1, 2, 1, 2, 1}, collect(ch, 5))

	cancel()
	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not stop after cancellation")
	}
}

func TestReplayFeedsSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := transport.NewZMQSource(transport.SocketConfig{Endpoint: "inproc://replay-feed", Bind: true}, 20*time.Millisecond, nil)
	require.NoError(t, err)
	frames := src.Stream(ctx, 2)

	pusher, err := transport.NewZMQPusher(transport.SocketConfig{Endpoint: "inproc://replay-feed"})
	require.NoError(t, err)
	defer pusher.Close()

	for f := range Replay(ctx, []File{{Data: encodedFrame(t, 321), Frame: 1}}, 0, false) {
		require.NoError(t, pusher.Push(ctx, f.Data))
	}

	select {
	case f := <-frames:
		assert.Equal(t, uint16(321), f.Depth.MustGet().Data[3])
		assert.Equal(t, signals.ReasonNotObserved, f.RGB.Reason())
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
}
