package inference

// Graph is an opened, executable model bound to fixed host and device buffers.
//
// The Runner drives one inference as: write host inputs, Upload, Bind, Execute, Download,
// Synchronize. Upload, Execute and Download only enqueue work on the graph's single stream;
// host outputs are valid after Synchronize returns. A backend whose runtime performs the copies
// inside execution may implement the enqueue steps as no-ops.
type Graph interface {
	// Inputs returns the input host buffers in model declaration order.
	Inputs() []*Buffer
	// Outputs returns the output host buffers in model declaration order.
	Outputs() []*Buffer
	// Upload enqueues host to device copies for every input.
	Upload() error
	// Bind associates every tensor name with its device buffer.
	Bind() error
	// Execute enqueues one asynchronous execution.
	Execute() error
	// Download enqueues device to host copies for every output.
	Download() error
	// Synchronize blocks until all enqueued work has completed.
	Synchronize() error
	// Close releases device buffers, host buffers and the execution context. It must tolerate
	// repeated calls.
	Close() error
}

// Opener turns a model artifact into a Graph. An Opener that fails must release anything it
// allocated before returning.
type Opener interface {
	Open(modelPath string) (Graph, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(modelPath string) (Graph, error)

// Open implements Opener.
func (f OpenerFunc) Open(modelPath string) (Graph, error) {
	return f(modelPath)
}
