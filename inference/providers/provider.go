// Package providers - Execution provider selection for ONNX Runtime sessions.
package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend names an ONNX Runtime execution provider.
type ProviderBackend string

// ProviderOptions is implemented by the provider-specific option structs.
type ProviderOptions interface {
	// Backend returns the provider the options configure.
	Backend() ProviderBackend
	// append registers the provider on the session options.
	append(opts *ort.SessionOptions) error
	isProviderOptions()
}

// Config selects and tunes the execution provider of a session.
type Config struct {
	// Backend specifies the provider to use.
	Backend ProviderBackend `json:"backend" yaml:"backend" koanf:"backend"`
	// Provider-specific options; only the one matching Backend is used.
	CUDA     CUDAOptions     `json:"cuda"     yaml:"cuda"     koanf:"cuda"`
	TensorRT TensorRTOptions `json:"tensorrt" yaml:"tensorrt" koanf:"tensorrt"`
	CoreML   CoreMLOptions   `json:"coreml"   yaml:"coreml"   koanf:"coreml"`
	// Intra-op parallelism; 0 lets the runtime decide.
	IntraOpThreads int `json:"intraOpThreads" yaml:"intraOpThreads" koanf:"intraopthreads"`
	// Inter-op parallelism; 0 lets the runtime decide.
	InterOpThreads int `json:"interOpThreads" yaml:"interOpThreads" koanf:"interopthreads"`
	// SharedLibraryPath overrides the platform default onnxruntime library.
	SharedLibraryPath string `json:"sharedLibraryPath" yaml:"sharedLibraryPath" koanf:"sharedlibrarypath"`
}

// Options returns the option set matching c.Backend.
//
// Returns:
//   - ProviderOptions: The selected provider options.
//   - error: An error if the backend is unknown.
func (c Config) Options() (ProviderOptions, error) {
	switch c.Backend {
	case CPUProviderBackend, "":
		return CPUOptions{}, nil
	case CUDAProviderBackend:
		return c.CUDA, nil
	case TensorRTProviderBackend:
		return c.TensorRT, nil
	case CoreMLProviderBackend:
		return c.CoreML, nil
	default:
		return nil, errors.Errorf("unsupported provider backend %q", c.Backend)
	}
}

// Validate checks the configuration without touching the native runtime.
func (c Config) Validate() error {
	if _, err := c.Options(); err != nil {
		return err
	}
	if c.IntraOpThreads < 0 || c.InterOpThreads < 0 {
		return errors.Errorf("thread counts must not be negative (intra %d, inter %d)",
			c.IntraOpThreads, c.InterOpThreads)
	}
	return nil
}

// NewSessionOptions builds ONNX Runtime session options with threading, graph optimization and
// the configured execution provider. The caller must Destroy the result.
//
// Arguments:
//   - c: The provider configuration.
//
// Returns:
//   - *ort.SessionOptions: The session options.
//   - error: An error if the options or the provider cannot be set up.
func NewSessionOptions(c Config) (*ort.SessionOptions, error) {
	provider, err := c.Options()
	if err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	if err := configure(options, c, provider); err != nil {
		_ = options.Destroy()
		return nil, err
	}
	return options, nil
}

func configure(options *ort.SessionOptions, c Config, provider ProviderOptions) error {
	if err := options.SetIntraOpNumThreads(c.IntraOpThreads); err != nil {
		return errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(c.InterOpThreads); err != nil {
		return errors.Wrap(err, "error setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return errors.Wrap(err, "error setting graph optimization level")
	}
	if err := provider.append(options); err != nil {
		return errors.Wrapf(err, "error enabling %s", provider.Backend())
	}
	return nil
}
