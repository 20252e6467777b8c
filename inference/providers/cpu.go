package providers

import ort "github.com/yalue/onnxruntime_go"

const (
	// CPUProviderBackend runs on the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
)

// CPUOptions selects the built-in CPU provider, which needs no registration.
type CPUOptions struct{}

// Backend implements ProviderOptions.
func (CPUOptions) Backend() ProviderBackend {
	return CPUProviderBackend
}

func (CPUOptions) append(*ort.SessionOptions) error {
	return nil
}

func (CPUOptions) isProviderOptions() {}
