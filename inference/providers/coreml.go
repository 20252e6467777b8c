package providers

import ort "github.com/yalue/onnxruntime_go"

const (
	// CoreMLProviderBackend uses Apple CoreML, for development on macOS hosts.
	CoreMLProviderBackend ProviderBackend = "coreml"
)

// CoreML provider flags, see coreml_provider_factory.h.
const (
	coreMLFlagUseCPUOnly            uint32 = 0x001
	coreMLFlagOnlyAllowStaticInputs uint32 = 0x008
	coreMLFlagCreateMLProgram       uint32 = 0x010
)

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// Limit CoreML to running on CPU only.
	CPUOnly bool `json:"cpuOnly" yaml:"cpuOnly" koanf:"cpuonly"`
	// Only allow nodes whose inputs have static shapes.
	RequireStaticInputShapes bool `json:"requireStaticInputShapes" yaml:"requireStaticInputShapes" koanf:"requirestaticinputshapes"`
	// Create an MLProgram format model. Requires Core ML 5 or later.
	MLProgram bool `json:"mlProgram" yaml:"mlProgram" koanf:"mlprogram"`
}

// Backend implements ProviderOptions.
func (CoreMLOptions) Backend() ProviderBackend {
	return CoreMLProviderBackend
}

// Flags returns the native flag word.
func (o CoreMLOptions) Flags() uint32 {
	var flags uint32
	if o.CPUOnly {
		flags |= coreMLFlagUseCPUOnly
	}
	if o.RequireStaticInputShapes {
		flags |= coreMLFlagOnlyAllowStaticInputs
	}
	if o.MLProgram {
		flags |= coreMLFlagCreateMLProgram
	}
	return flags
}

func (o CoreMLOptions) append(options *ort.SessionOptions) error {
	return options.AppendExecutionProviderCoreML(o.Flags())
}

func (CoreMLOptions) isProviderOptions() {}
