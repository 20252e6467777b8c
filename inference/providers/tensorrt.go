package providers

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// TensorRTProviderBackend uses NVIDIA TensorRT, falling back to CUDA for unsupported nodes.
	TensorRTProviderBackend ProviderBackend = "tensorrt"
)

// TensorRTOptions contains arguments for the TensorRT provider.
// See: https://onnxruntime.ai/docs/execution-providers/TensorRT-ExecutionProvider.html
type TensorRTOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID" yaml:"deviceID" koanf:"deviceid"`
	// Build FP16 engines when the hardware supports it.
	FP16 bool `json:"fp16" yaml:"fp16" koanf:"fp16"`
	// Directory where built engines are cached between runs. Empty disables the cache.
	EngineCachePath string `json:"engineCachePath" yaml:"engineCachePath" koanf:"enginecachepath"`
	// Maximum workspace size in bytes for engine building. 0 keeps the runtime default.
	MaxWorkspaceSize int64 `json:"maxWorkspaceSize" yaml:"maxWorkspaceSize" koanf:"maxworkspacesize"`
	// Options for the CUDA provider registered behind TensorRT.
	Fallback CUDAOptions `json:"fallback" yaml:"fallback" koanf:"fallback"`
}

// Backend implements ProviderOptions.
func (TensorRTOptions) Backend() ProviderBackend {
	return TensorRTProviderBackend
}

// Map returns the provider options in the key format ONNX Runtime expects.
func (o TensorRTOptions) Map() map[string]string {
	m := map[string]string{
		"device_id":       strconv.Itoa(o.DeviceID),
		"trt_fp16_enable": boolFlag(o.FP16),
	}
	if o.EngineCachePath != "" {
		m["trt_engine_cache_enable"] = "1"
		m["trt_engine_cache_path"] = o.EngineCachePath
	}
	if o.MaxWorkspaceSize > 0 {
		m["trt_max_workspace_size"] = strconv.FormatInt(o.MaxWorkspaceSize, 10)
	}
	return m
}

func (o TensorRTOptions) append(options *ort.SessionOptions) error {
	trt, err := ort.NewTensorRTProviderOptions()
	if err != nil {
		return err
	}
	defer trt.Destroy()
	if err := trt.Update(o.Map()); err != nil {
		return errors.Wrap(err, "error updating TensorRT provider options")
	}
	if err := options.AppendExecutionProviderTensorRT(trt); err != nil {
		return err
	}

	return errors.Wrap(o.fallback().append(options), "error enabling CUDA fallback")
}

// fallback returns the CUDA options registered behind TensorRT, on the same device.
func (o TensorRTOptions) fallback() CUDAOptions {
	f := o.Fallback
	f.DeviceID = o.DeviceID
	return f
}

func (TensorRTOptions) isProviderOptions() {}
