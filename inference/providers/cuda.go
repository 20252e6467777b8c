package providers

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CUDAProviderBackend uses NVIDIA CUDA for inference.
	CUDAProviderBackend ProviderBackend = "cuda"
)

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID" yaml:"deviceID" koanf:"deviceid"`
	// Run host/device copies on their own streams instead of the default stream. Left false,
	// copies and execution share one stream and stay ordered within an inference.
	SeparateCopyStreams bool `json:"separateCopyStreams" yaml:"separateCopyStreams" koanf:"separatecopystreams"`
	// The size limit of the device memory arena in bytes. 0 means no limit.
	GPUMemLimit int64 `json:"gpuMemLimit" yaml:"gpuMemLimit" koanf:"gpumemlimit"`
	// The strategy for extending the device memory arena: kNextPowerOfTwo or kSameAsRequested.
	ArenaExtendStrategy string `json:"arenaExtendStrategy" yaml:"arenaExtendStrategy" koanf:"arenaextendstrategy"`
	// The type of search done for cuDNN convolution algorithms: EXHAUSTIVE, HEURISTIC or DEFAULT.
	CudnnConvAlgoSearch string `json:"cudnnConvAlgoSearch" yaml:"cudnnConvAlgoSearch" koanf:"cudnnconvalgosearch"`
	// Allow TF32 math on Ampere and newer.
	UseTF32 bool `json:"useTF32" yaml:"useTF32" koanf:"usetf32"`
}

// Backend implements ProviderOptions.
func (CUDAOptions) Backend() ProviderBackend {
	return CUDAProviderBackend
}

// Map returns the provider options in the key format ONNX Runtime expects.
func (o CUDAOptions) Map() map[string]string {
	m := map[string]string{
		"device_id":                 strconv.Itoa(o.DeviceID),
		"do_copy_in_default_stream": boolFlag(!o.SeparateCopyStreams),
		"use_tf32":                  boolFlag(o.UseTF32),
	}
	if o.GPUMemLimit > 0 {
		m["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}
	if o.ArenaExtendStrategy != "" {
		m["arena_extend_strategy"] = o.ArenaExtendStrategy
	}
	if o.CudnnConvAlgoSearch != "" {
		m["cudnn_conv_algo_search"] = o.CudnnConvAlgoSearch
	}
	return m
}

// ToNativeProviderOptions converts the options to native CUDA provider options. The caller must
// Destroy the result.
func (o CUDAOptions) ToNativeProviderOptions() (*ort.CUDAProviderOptions, error) {
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, err
	}
	if err := opts.Update(o.Map()); err != nil {
		_ = opts.Destroy()
		return nil, errors.Wrap(err, "error updating CUDA provider options")
	}
	return opts, nil
}

func (o CUDAOptions) append(options *ort.SessionOptions) error {
	cuda, err := o.ToNativeProviderOptions()
	if err != nil {
		return err
	}
	defer cuda.Destroy()
	return options.AppendExecutionProviderCUDA(cuda)
}

func (CUDAOptions) isProviderOptions() {}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
