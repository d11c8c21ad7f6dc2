package embedding

// ONNXConfig configures the ONNX embedder used by the worker binary.
type ONNXConfig struct {
	ModelPath string
	// LibraryPath points at the onnxruntime shared library; empty uses the
	// platform default search path.
	LibraryPath string
	Dimensions  int
	MaxTokens   int
	CacheSize   int
	// OutputName is the pooled-embedding output of the model graph.
	OutputName string
}

func (c ONNXConfig) withDefaults() ONNXConfig {
	if c.Dimensions <= 0 {
		c.Dimensions = 384
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 256
	}
	if c.OutputName == "" {
		c.OutputName = "output"
	}
	return c
}
