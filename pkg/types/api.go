package types

// RunModelRequest is the payload of a RunModel call.
type RunModelRequest struct {
	// Serialized model graph.
	Model []byte `json:"model"`
	// Serialized parameter buffer matching Model. May be empty for formats
	// that keep weights inline.
	Params []byte `json:"params"`
	// Named inputs to bind before the inference pass.
	Inputs map[string]InputTensor `json:"inputs"`
}

// RunModelResponse carries every output the predictor reported.
type RunModelResponse struct {
	Outputs map[string]Tensor `json:"outputs"`
}

// TargetResponse is returned by GET /target.
type TargetResponse struct {
	// Engine binding compiled into the server (e.g. onnxruntime, stub).
	Engine string `json:"engine"`
	// Hardware backend every predictor is created for.
	Backend string `json:"backend"`
	// Numeric precision every predictor is created for.
	Precision string `json:"precision"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
