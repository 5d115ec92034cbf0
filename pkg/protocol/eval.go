package protocol

import "encoding/json"

// EvalRequest asks the renderer to run a script against the live document.
type EvalRequest struct {
	ID     string `json:"id"`
	Script string `json:"script"`
}

// EvalResponse carries the result of an EvalRequest. Exactly one of Value and
// Error is set.
type EvalResponse struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

// OK reports whether the evaluation succeeded.
func (r *EvalResponse) OK() bool {
	return r.Error == ""
}
