package gateway

import "encoding/json"

// StartRequest is the body of POST /start.
type StartRequest struct {
	Symbol  string  `json:"symbol"`
	Capital float64 `json:"capital"`
}

// StartResponse is returned by POST /start.
type StartResponse struct {
	Status  string  `json:"status"`
	Symbol  string  `json:"symbol"`
	Capital float64 `json:"capital"`
	Session string  `json:"session"`
}

// StatusResponse is returned by POST /stop and GET /update.
type StatusResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// errorMessage is pushed to a WS client whose request failed.
func errorMessage(err error) []byte {
	b, _ := json.Marshal(struct {
		Action string `json:"action"`
		Error  string `json:"error"`
	}{"error", err.Error()})
	return b
}
