package types

// APIResponse is the envelope of every JSON response. A mutation that was
// applied but not saved carries both Data and Error.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Meta is attached to list responses and to failures.
type Meta struct {
	RequestID string `json:"requestId,omitempty"`
	Total     int    `json:"total,omitempty"`
}
