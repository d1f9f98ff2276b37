package api

// APIError is the error envelope returned to clients. Handlers return it to
// control the response status; any other error becomes a 500.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{Code: code, Message: message}
}

func (e *APIError) Error() string {
	return e.Message
}
