package matchdto

// ErrorResponse is the JSON body of every non-2xx HTTP response.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e ErrorResponse) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "match service error"
}

// Error codes.
const (
	CodeBadRequest    = "bad_request"
	CodeUnauthorized  = "unauthorized"
	CodeForbidden     = "forbidden"
	CodeNotFound      = "not_found"
	CodeAlreadyActive = "already_active"
	CodeNotWaiting    = "not_waiting"
	CodeSelfJoin      = "self_join"
	CodeConflict      = "conflict"
	CodeInternal      = "internal"
)
