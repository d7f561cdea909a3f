package services

// Custom errors

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// ParseError means the LLM reply could not be turned into candidates:
// the body was not valid JSON, or every entry in it was unusable.
type ParseError struct{ Message string }

func (e *ParseError) Error() string { return e.Message }

// UpstreamError covers completion-API failures that survived the gateway's
// retries: auth rejection, server errors, transport failures.
type UpstreamError struct{ Message string }

func (e *UpstreamError) Error() string { return e.Message }

// UpstreamRateLimitError is kept distinct so the HTTP layer can answer 503.
type UpstreamRateLimitError struct{ Message string }

func (e *UpstreamRateLimitError) Error() string { return e.Message }
