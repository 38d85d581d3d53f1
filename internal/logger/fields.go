package logger

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Context fields travel with the logger stored in a context.Context.
const (
	FieldRequestID = "request_id"
	// FieldJobID identifies one worker run; a resumed source gets a new one.
	FieldJobID     = "job_id"
	FieldSourceID  = "source_id"
	FieldSearchID  = "search_id"
	FieldComponent = "component"
)

// Entry fields describe a single event and are aggregated downstream.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
	// FieldFrame is the numeric frame index, never the zero-padded label.
	FieldFrame   = "frame"
	FieldBackend = "backend"
)
