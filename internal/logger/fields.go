package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the sync job ID
	FieldJobID = "job_id"

	// FieldShop is the tenant identifier
	FieldShop = "shop"

	// FieldObjectType is the sync object type (orders, skus, ...)
	FieldObjectType = "object_type"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Standard metric fields, attached per log entry for aggregation.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldSize is a response or payload size in bytes
	FieldSize = "size"
)
