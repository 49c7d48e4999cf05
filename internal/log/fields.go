package log

// Canonical field names for structured logging.
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldParam     = "param"
	FieldHeader    = "header"
	FieldOutcome   = "outcome"
	FieldPath      = "path"
	FieldRemote    = "remote_addr"
	FieldDelivery  = "delivery_id"
)
