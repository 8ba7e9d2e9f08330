package log

import (
	"fintrack/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
	FieldTransactionID = "transaction_id"
	FieldOwnerID       = "owner_id"
	FieldTxType        = "transaction_type"
	FieldRecurring     = "recurring"
	FieldTemplateID    = "template_id"
	FieldSource        = "source"
	FieldEventType     = "event_type"
	FieldTemplates     = "templates"
	FieldCreated       = "created"
	FieldFailed        = "failed"
)

// Components defines standard component names
const (
	ComponentApp         = "app"
	ComponentHTTP        = "http"
	ComponentTransaction = "transaction"
	ComponentRecurring   = "recurring"
	ComponentScheduler   = "scheduler"
	ComponentStorage     = "storage"
	ComponentAMQP        = "amqp"
	ComponentWorker      = "worker"
	ComponentSheets      = "sheets"
	ComponentSecurity    = "security"
	ComponentRateLimit   = "rate_limit"
	ComponentBackend     = "backend"
	ComponentAdmin       = "admin"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpSweep    = "sweep"
	OpAppend   = "append"
	OpPublish  = "publish"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error message and its kind.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorType] = core.ErrorKind(err)
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTransaction adds the identifying fields of t.
func (f LogFields) WithTransaction(t core.Transaction) LogFields {
	f[FieldTransactionID] = t.ID
	f[FieldOwnerID] = t.OwnerID
	f[FieldTxType] = t.Type.String()
	f[FieldRecurring] = t.Recurring
	if t.TemplateID != "" {
		f[FieldTemplateID] = t.TemplateID
	}
	return f
}

func (f LogFields) WithHTTPRequest(method, path, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
