package model

// ValidationStatus represents the validation state of a stored credential.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending" // Stored but not yet validated against Tembo.
	ValidationValid   ValidationStatus = "valid"   // Last validation succeeded.
	ValidationInvalid ValidationStatus = "invalid" // Tembo rejected the credential.
)

// AuditEventType classifies entries in the credential audit trail.
type AuditEventType string

const (
	AuditEventRegister          AuditEventType = "register"
	AuditEventUpdate            AuditEventType = "update"
	AuditEventUnregister        AuditEventType = "unregister"
	AuditEventValidationSuccess AuditEventType = "validation_success"
	AuditEventValidationFailure AuditEventType = "validation_failure"
	AuditEventAuthFailure       AuditEventType = "auth_failure"
)
