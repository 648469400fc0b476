package executor

// AuditFailureMessage is the only thing callers learn when the ledger
// cannot accept a pre-log write. Storage details stay in the log.
const AuditFailureMessage = "Audit system failure: tool execution blocked"

// ConfigurationError reports pipeline wiring holes found before the
// call reached the ledger.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// AuthorizationDenied covers allowedUsers rejections, forced policy
// denies, and the consecutive-denial ceiling.
type AuthorizationDenied struct {
	User   string
	Tool   string
	Reason string
}

func (e *AuthorizationDenied) Error() string {
	if e.User != "" {
		return "user " + e.User + " is not authorized for " + e.Tool + ": " + e.Reason
	}
	return "not authorized: " + e.Reason
}

// Escalated marks a threshold breach held for human review. It resolves
// to a denial today; the reason survives verbatim in the ledger.
type Escalated struct {
	Reason string
}

func (e *Escalated) Error() string {
	return "escalated for review: " + e.Reason
}

// GateDeclined is an explicit human no. Message is the tool's declared
// decline text, returned upstream unchanged.
type GateDeclined struct {
	Message string
}

func (e *GateDeclined) Error() string {
	return e.Message
}

// GateTimeout is silence on the confirmation channel.
type GateTimeout struct {
	Message string
}

func (e *GateTimeout) Error() string {
	return e.Message
}

// AuditFailure blocks execution when the pre-log write fails.
type AuditFailure struct{}

func (e *AuditFailure) Error() string {
	return AuditFailureMessage
}

// ExecutionError wraps a failure inside the tool itself.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return e.Tool + ": " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
