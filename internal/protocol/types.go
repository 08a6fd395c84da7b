package protocol

// Type is the envelope discriminator carried in the "type" field.
type Type string

const (
	TypeRegister   Type = "extension_register"
	TypeCLIRequest Type = "cli_request"
	TypeAck        Type = "ack"
	TypeHeartbeat  Type = "heartbeat"
	TypeResponse   Type = "response"
	TypeError      Type = "error"
	TypeInject     Type = "inject"
	TypeFocusTab   Type = "focus_tab"
	TypeDebugTabs  Type = "debug_tabs"
)

// Kind is the request_type of a cli_request.
type Kind string

const (
	KindInject    Kind = "inject"
	KindFocusTab  Kind = "focus_tab"
	KindDebugTabs Kind = "debug_tabs"
)

func (k Kind) Valid() bool {
	switch k {
	case KindInject, KindFocusTab, KindDebugTabs:
		return true
	}
	return false
}

// ErrorType is the error_type field of an error envelope.
type ErrorType string

const (
	ErrExtensionNotConnected  ErrorType = "extension_not_connected"
	ErrInjectionFailed        ErrorType = "injection_failed"
	ErrFocusTabFailed         ErrorType = "focus_tab_failed"
	ErrDebugTabsFailed        ErrorType = "debug_tabs_failed"
	ErrResponseTimeout        ErrorType = "response_timeout"
	ErrFocusTimeout           ErrorType = "focus_timeout"
	ErrDebugTimeout           ErrorType = "debug_timeout"
	ErrInvalidRequest         ErrorType = "invalid_request"
	ErrDuplicateCorrelationID ErrorType = "duplicate_correlation_id"
	ErrRelayShutdown          ErrorType = "relay_shutting_down"

	// Reported by the client driver, never sent by the relay.
	ErrServerNotRunning  ErrorType = "server_not_running"
	ErrProtocolViolation ErrorType = "protocol_violation"
	ErrClientTimeout     ErrorType = "timeout"
)

// ForwardFailure returns the error type used when a work order of kind k
// cannot be written to the executor.
func ForwardFailure(k Kind) ErrorType {
	switch k {
	case KindFocusTab:
		return ErrFocusTabFailed
	case KindDebugTabs:
		return ErrDebugTabsFailed
	default:
		return ErrInjectionFailed
	}
}

// Timeout returns the error type used when a request of kind k expires on the relay.
func Timeout(k Kind) ErrorType {
	switch k {
	case KindFocusTab:
		return ErrFocusTimeout
	case KindDebugTabs:
		return ErrDebugTimeout
	default:
		return ErrResponseTimeout
	}
}

const (
	AckAccepted            = "accepted"
	AckExtensionRegistered = "extension_registered"
)

type Tab struct {
	ID       int    `json:"id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Active   bool   `json:"active"`
	WindowID int    `json:"windowId,omitempty"`
}
