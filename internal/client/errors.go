package client

import (
	"fmt"

	"github.com/HsiangNianian/promptrelay/internal/protocol"
)

// ErrorKind says where a failure came from.
type ErrorKind string

const (
	// KindUnavailable: the relay could not be reached at all.
	KindUnavailable ErrorKind = "unavailable"
	// KindProtocol: the relay sent frames in an unexpected order or shape.
	KindProtocol ErrorKind = "protocol"
	// KindTimeout: the caller's own deadline elapsed.
	KindTimeout ErrorKind = "timeout"
	// KindRemote: the relay answered with a terminal error envelope.
	KindRemote ErrorKind = "remote"
)

type Error struct {
	Kind          ErrorKind
	Type          protocol.ErrorType
	CorrelationID string
	Message       string
	Err           error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Hint returns the user facing description for the error type.
func (e *Error) Hint() Hint {
	return HintFor(e.Type)
}

// Retriable reports whether trying the same request again may succeed.
func (e *Error) Retriable() bool {
	return e.Hint().Retriable
}

type Hint struct {
	Title       string
	Description string
	Recovery    string
	Retriable   bool
}

var hints = map[protocol.ErrorType]Hint{
	protocol.ErrServerNotRunning: {
		Title:       "Relay not running",
		Description: "Could not connect to the relay process.",
		Recovery:    "Start the relay process first, then retry.",
		Retriable:   true,
	},
	protocol.ErrExtensionNotConnected: {
		Title:       "Extension not connected",
		Description: "The browser extension is not connected to the relay.",
		Recovery:    "Reload the extension or restart the browser so it reconnects to the relay.",
		Retriable:   true,
	},
	protocol.ErrInjectionFailed: {
		Title:       "Injection failed",
		Description: "The prompt could not be delivered to the extension.",
		Recovery:    "Try again or reload the chat page.",
		Retriable:   true,
	},
	protocol.ErrFocusTabFailed: {
		Title:       "Focus request failed",
		Description: "The focus request could not be delivered to the extension.",
		Recovery:    "Reconnect the extension and try again.",
		Retriable:   true,
	},
	protocol.ErrDebugTabsFailed: {
		Title:       "Tab listing failed",
		Description: "The tab listing request could not be delivered to the extension.",
		Recovery:    "Reconnect the extension and try again.",
		Retriable:   true,
	},
	protocol.ErrResponseTimeout: {
		Title:       "Response timeout",
		Description: "The chat page took too long to respond.",
		Recovery:    "Try again with a shorter prompt.",
		Retriable:   true,
	},
	protocol.ErrFocusTimeout: {
		Title:       "Focus timeout",
		Description: "The extension did not confirm focusing the tab in time.",
		Recovery:    "Check that the browser window is not minimized and try again.",
		Retriable:   true,
	},
	protocol.ErrDebugTimeout: {
		Title:       "Tab listing timeout",
		Description: "The extension did not report its tabs in time.",
		Recovery:    "Reconnect the extension and try again.",
		Retriable:   true,
	},
	protocol.ErrClientTimeout: {
		Title:       "Operation timeout",
		Description: "No answer arrived before the client deadline.",
		Recovery:    "Increase --timeout or check that the chat page is still responding.",
	},
	protocol.ErrProtocolViolation: {
		Title:       "Protocol error",
		Description: "The relay sent an unexpected message.",
		Recovery:    "Make sure the relay and this client are the same version.",
	},
	protocol.ErrInvalidRequest: {
		Title:       "Invalid request",
		Description: "The relay rejected the request.",
		Recovery:    "Check the command arguments.",
	},
	protocol.ErrDuplicateCorrelationID: {
		Title:       "Duplicate request id",
		Description: "Another request already uses this correlation id.",
		Recovery:    "Retry without an explicit id.",
	},
	protocol.ErrRelayShutdown: {
		Title:       "Relay shutting down",
		Description: "The relay stopped before the request finished.",
		Recovery:    "Restart the relay, then retry.",
		Retriable:   true,
	},
	"element_not_found": {
		Title:       "UI element not found",
		Description: "The chat input or send button was not found on the page.",
		Recovery:    "This may be temporary. The request will be retried.",
		Retriable:   true,
	},
	"chatgpt_tab_missing": {
		Title:       "Chat tab not found",
		Description: "No chat tab is open in the browser.",
		Recovery:    "Run `promptctl tabs ensure` to open one.",
	},
}

func HintFor(t protocol.ErrorType) Hint {
	if h, ok := hints[t]; ok {
		return h
	}
	return Hint{
		Title:       "Unknown error",
		Description: "An unexpected error occurred.",
		Recovery:    "Check the error details and try again.",
	}
}
