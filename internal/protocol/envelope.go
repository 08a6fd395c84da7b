package protocol

// Header is embedded by every envelope variant.
type Header struct {
	Type          Type   `json:"type"`
	CorrelationID string `json:"correlationId,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
}

func (h *Header) header() *Header { return h }

// ID returns the correlation id of the envelope.
func (h *Header) ID() string { return h.CorrelationID }

// Message is one decoded envelope. The concrete type identifies the variant.
type Message interface {
	MessageType() Type
	ID() string
	header() *Header
}

type Register struct {
	Header
}

func (*Register) MessageType() Type { return TypeRegister }

type CLIRequest struct {
	Header
	RequestType  Kind   `json:"request_type,omitempty"`
	Message      string `json:"message,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
}

func (*CLIRequest) MessageType() Type { return TypeCLIRequest }

// Kind returns the request type, defaulting to inject.
func (r *CLIRequest) Kind() Kind {
	if r.RequestType == "" {
		return KindInject
	}
	return r.RequestType
}

type Ack struct {
	Header
	Status string `json:"status"`
}

func (*Ack) MessageType() Type { return TypeAck }

type Heartbeat struct {
	Header
	ElapsedMs int64 `json:"elapsed_ms,omitempty"`
}

func (*Heartbeat) MessageType() Type { return TypeHeartbeat }

// Response carries the result of any kind. Which fields are set depends on
// the request kind: response/html for inject, success/error for focus_tab,
// tabs/tab_count for debug_tabs.
type Response struct {
	Header
	Response string `json:"response,omitempty"`
	HTML     string `json:"html,omitempty"`
	Success  *bool  `json:"success,omitempty"`
	Error    string `json:"error,omitempty"`
	Tabs     []Tab  `json:"tabs,omitempty"`
	TabCount *int   `json:"tab_count,omitempty"`
}

func (*Response) MessageType() Type { return TypeResponse }

type Error struct {
	Header
	Error     string    `json:"error"`
	ErrorType ErrorType `json:"error_type"`
}

func (*Error) MessageType() Type { return TypeError }

type Inject struct {
	Header
	Message      string `json:"message"`
	OutputFormat string `json:"output_format,omitempty"`
}

func (*Inject) MessageType() Type { return TypeInject }

type FocusTab struct {
	Header
}

func (*FocusTab) MessageType() Type { return TypeFocusTab }

type DebugTabs struct {
	Header
}

func (*DebugTabs) MessageType() Type { return TypeDebugTabs }

// WorkOrder builds the envelope forwarded to the executor for a client request.
func WorkOrder(id string, req *CLIRequest) Message {
	h := Header{CorrelationID: id}
	switch req.Kind() {
	case KindFocusTab:
		return &FocusTab{Header: h}
	case KindDebugTabs:
		return &DebugTabs{Header: h}
	default:
		format := req.OutputFormat
		if format == "" {
			format = "json"
		}
		return &Inject{Header: h, Message: req.Message, OutputFormat: format}
	}
}

// Project keeps only the result fields that belong to kind k.
func Project(k Kind, id string, r *Response) *Response {
	out := &Response{Header: Header{CorrelationID: id}}
	switch k {
	case KindFocusTab:
		success := r.Success != nil && *r.Success
		out.Success = &success
		out.Error = r.Error
	case KindDebugTabs:
		out.Tabs = r.Tabs
		count := len(r.Tabs)
		if r.TabCount != nil {
			count = *r.TabCount
		}
		out.TabCount = &count
	default:
		out.Response = r.Response
		out.HTML = r.HTML
	}
	return out
}
