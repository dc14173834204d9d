package wssession

type (
	// Transport opens network sessions. Open returns immediately; the outcome of the attempt
	// and everything that happens afterwards is reported through listener, possibly from
	// several goroutines.
	Transport interface {
		Open(url string, cfg TransportConfig, listener Listener) Connection
	}

	// Connection is one network session returned by Transport.Open.
	Connection interface {
		// ID identifies the session in logs.
		ID() string

		// SendText enqueues a text frame. It returns false when the connection is closing,
		// closed or cancelled, or when the payload would overflow the outbound queue. An
		// overflow also starts a graceful close.
		SendText(text string) bool

		// SendBinary enqueues a binary frame. Same contract as SendText.
		SendBinary(data []byte) bool

		// Close starts a graceful shutdown. Frames enqueued before the call are transmitted
		// ahead of the close frame. It returns false if a close was already initiated or the
		// arguments are invalid.
		Close(code int, reason string) bool

		// Cancel aborts the session immediately, without a close handshake.
		Cancel()
	}

	TransportEventType byte

	// TransportEvent is one listener callback. Message is set for TransportMessage, Code
	// and Reason for TransportClosing and TransportClosed, Err for TransportFailure.
	TransportEvent struct {
		Type    TransportEventType
		Conn    Connection
		Message Message
		Code    int
		Reason  string
		Err     error
	}

	// Listener receives transport callbacks. Each connection emits exactly one terminal
	// event (TransportClosed or TransportFailure) and nothing after it.
	Listener func(ev TransportEvent)
)

const (
	TransportOpened TransportEventType = iota + 1
	TransportMessage
	TransportClosing
	TransportClosed
	TransportFailure
)

func (t TransportEventType) String() string {
	switch t {
	case TransportOpened:
		return "open"
	case TransportMessage:
		return "message"
	case TransportClosing:
		return "closing"
	case TransportClosed:
		return "closed"
	case TransportFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further events follow this one.
func (t TransportEventType) IsTerminal() bool {
	return t == TransportClosed || t == TransportFailure
}
