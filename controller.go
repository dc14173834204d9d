package wssession

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

const (
	CloseNormal    = 1000
	CloseGoingAway = 1001

	reasonClientDone    = "Client done."
	reasonRestart       = "Connection restart."
	reasonTerminated    = "Client terminated"
	optionAutoReconnect = "autoReconnect"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the controller.
type Status struct {
	State              State
	Connected          bool
	ConnectionID       string
	RetryAttempt       int
	AutoReconnect      bool
	TextSinkAttached   bool
	BinarySinkAttached bool
	Terminated         bool
}

// Controller owns one logical websocket session. Every command and every transport
// callback is marshaled onto a single serial executor before it touches session state, so
// events and messages reach the consumer in transport order.
//
// Subscribers and emitter listeners run on that executor. Commands issued from them run
// inline instead of waiting for the executor; Connect and Disconnect are always queued.
type Controller struct {
	transport    Transport
	configurator Configurator
	baseConfig   TransportConfig
	logger       Logger
	emitter      Emitter[string, any]
	fatal        func(error)
	retryDelay   time.Duration
	exec         *serialExecutor
	schedule     func(d time.Duration, task func()) bool

	// Everything below is owned by exec.
	state           State
	handle          Connection
	handleIntent    uint64
	handleCancelled bool
	closeRequested  bool
	active          Connection
	autoReconnect   bool
	retryAttempt    int
	intent          uint64
	text            *eventSink[string]
	binary          *eventSink[[]byte]

	terminated    atomic.Bool
	terminateOnce sync.Once
}

type Option func(*Controller)

func WithLogger(logger Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithConfigurator(configurator Configurator) Option {
	return func(c *Controller) {
		if configurator != nil {
			c.configurator = configurator
		}
	}
}

// WithBaseConfig sets the config every connect attempt starts from.
func WithBaseConfig(cfg TransportConfig) Option {
	return func(c *Controller) {
		c.baseConfig = cfg
	}
}

// WithEmitter sets the outbound channel for lifecycle events and fallback messages.
func WithEmitter(emitter Emitter[string, any]) Option {
	return func(c *Controller) {
		if emitter != nil {
			c.emitter = emitter
		}
	}
}

// WithRetryDelay sets the delay of the collision retry.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithFatalHandler replaces the default reaction to a failing subscriber, which is to
// panic on the executor goroutine.
func WithFatalHandler(fn func(error)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.fatal = fn
		}
	}
}

func NewController(transport Transport, opts ...Option) *Controller {
	c := &Controller{
		transport:    transport,
		configurator: DefaultConfigurator,
		baseConfig:   DefaultTransportConfig(),
		logger:       NewNopLogger(),
		emitter:      noopEmitter[string, any]{},
		fatal:        func(err error) { panic(err) },
		retryDelay:   DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.WithField("type", "controller")
	c.text = newEventSink[string](c.logger, "text", MethodOnStringMessage)
	c.binary = newEventSink[[]byte](c.logger, "binary", MethodOnByteArrayMessage)
	c.exec = newSerialExecutor()
	if c.schedule == nil {
		c.schedule = c.exec.PostDelayed
	}

	c.logger.Infoln("controller created")
	return c
}

// Connect opens a session to url. When a session is already open or in flight it is
// closed and the connect is retried after the retry delay. It returns false only for an
// empty url or a terminated controller; the outcome of the attempt arrives as an event.
func (c *Controller) Connect(url string, options map[string]any) bool {
	if url == "" {
		c.logger.Warnln("rejected connect:", ErrEmptyURL)
		return false
	}
	if c.terminated.Load() {
		return false
	}

	return c.exec.Post(func() {
		c.intent++
		c.connect(c.intent, url, options)
	})
}

// Disconnect gracefully closes the current session. A code that cannot be sent means 1000,
// a reason longer than 123 bytes is truncated and an empty one means "Client done.".
// Pending collision retries are abandoned.
func (c *Controller) Disconnect(code int, reason string) bool {
	if c.terminated.Load() {
		return false
	}

	return c.exec.Post(func() {
		c.disconnect(code, reason)
	})
}

// SendText enqueues message on the open session. It returns false when no session is
// open or the transport rejected the payload.
func (c *Controller) SendText(message string) bool {
	if c.terminated.Load() {
		return false
	}

	var sent bool
	ok := c.exec.Call(func() {
		if c.active == nil {
			c.logger.Warnln("websocket is not connected yet, unable to send text message")
			return
		}
		sent = c.active.SendText(message)
	})
	return ok && sent
}

// SendBinary enqueues data on the open session. A nil payload is sent as an empty frame.
func (c *Controller) SendBinary(data []byte) bool {
	if c.terminated.Load() {
		return false
	}
	if data == nil {
		data = []byte{}
	}

	var sent bool
	ok := c.exec.Call(func() {
		if c.active == nil {
			c.logger.Warnln("websocket is not connected yet, unable to send binary message")
			return
		}
		sent = c.active.SendBinary(data)
	})
	return ok && sent
}

// AttachTextSink makes sub the only receiver of text messages.
func (c *Controller) AttachTextSink(sub Subscriber[string]) bool {
	return c.exec.Call(func() { c.text.attach(sub) })
}

func (c *Controller) DetachTextSink() bool {
	return c.exec.Call(func() { c.text.detach() })
}

// AttachBinarySink makes sub the only receiver of binary messages.
func (c *Controller) AttachBinarySink(sub Subscriber[[]byte]) bool {
	return c.exec.Call(func() { c.binary.attach(sub) })
}

func (c *Controller) DetachBinarySink() bool {
	return c.exec.Call(func() { c.binary.detach() })
}

func (c *Controller) Status() Status {
	var s Status
	if !c.exec.Call(func() {
		s = Status{
			State:              c.state,
			Connected:          c.active != nil,
			RetryAttempt:       c.retryAttempt,
			AutoReconnect:      c.autoReconnect,
			TextSinkAttached:   c.text.attached(),
			BinarySinkAttached: c.binary.attached(),
		}
		if c.handle != nil {
			s.ConnectionID = c.handle.ID()
		}
	}) {
		return Status{Terminated: true}
	}
	s.Terminated = c.terminated.Load()
	return s
}

// Terminate disconnects with 1001 "Client terminated", detaches both sinks and the
// emitter, and stops the executor. Callbacks arriving afterwards are dropped. It only
// executes once; the controller must not be reused.
func (c *Controller) Terminate() {
	c.terminateOnce.Do(func() {
		c.terminated.Store(true)
		c.exec.Call(func() {
			c.disconnect(CloseGoingAway, reasonTerminated)
			c.text.detach()
			c.binary.detach()
			c.emitter = noopEmitter[string, any]{}
		})
		c.exec.Close()
		c.logger.Infoln("controller terminated")
	})
}

func (c *Controller) connect(intent uint64, url string, options map[string]any) {
	if c.handle != nil {
		c.logger.Warnf("connection %s still active on new connect attempt, disconnecting", c.handle.ID())
		c.autoReconnect = false
		c.closeHandle(CloseGoingAway, reasonRestart)
		c.scheduleRetry(intent, url, options)
		return
	}

	if options == nil {
		options = map[string]any{}
	}
	c.autoReconnect = boolOption(options, optionAutoReconnect)
	cfg := c.configurator(c.baseConfig, options)

	c.handle = c.transport.Open(url, cfg, c.listen)
	c.handleIntent = intent
	c.handleCancelled = false
	c.closeRequested = false
	c.state = StateConnecting

	c.logger.Infof("connection request sent to %s [conn=%s autoReconnect=%t]",
		url, c.handle.ID(), c.autoReconnect)
}

func (c *Controller) disconnect(code int, reason string) {
	// abandons any scheduled collision retry
	c.intent++
	c.autoReconnect = false

	code, reason = closeArguments(code, reason)

	if c.handle == nil {
		c.logger.Warnln("websocket was nil on disconnect")
		return
	}
	c.closeHandle(code, reason)
}

// closeArguments maps code and reason onto values a close frame can carry. Codes that may
// not be sent become 1000; the reason is made valid UTF-8 and cut to 123 bytes on a rune
// boundary, and an empty one becomes "Client done.".
func closeArguments(code int, reason string) (int, string) {
	if !validCloseCode(code) {
		code = CloseNormal
	}

	reason = strings.ToValidUTF8(reason, "")
	if len(reason) > maxCloseReasonBytes {
		cut := maxCloseReasonBytes
		for cut > 0 && !utf8.RuneStart(reason[cut]) {
			cut--
		}
		reason = reason[:cut]
	}
	if reason == "" {
		reason = reasonClientDone
	}
	return code, reason
}

func (c *Controller) closeHandle(code int, reason string) {
	if !c.handle.Close(code, reason) {
		c.logger.Debugf("close of %s not accepted, already closing", c.handle.ID())
		return
	}
	c.closeRequested = true
	if c.state != StateIdle {
		c.state = StateClosing
	}
}

// listen is the Listener handed to the transport. It runs on transport goroutines and
// only re-posts.
func (c *Controller) listen(ev TransportEvent) {
	if !c.exec.Post(func() { c.handleTransportEvent(ev) }) {
		c.logger.Debugf("dropping %s event of %s, controller terminated", ev.Type, connID(ev.Conn))
	}
}

func (c *Controller) handleTransportEvent(ev TransportEvent) {
	if ev.Conn == nil || ev.Conn != c.handle {
		c.logger.Warnf("ignoring %s event of stale connection %s", ev.Type, connID(ev.Conn))
		return
	}

	switch ev.Type {
	case TransportOpened:
		c.onOpen(ev.Conn)
	case TransportMessage:
		c.onMessage(ev.Message)
	case TransportClosing:
		c.onClosing(ev.Code, ev.Reason)
	case TransportClosed:
		c.onClosed(ev.Code, ev.Reason)
	case TransportFailure:
		c.onFailure(ev.Err)
	default:
		c.logger.Warnf("unknown transport event %d", ev.Type)
	}
}

func (c *Controller) onOpen(conn Connection) {
	c.logger.Infof("ws connected [conn=%s]", conn.ID())
	c.active = conn
	c.retryAttempt = 0
	if c.closeRequested {
		c.state = StateClosing
	} else {
		c.state = StateOpen
	}
	c.emit(newOpenedEvent())
}

func (c *Controller) onMessage(m Message) {
	if m == nil {
		return
	}

	var err error
	if m.Type().IsBinary() {
		c.logger.Debugf("byte message received, size: %d", len(m.Data()))
		err = c.binary.deliver(m.Data(), c.emitter)
	} else {
		c.logger.Debugf("text message received: %s", m.Text())
		err = c.text.deliver(m.Text(), c.emitter)
	}

	if err != nil {
		c.fatal(err)
	}
}

func (c *Controller) onClosing(code int, reason string) {
	c.logger.Infof("ws is about to close, code: %d, reason: %s", code, reason)
	if c.state == StateOpen || c.state == StateConnecting {
		c.state = StateClosing
	}
	c.emit(newClosingEvent(code, reason))
}

func (c *Controller) onClosed(code int, reason string) {
	c.logger.Infof("ws closed, code: %d, reason: %s", code, reason)
	c.release()
	c.emit(newClosedEvent(code, reason))
}

func (c *Controller) onFailure(err error) {
	c.logger.Errorf("error occurred on ws channel: %v", err)
	c.release()
	c.emit(newFailureEvent(err))
}

// release forgets the connection. It runs before Closed or Failure is emitted, so a
// connect issued from an event listener never sees a stale handle.
func (c *Controller) release() {
	c.handle = nil
	c.active = nil
	c.handleCancelled = false
	c.closeRequested = false
	c.state = StateIdle
}

func (c *Controller) emit(ev SystemEvent) {
	c.emitter.Emit(ev.Type.MethodName(), ev)
}

func connID(conn Connection) string {
	if conn == nil {
		return "<nil>"
	}
	return conn.ID()
}
