package wssession

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const maxCloseReasonBytes = 123

type (
	ErrAdapter func(*websocket.Conn, *http.Response, error) error

	ErrorAdapters struct {
		OnDial ErrAdapter
	}

	// wsTransport opens fasthttp/websocket client connections.
	wsTransport struct {
		logger      Logger
		errAdapters ErrorAdapters
	}

	outboundFrame struct {
		messageType int
		data        []byte
		closeCode   int
	}

	// wsConnection is a Connection over a single websocket. The dial happens on its own
	// goroutine; afterwards one goroutine reads, one writes, and an optional one pings.
	wsConnection struct {
		id          string
		url         string
		cfg         TransportConfig
		logger      Logger
		listener    Listener
		dialer      *websocket.Dialer
		errAdapters ErrorAdapters

		ctx    context.Context
		cancel context.CancelFunc

		mu         sync.Mutex
		conn       *websocket.Conn
		queue      []outboundFrame
		queueSize  int64
		closing    bool
		closeSent  bool
		cancelled  bool
		closeTimer *time.Timer

		emitMu sync.Mutex
		done   bool

		signal    chan struct{}
		pongC     chan struct{}
		closeC    CloseChan
		closeOnce sync.Once
	}
)

// NewWebsocketTransport returns the fasthttp/websocket backed Transport.
func NewWebsocketTransport(logger Logger, errorAdapters ErrorAdapters) Transport {
	return &wsTransport{
		logger:      logger.WithField("net", "ws_transport"),
		errAdapters: errorAdapters,
	}
}

func (t *wsTransport) Open(url string, cfg TransportConfig, listener Listener) Connection {
	c := newWsConnection(t.logger, url, cfg.withDefaults(), listener, t.errAdapters)
	go c.start()
	return c
}

func newWsConnection(
	logger Logger,
	url string,
	cfg TransportConfig,
	listener Listener,
	errAdapters ErrorAdapters,
) *wsConnection {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	dialer := &websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		Subprotocols:      cfg.Subprotocols,
		EnableCompression: cfg.EnableCompression,
	}
	if cfg.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &wsConnection{
		id:          id,
		url:         url,
		cfg:         cfg,
		logger:      logger.WithField("conn", id),
		listener:    listener,
		dialer:      dialer,
		errAdapters: errAdapters,
		ctx:         ctx,
		cancel:      cancel,
		signal:      make(chan struct{}, 1),
		pongC:       make(chan struct{}, 1),
		closeC:      make(CloseChan),
	}
}

func (w *wsConnection) ID() string { return w.id }

func (w *wsConnection) SendText(text string) bool {
	return w.enqueue(outboundFrame{messageType: websocket.TextMessage, data: []byte(text)})
}

func (w *wsConnection) SendBinary(data []byte) bool {
	if data == nil {
		data = []byte{}
	}
	return w.enqueue(outboundFrame{messageType: websocket.BinaryMessage, data: data})
}

// Close enqueues a close frame behind the frames already queued.
func (w *wsConnection) Close(code int, reason string) bool {
	if !validCloseCode(code) || len(reason) > maxCloseReasonBytes || !utf8.ValidString(reason) {
		w.logger.Warnf("invalid close arguments code=%d reason=%q", code, reason)
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.initiateCloseLocked(code, reason)
}

// Cancel drops the connection without a close handshake.
func (w *wsConnection) Cancel() {
	w.mu.Lock()
	w.cancelled = true
	conn := w.conn
	w.mu.Unlock()

	w.logger.Infoln("cancelling connection")
	w.cancel()
	if conn != nil {
		_ = conn.Close()
	}
}

func (w *wsConnection) enqueue(frame outboundFrame) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closing || w.cancelled {
		return false
	}

	size := int64(len(frame.data))
	if w.queueSize+size > w.cfg.MaxQueueSize {
		w.logger.Warnf("outbound queue would overflow (%d + %d > %d bytes), closing",
			w.queueSize, size, w.cfg.MaxQueueSize)
		w.initiateCloseLocked(CloseGoingAway, "")
		return false
	}

	w.queue = append(w.queue, frame)
	w.queueSize += size
	w.notifyWriter()
	return true
}

func (w *wsConnection) initiateCloseLocked(code int, reason string) bool {
	if w.closing || w.cancelled {
		return false
	}
	w.closing = true
	w.queue = append(w.queue, outboundFrame{
		messageType: websocket.CloseMessage,
		data:        []byte(reason),
		closeCode:   code,
	})
	w.notifyWriter()
	return true
}

func (w *wsConnection) notifyWriter() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *wsConnection) dequeue() (outboundFrame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.queue) == 0 {
		return outboundFrame{}, false
	}
	frame := w.queue[0]
	w.queue = w.queue[1:]
	if frame.messageType != websocket.CloseMessage {
		w.queueSize -= int64(len(frame.data))
	}
	return frame, true
}

func (w *wsConnection) isCancelled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancelled
}

func (w *wsConnection) start() {
	conn, resp, err := w.dialer.DialContext(w.ctx, w.url, w.cfg.Header)

	if err = w.handleDialError(conn, resp, err); err != nil {
		w.logger.Errorf("connection err to %s: %s", w.url, err)
		w.fail(err)
		return
	}

	w.mu.Lock()
	if w.cancelled {
		w.mu.Unlock()
		_ = conn.Close()
		w.fail(newConnectionError(ErrCancelled, nil, w.url))
		return
	}
	w.conn = conn
	w.mu.Unlock()

	w.logger.Debugf("success opening connection to %s", w.url)

	conn.SetPingHandler(w.replyPingWithPong(conn))
	conn.SetPongHandler(w.recordPong)

	conn.SetCloseHandler(func(code int, text string) error {
		w.logger.Debugf("<= [CLOSE] %d %s", code, text)
		w.emit(TransportEvent{Type: TransportClosing, Code: code, Reason: text})
		w.replyClose(conn, code, text)
		return nil
	})

	w.emit(TransportEvent{Type: TransportOpened})

	go w.read(conn)
	go w.write(conn)
	if w.cfg.PingInterval > 0 {
		go w.keepAlive(conn)
	}
}

// replyClose answers a peer-initiated close unless our own close frame already went out.
// Frames still queued are dropped.
func (w *wsConnection) replyClose(conn *websocket.Conn, code int, text string) {
	w.mu.Lock()
	alreadySent := w.closeSent
	w.closing = true
	w.closeSent = true
	w.queue = nil
	w.queueSize = 0
	w.mu.Unlock()

	if alreadySent {
		return
	}

	if code == websocket.CloseNoStatusReceived {
		code = CloseNormal
		text = ""
	}
	deadline := time.Now().Add(w.cfg.WriteTimeout)
	if err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline); err != nil {
		w.logger.Debugf("cannot reply close frame: %s", err)
	}
}

func (w *wsConnection) read(conn *websocket.Conn) {
	defer w.shutdown()

	for {
		messageType, bts, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				w.logger.Infof("connection closed by peer handshake: %d %s", closeErr.Code, closeErr.Text)
				w.emit(TransportEvent{Type: TransportClosed, Code: closeErr.Code, Reason: closeErr.Text})
				return
			}

			if w.isCancelled() {
				w.fail(newConnectionError(ErrCancelled, nil, w.url))
				return
			}
			w.logger.Errorf("error occurred on websocket read: %s", err)
			w.fail(newConnectionError(ErrConnectionClosed, err, w.url))
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			w.logger.Debugln("<= [BIN]")
			w.emit(TransportEvent{Type: TransportMessage, Message: NewBinaryMessage(bts)})
		default:
			w.logger.Debugf("<= [DATA] %s", bts)
			w.emit(TransportEvent{Type: TransportMessage, Message: NewMessage(TextMessage, bts)})
		}
	}
}

func (w *wsConnection) write(conn *websocket.Conn) {
	for {
		select {
		case <-w.closeC:
			return
		case <-w.signal:
		}

		for {
			frame, ok := w.dequeue()
			if !ok {
				break
			}

			deadline := time.Now().Add(w.cfg.WriteTimeout)

			if frame.messageType == websocket.CloseMessage {
				if !w.markCloseSent() {
					continue
				}
				w.logger.Infof("=> [CLOSE] %d %s", frame.closeCode, frame.data)
				err := conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(frame.closeCode, string(frame.data)),
					deadline,
				)
				if err != nil {
					if errors.Is(err, websocket.ErrCloseSent) {
						continue
					}
					w.fail(newConnectionError(ErrConnectionClosed, err, w.url))
					w.shutdown()
					return
				}
				w.armCloseTimeout()
				continue
			}

			_ = conn.SetWriteDeadline(deadline)
			if frame.messageType == websocket.TextMessage {
				w.logger.Debugf("=> [DATA] %s", frame.data)
			} else {
				w.logger.Debugln("=> [BIN]")
			}

			if err := conn.WriteMessage(frame.messageType, frame.data); err != nil {
				if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) ||
					errors.Is(err, websocket.ErrCloseSent) {
					// the reader reports how the session ended
					return
				}
				w.fail(newConnectionError(ErrConnectionClosed, err, w.url))
				w.shutdown()
				return
			}
		}
	}
}

// markCloseSent reports whether the caller is the first to send a close frame.
func (w *wsConnection) markCloseSent() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closeSent {
		return false
	}
	w.closeSent = true
	return true
}

// armCloseTimeout cancels the connection if the peer does not complete the close handshake.
func (w *wsConnection) armCloseTimeout() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closeTimer != nil {
		return
	}
	w.closeTimer = time.AfterFunc(w.cfg.CloseTimeout, func() {
		w.logger.Warnf("no close answer within %s, dropping connection", w.cfg.CloseTimeout)
		w.fail(newConnectionError(ErrCloseTimeout, nil, w.url))
		w.shutdown()
	})
}

// emit forwards ev to the listener. After a terminal event nothing else is forwarded.
func (w *wsConnection) emit(ev TransportEvent) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	if w.done {
		return
	}
	if ev.Type.IsTerminal() {
		w.done = true
	}
	ev.Conn = w
	w.listener(ev)
}

func (w *wsConnection) fail(err error) {
	w.emit(TransportEvent{Type: TransportFailure, Err: err})
}

func (w *wsConnection) shutdown() {
	w.closeOnce.Do(func() {
		close(w.closeC)
		w.cancel()

		w.mu.Lock()
		w.closing = true
		w.queue = nil
		conn := w.conn
		if w.closeTimer != nil {
			w.closeTimer.Stop()
		}
		w.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
	})
}

func (w *wsConnection) handleDialError(conn *websocket.Conn, resp *http.Response, err error) error {
	if w.errAdapters.OnDial != nil {
		return w.errAdapters.OnDial(conn, resp, err)
	}

	if err == nil {
		return nil
	}

	if w.isCancelled() || errors.Is(err, context.Canceled) {
		return newConnectionError(ErrCancelled, err, w.url)
	}

	// 1. Check HTTP errors first
	if resp != nil {
		var msg string
		if resp.Body != nil {
			bts, readErr := io.ReadAll(resp.Body)
			if readErr == nil {
				msg = string(bts)
			}
			_ = resp.Body.Close()
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return newConnectionError(ErrRateLimit, errors.New(msg), w.url)
		}
	}

	// 2. Network errors
	return newConnectionError(ErrCannotConnect, err, w.url)
}

// validCloseCode rejects codes outside 1000..4999 and the ones reserved by RFC 6455.
func validCloseCode(code int) bool {
	if code < 1000 || code >= 5000 {
		return false
	}
	if (code >= 1004 && code <= 1006) || (code >= 1015 && code <= 2999) {
		return false
	}
	return true
}

func isTemporary(err error) bool {
	var te interface{ Temporary() bool }
	return errors.As(err, &te) && te.Temporary()
}
