package wssession

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type closeCall struct {
	Code   int
	Reason string
}

// fakeTransport records every Open and lets tests drive the listener by hand.
type fakeTransport struct {
	mu      sync.Mutex
	conns   []*fakeConnection
	live    int
	maxLive int
	urls    []string
	configs []TransportConfig
	opened  chan *fakeConnection
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{opened: make(chan *fakeConnection, 64)}
}

func (t *fakeTransport) Open(url string, cfg TransportConfig, listener Listener) Connection {
	t.mu.Lock()
	conn := &fakeConnection{
		id:         fmt.Sprintf("fake-%d", len(t.conns)+1),
		transport:  t,
		listener:   listener,
		acceptSend: true,
	}
	t.conns = append(t.conns, conn)
	t.urls = append(t.urls, url)
	t.configs = append(t.configs, cfg)
	t.live++
	if t.live > t.maxLive {
		t.maxLive = t.live
	}
	t.mu.Unlock()

	t.opened <- conn
	return conn
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *fakeTransport) maxLiveConnections() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxLive
}

// nextOpen waits for the next Open call.
func (t *fakeTransport) nextOpen(tb testing.TB) *fakeConnection {
	tb.Helper()
	select {
	case conn := <-t.opened:
		return conn
	case <-time.After(2 * time.Second):
		tb.Fatal("transport was not opened")
		return nil
	}
}

type fakeConnection struct {
	id        string
	transport *fakeTransport
	listener  Listener

	mu         sync.Mutex
	acceptSend bool
	texts      []string
	binaries   [][]byte
	closes     []closeCall
	cancels    int
	terminated bool
}

func (c *fakeConnection) ID() string { return c.id }

func (c *fakeConnection) SendText(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acceptSend {
		return false
	}
	c.texts = append(c.texts, text)
	return true
}

func (c *fakeConnection) SendBinary(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acceptSend {
		return false
	}
	c.binaries = append(c.binaries, data)
	return true
}

func (c *fakeConnection) Close(code int, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes = append(c.closes, closeCall{Code: code, Reason: reason})
	first := c.acceptSend
	c.acceptSend = false
	return first
}

func (c *fakeConnection) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels++
	c.acceptSend = false
}

func (c *fakeConnection) setAcceptSend(v bool) {
	c.mu.Lock()
	c.acceptSend = v
	c.mu.Unlock()
}

func (c *fakeConnection) closeCalls() []closeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]closeCall(nil), c.closes...)
}

func (c *fakeConnection) cancelCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancels
}

func (c *fakeConnection) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func (c *fakeConnection) sentBinaries() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.binaries...)
}

func (c *fakeConnection) fire(ev TransportEvent) {
	ev.Conn = c
	if ev.Type.IsTerminal() {
		c.mu.Lock()
		wasTerminated := c.terminated
		c.terminated = true
		c.mu.Unlock()
		if !wasTerminated {
			c.transport.mu.Lock()
			c.transport.live--
			c.transport.mu.Unlock()
		}
	}
	c.listener(ev)
}

func (c *fakeConnection) fireOpen() { c.fire(TransportEvent{Type: TransportOpened}) }

func (c *fakeConnection) fireText(text string) {
	c.fire(TransportEvent{Type: TransportMessage, Message: NewTextMessage(text)})
}

func (c *fakeConnection) fireBinary(data []byte) {
	c.fire(TransportEvent{Type: TransportMessage, Message: NewBinaryMessage(data)})
}

func (c *fakeConnection) fireClosing(code int, reason string) {
	c.fire(TransportEvent{Type: TransportClosing, Code: code, Reason: reason})
}

func (c *fakeConnection) fireClosed(code int, reason string) {
	c.fire(TransportEvent{Type: TransportClosed, Code: code, Reason: reason})
}

func (c *fakeConnection) fireFailure(err error) {
	c.fire(TransportEvent{Type: TransportFailure, Err: err})
}

type emitted struct {
	Method  string
	Payload any
}

// recordingEmitter is an Emitter keeping everything it was handed.
type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingEmitter) Emit(method string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{Method: method, Payload: payload})
}

func (r *recordingEmitter) all() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitted(nil), r.events...)
}

func (r *recordingEmitter) methods() []string {
	var out []string
	for _, e := range r.all() {
		out = append(out, e.Method)
	}
	return out
}

func (r *recordingEmitter) last(tb testing.TB, method string) SystemEvent {
	tb.Helper()
	events := r.all()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Method == method {
			ev, ok := events[i].Payload.(SystemEvent)
			require.True(tb, ok, "payload of %s is %T", method, events[i].Payload)
			return ev
		}
	}
	tb.Fatalf("%s was never emitted", method)
	return SystemEvent{}
}

type mockSubscriber[T any] struct {
	mock.Mock
}

func (m *mockSubscriber[T]) Deliver(payload T) error {
	args := m.Called(payload)
	return args.Error(0)
}
