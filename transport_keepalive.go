package wssession

import (
	"time"

	"github.com/fasthttp/websocket"
)

// keepAlive sends a ping every PingInterval. A ping still unanswered when the next tick
// comes fails the connection with ErrPongTimeout.
// It stops when the connection shuts down.
func (w *wsConnection) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	awaitingPong := false

	for {
		select {
		case <-w.closeC:
			return
		case <-w.pongC:
			awaitingPong = false
		case <-ticker.C:
			if awaitingPong {
				w.logger.Warnf("no pong within %s", w.cfg.PingInterval)
				w.fail(newConnectionError(ErrPongTimeout, nil, w.url))
				w.shutdown()
				return
			}

			w.logger.Debugln("=> [PING]")
			deadline := time.Now().Add(w.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if isTemporary(err) {
					continue
				}
				if w.isClosing() {
					return
				}
				w.fail(newConnectionError(ErrConnectionClosed, err, w.url))
				w.shutdown()
				return
			}
			awaitingPong = true
		}
	}
}

// replyPingWithPong answers peer pings with a pong carrying the same payload.
func (w *wsConnection) replyPingWithPong(conn *websocket.Conn) func(appData string) error {
	return func(appData string) error {
		w.logger.Debugln("<= [PING]")
		deadline := time.Now().Add(w.cfg.WriteTimeout)
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), deadline)
		if err != nil && !isTemporary(err) && err != websocket.ErrCloseSent {
			return err
		}
		return nil
	}
}

func (w *wsConnection) recordPong(string) error {
	w.logger.Debugln("<= [PONG]")
	select {
	case w.pongC <- struct{}{}:
	default:
	}
	return nil
}

func (w *wsConnection) isClosing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closing
}
