package wssession

import "time"

const (
	DefaultRetryDelay = time.Second

	// maxRetryAttempts is the number of collision retries tolerated before the connection
	// still blocking the reconnect is cancelled.
	maxRetryAttempts = 3
)

// scheduleRetry books a delayed connect for intent. Runs on the executor.
func (c *Controller) scheduleRetry(intent uint64, url string, options map[string]any) {
	c.retryAttempt++
	c.logger.Infof("scheduling delayed connect #%d in %s", c.retryAttempt, c.retryDelay)

	if c.retryAttempt > maxRetryAttempts && c.handle != nil && !c.handleCancelled {
		c.logger.Warnf("killing connection %s after %d delayed connect attempts",
			c.handle.ID(), c.retryAttempt)
		c.handleCancelled = true
		c.handle.Cancel()
	}

	if !c.schedule(c.retryDelay, func() { c.retry(intent, url, options) }) {
		c.logger.Debugln("delayed connect not scheduled, controller terminated")
	}
}

// retry runs a scheduled connect unless it went stale: a newer connect or a disconnect
// supersedes it, and a connection already opened for the same intent satisfies it.
func (c *Controller) retry(intent uint64, url string, options map[string]any) {
	if intent != c.intent {
		c.logger.Debugf("delayed connect #%d superseded", c.retryAttempt)
		return
	}
	if c.handle != nil && c.handleIntent == intent {
		c.logger.Debugf("delayed connect #%d already satisfied by %s", c.retryAttempt, c.handle.ID())
		return
	}
	c.connect(intent, url, options)
}
