package wssession

import "github.com/pkg/errors"

type (
	// Subscriber consumes one message stream. A non-nil error from Deliver is treated as a
	// broken consumer channel and escalated to the controller's fatal handler.
	Subscriber[T any] interface {
		Deliver(payload T) error
	}

	// SubscriberFunc adapts a plain function to Subscriber.
	SubscriberFunc[T any] func(payload T) error
)

func (f SubscriberFunc[T]) Deliver(payload T) error {
	return f(payload)
}

// eventSink holds at most one subscriber. When none is attached payloads fall back to the
// emitter under fallbackMethod. It is only ever touched from the serial executor.
type eventSink[T any] struct {
	name           string
	fallbackMethod string
	subscriber     Subscriber[T]
	logger         Logger
}

func newEventSink[T any](logger Logger, name, fallbackMethod string) *eventSink[T] {
	return &eventSink[T]{
		name:           name,
		fallbackMethod: fallbackMethod,
		logger:         logger.WithField("sink", name),
	}
}

func (s *eventSink[T]) attach(sub Subscriber[T]) {
	s.subscriber = sub
	s.logger.Infof("%s sink activated", s.name)
}

func (s *eventSink[T]) detach() {
	if s.subscriber == nil {
		return
	}
	s.subscriber = nil
	s.logger.Infof("%s sink removed", s.name)
}

func (s *eventSink[T]) attached() bool {
	return s.subscriber != nil
}

// deliver hands payload to the subscriber, or to fallback when none is attached.
func (s *eventSink[T]) deliver(payload T, fallback Emitter[string, any]) error {
	if s.subscriber == nil {
		s.logger.Debugf("%s sink not attached, falling back to %s", s.name, s.fallbackMethod)
		fallback.Emit(s.fallbackMethod, payload)
		return nil
	}

	if err := s.subscriber.Deliver(payload); err != nil {
		s.logger.Errorf("cannot deliver data to %s sink: %s", s.name, err)
		return errors.Wrapf(err, "%s sink delivery failed", s.name)
	}
	return nil
}
