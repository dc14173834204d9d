package wssession

import (
	"encoding/json"
	"reflect"

	"github.com/pkg/errors"
)

// Outbound method names, as seen by the consumer.
const (
	MethodOnOpened           = "onOpened"
	MethodOnClosing          = "onClosing"
	MethodOnClosed           = "onClosed"
	MethodOnFailure          = "onFailure"
	MethodOnStringMessage    = "onStringMessage"
	MethodOnByteArrayMessage = "onByteArrayMessage"
)

type SystemEventType byte

const (
	EventOpened SystemEventType = iota + 1
	EventClosing
	EventClosed
	EventFailure
)

// MethodName is the name the event is emitted under.
func (t SystemEventType) MethodName() string {
	switch t {
	case EventOpened:
		return MethodOnOpened
	case EventClosing:
		return MethodOnClosing
	case EventClosed:
		return MethodOnClosed
	case EventFailure:
		return MethodOnFailure
	default:
		return ""
	}
}

func (t SystemEventType) String() string {
	return t.MethodName()
}

// SystemEvent is an immutable lifecycle notification. Code is meaningful only when positive;
// a nil string pointer means the field is absent.
type SystemEvent struct {
	Type          SystemEventType
	Code          int
	Reason        *string
	ThrowableType *string
	ErrorMessage  *string
	CauseMessage  *string
}

func newOpenedEvent() SystemEvent {
	return SystemEvent{Type: EventOpened}
}

func newClosingEvent(code int, reason string) SystemEvent {
	return SystemEvent{Type: EventClosing, Code: code, Reason: &reason}
}

func newClosedEvent(code int, reason string) SystemEvent {
	return SystemEvent{Type: EventClosed, Code: code, Reason: &reason}
}

// newFailureEvent describes err. The throwable type is the error's FailureType() when it
// has one, the name of its dynamic type otherwise. The cause message is present only when
// err carries a distinct cause.
func newFailureEvent(err error) SystemEvent {
	ev := SystemEvent{Type: EventFailure}
	if err == nil {
		return ev
	}

	typ := failureTypeName(err)
	msg := err.Error()
	ev.ThrowableType = &typ
	ev.ErrorMessage = &msg

	if cause := failureCause(err); cause != nil {
		cm := cause.Error()
		ev.CauseMessage = &cm
	}
	return ev
}

func failureTypeName(err error) string {
	if ft, ok := err.(interface{ FailureType() string }); ok {
		return ft.FailureType()
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}

func failureCause(err error) error {
	if c, ok := err.(interface{ Cause() error }); ok {
		if cause := c.Cause(); cause != nil && cause != err {
			return cause
		}
		return nil
	}
	if cause := errors.Unwrap(err); cause != nil {
		return cause
	}
	return nil
}

// ToMap renders the event the way it crosses the event bridge: absent fields are omitted.
func (e SystemEvent) ToMap() map[string]any {
	result := make(map[string]any)
	if e.Code > 0 {
		result["code"] = e.Code
	}
	if e.Reason != nil {
		result["reason"] = *e.Reason
	}
	if e.ThrowableType != nil {
		result["throwableType"] = *e.ThrowableType
	}
	if e.ErrorMessage != nil {
		result["errorMessage"] = *e.ErrorMessage
	}
	if e.CauseMessage != nil {
		result["causeMessage"] = *e.CauseMessage
	}
	return result
}

func (e SystemEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToMap())
}
