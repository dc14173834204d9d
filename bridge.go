package wssession

import (
	"github.com/pkg/errors"
)

// Inbound method names and their argument keys.
const (
	MethodConnect              = "connect"
	MethodDisconnect           = "disconnect"
	MethodSendStringMessage    = "sendStringMessage"
	MethodSendByteArrayMessage = "sendByteArrayMessage"
	MethodTerminate            = "terminate"

	ArgumentURL     = "serverUrl"
	ArgumentOptions = "options"
	ArgumentCode    = "code"
	ArgumentReason  = "reason"
)

// MethodCall is one command arriving through the command bridge. Arguments is a
// map[string]any for connect and disconnect, the payload itself for the send methods.
type MethodCall struct {
	Method    string
	Arguments any
}

// Argument returns the named argument when Arguments is a map.
func (m MethodCall) Argument(key string) (any, bool) {
	args, ok := m.Arguments.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := args[key]
	return v, ok
}

// HandleMethodCall dispatches call onto the controller and returns its result. Send
// rejections answer false together with a *CommandError.
func (c *Controller) HandleMethodCall(call MethodCall) (any, error) {
	if c.terminated.Load() {
		return nil, ErrTerminated
	}

	switch call.Method {
	case MethodConnect:
		url, _ := call.Argument(ArgumentURL)
		serverURL, ok := url.(string)
		if !ok || serverURL == "" {
			return nil, errors.Wrap(ErrEmptyURL, "connect")
		}
		var options map[string]any
		if raw, found := call.Argument(ArgumentOptions); found && raw != nil {
			if options, ok = raw.(map[string]any); !ok {
				return nil, errors.Wrapf(ErrInvalidArgument, "connect: options must be a map, got %T", raw)
			}
		}
		return c.Connect(serverURL, options), nil

	case MethodDisconnect:
		var (
			code   int
			reason string
		)
		if raw, found := call.Argument(ArgumentCode); found && raw != nil {
			n, ok := intArgument(raw)
			if !ok {
				return nil, errors.Wrapf(ErrInvalidArgument, "disconnect: code must be numeric, got %T", raw)
			}
			code = n
		}
		if raw, found := call.Argument(ArgumentReason); found && raw != nil {
			s, ok := raw.(string)
			if !ok {
				return nil, errors.Wrapf(ErrInvalidArgument, "disconnect: reason must be a string, got %T", raw)
			}
			reason = s
		}
		return c.Disconnect(code, reason), nil

	case MethodSendStringMessage:
		text, ok := call.Arguments.(string)
		if !ok {
			return false, errors.Wrapf(ErrInvalidArgument, "sendStringMessage: got %T", call.Arguments)
		}
		if !c.SendText(text) {
			c.logger.Errorln("unable to send text message to ws server")
			return false, errSendText
		}
		return true, nil

	case MethodSendByteArrayMessage:
		var data []byte
		if call.Arguments != nil {
			bts, ok := call.Arguments.([]byte)
			if !ok {
				return false, errors.Wrapf(ErrInvalidArgument, "sendByteArrayMessage: got %T", call.Arguments)
			}
			data = bts
		}
		if !c.SendBinary(data) {
			c.logger.Errorln("unable to send binary message to ws server")
			return false, errSendBinary
		}
		return true, nil

	case MethodTerminate:
		c.Terminate()
		return nil, nil

	default:
		c.logger.Warnf("unexpected method call: %s", call.Method)
		return nil, errors.Wrap(ErrNotImplemented, call.Method)
	}
}
