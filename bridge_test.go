package wssession

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMethodCall_ConnectSendDisconnect(t *testing.T) {
	c, tr, em := newTestController(t)

	res, err := c.HandleMethodCall(MethodCall{
		Method: MethodConnect,
		Arguments: map[string]any{
			ArgumentURL:     testURL,
			ArgumentOptions: map[string]any{"autoReconnect": true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, true, res)

	conn := tr.nextOpen(t)
	conn.fireOpen()
	assert.True(t, c.Status().AutoReconnect)

	res, err = c.HandleMethodCall(MethodCall{Method: MethodSendStringMessage, Arguments: "hi"})
	require.NoError(t, err)
	assert.Equal(t, true, res)

	res, err = c.HandleMethodCall(MethodCall{Method: MethodSendByteArrayMessage, Arguments: []byte{7}})
	require.NoError(t, err)
	assert.Equal(t, true, res)

	assert.Equal(t, []string{"hi"}, conn.sentTexts())
	assert.Equal(t, [][]byte{{7}}, conn.sentBinaries())

	res, err = c.HandleMethodCall(MethodCall{
		Method:    MethodDisconnect,
		Arguments: map[string]any{ArgumentCode: float64(4001), ArgumentReason: "bye"},
	})
	require.NoError(t, err)
	assert.Equal(t, true, res)

	require.Eventually(t, func() bool { return len(conn.closeCalls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, closeCall{Code: 4001, Reason: "bye"}, conn.closeCalls()[0])
	assert.Equal(t, []string{MethodOnOpened}, em.methods())
}

func TestHandleMethodCall_DisconnectDefaults(t *testing.T) {
	c, tr, _ := newTestController(t)
	conn := openConnection(t, c, tr)

	_, err := c.HandleMethodCall(MethodCall{Method: MethodDisconnect, Arguments: map[string]any{}})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(conn.closeCalls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, closeCall{Code: CloseNormal, Reason: "Client done."}, conn.closeCalls()[0])
}

func TestHandleMethodCall_SendFailuresCarryCodes(t *testing.T) {
	c, _, _ := newTestController(t)

	res, err := c.HandleMethodCall(MethodCall{Method: MethodSendStringMessage, Arguments: "hi"})
	assert.Equal(t, false, res)
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "01", cmdErr.Code)
	assert.Equal(t, "Unable to send text message!", cmdErr.Message)

	res, err = c.HandleMethodCall(MethodCall{Method: MethodSendByteArrayMessage, Arguments: nil})
	assert.Equal(t, false, res)
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "02", cmdErr.Code)
	assert.Equal(t, "Unable to send binary message!", cmdErr.Message)
}

func TestHandleMethodCall_InvalidArguments(t *testing.T) {
	c, tr, _ := newTestController(t)

	tests := []struct {
		name string
		call MethodCall
		want error
	}{
		{"missing url", MethodCall{Method: MethodConnect, Arguments: map[string]any{}}, ErrEmptyURL},
		{"empty url", MethodCall{Method: MethodConnect, Arguments: map[string]any{ArgumentURL: ""}}, ErrEmptyURL},
		{"url not a string", MethodCall{Method: MethodConnect, Arguments: map[string]any{ArgumentURL: 42}}, ErrEmptyURL},
		{
			"options not a map",
			MethodCall{Method: MethodConnect, Arguments: map[string]any{ArgumentURL: testURL, ArgumentOptions: "x"}},
			ErrInvalidArgument,
		},
		{"code not numeric", MethodCall{Method: MethodDisconnect, Arguments: map[string]any{ArgumentCode: "1000"}}, ErrInvalidArgument},
		{"reason not a string", MethodCall{Method: MethodDisconnect, Arguments: map[string]any{ArgumentReason: 1}}, ErrInvalidArgument},
		{"text not a string", MethodCall{Method: MethodSendStringMessage, Arguments: []byte("x")}, ErrInvalidArgument},
		{"binary not bytes", MethodCall{Method: MethodSendByteArrayMessage, Arguments: "x"}, ErrInvalidArgument},
		{"unknown method", MethodCall{Method: "reconnect"}, ErrNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.HandleMethodCall(tt.call)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	assert.Zero(t, tr.openCount())
}

func TestHandleMethodCall_Terminate(t *testing.T) {
	c, tr, _ := newTestController(t)
	conn := openConnection(t, c, tr)

	res, err := c.HandleMethodCall(MethodCall{Method: MethodTerminate})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, []closeCall{{Code: CloseGoingAway, Reason: "Client terminated"}}, conn.closeCalls())

	_, err = c.HandleMethodCall(MethodCall{Method: MethodSendStringMessage, Arguments: "hi"})
	assert.True(t, errors.Is(err, ErrTerminated))
	assert.True(t, c.Status().Terminated)
}
