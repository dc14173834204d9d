package wssession

import "fmt"

type MessageType byte

// Values follow the websocket opcodes.
const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2
)

func (t MessageType) Is(other MessageType) bool {
	return t == other
}

func (t MessageType) IsText() bool {
	return t.Is(TextMessage)
}

func (t MessageType) IsBinary() bool {
	return t.Is(BinaryMessage)
}

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return fmt.Sprintf("MessageType(%d)", byte(t))
	}
}

// Message is one data frame received from the peer.
type Message interface {
	Type() MessageType
	Data() []byte
	Text() string
	String() string
}

type message struct {
	MessageType MessageType
	MessageData []byte
}

func (m message) Type() MessageType {
	return m.MessageType
}

func (m message) Data() []byte {
	return m.MessageData
}

func (m message) Text() string {
	return string(m.MessageData)
}

func (m message) String() string {
	if m.MessageType.IsBinary() {
		return fmt.Sprintf("Message{type=%s,size=%d}", m.MessageType, len(m.MessageData))
	}
	return fmt.Sprintf("Message{type=%s,data=%s}", m.MessageType, m.MessageData)
}

func NewMessage(mt MessageType, data []byte) Message {
	return message{MessageType: mt, MessageData: data}
}

func NewTextMessage(text string) Message {
	return NewMessage(TextMessage, []byte(text))
}

func NewBinaryMessage(data []byte) Message {
	if data == nil {
		data = []byte{}
	}
	return NewMessage(BinaryMessage, data)
}
