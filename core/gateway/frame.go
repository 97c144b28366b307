package gateway

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-screening/core/events"
)

const (
	FramePing       = "ping"
	FrameSpeakText  = "speak_text"
	FrameEndSession = "end_session"
)

var errEmptyAudio = errors.New("audio frame is empty")

// Frame is a single inbound client message. Binary frames carry an utterance,
// text frames carry a control message.
type Frame struct {
	Audio []byte
	Type  string
	Text  string
}

func (f Frame) IsAudio() bool {
	return f.Type == ""
}

func AudioFrame(audio []byte) Frame {
	return Frame{Audio: audio}
}

func ControlFrame(frameType, text string) Frame {
	return Frame{Type: frameType, Text: text}
}

// ParseFrame turns a websocket message into a Frame.
func ParseFrame(messageType int, data []byte) (Frame, error) {
	switch messageType {
	case websocket.BinaryMessage:
		if len(data) == 0 {
			return Frame{}, errEmptyAudio
		}
		return AudioFrame(data), nil
	case websocket.TextMessage:
		message, err := events.Decode(data)
		if err != nil {
			return Frame{}, fmt.Errorf("invalid control frame: %w", err)
		}
		return ControlFrame(message.Type, message.Text), nil
	default:
		return Frame{}, fmt.Errorf("unsupported message type %d", messageType)
	}
}
