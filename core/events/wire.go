package events

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/koscakluka/ema-screening/core/analysis"
)

// Message is the JSON object exchanged with clients. Inbound control frames
// use the same shape.
type Message struct {
	Type        string           `json:"type"`
	TaskID      string           `json:"taskId,omitempty"`
	Message     string           `json:"message,omitempty"`
	Text        string           `json:"text,omitempty"`
	AudioBase64 string           `json:"audioBase64,omitempty"`
	Seq         int              `json:"seq,omitempty"`
	Report      *analysis.Report `json:"report,omitempty"`
	Timestamp   *time.Time       `json:"timestamp,omitempty"`
}

// ToMessage converts a known event to its wire form.
func ToMessage(event Event) (Message, error) {
	timestamp := event.Timestamp()
	message := Message{Type: string(event.Kind()), Timestamp: &timestamp}

	switch e := event.(type) {
	case TaskStarted:
		message.TaskID = e.TaskID
	case Processing:
		message.Message = e.Message
	case UserTranscript:
		message.Text = e.Text
	case AIResponse:
		message.Text = e.Text
		message.Seq = e.Seq
	case AIAudio:
		message.AudioBase64 = base64.StdEncoding.EncodeToString(e.Audio)
		message.Seq = e.Seq
	case AssessmentComplete:
		message.Message = e.Message
		message.Report = e.Report
	case Error:
		message.Message = e.Message
	case Pong:
	default:
		return Message{}, fmt.Errorf("unsupported event %T", event)
	}
	return message, nil
}

func Encode(event Event) ([]byte, error) {
	message, err := ToMessage(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(message)
}

// Decode parses a wire message. Unknown types are returned as is.
func Decode(data []byte) (Message, error) {
	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		return Message{}, fmt.Errorf("error unmarshalling message: %w", err)
	}
	if message.Type == "" {
		return Message{}, fmt.Errorf("message has no type")
	}
	return message, nil
}

// Audio decodes the audio payload of an ai_audio message.
func (m Message) Audio() ([]byte, error) {
	if m.AudioBase64 == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(m.AudioBase64)
}
