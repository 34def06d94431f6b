// Package protocol defines the JSON frames exchanged over a session channel.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame types.
const (
	TypeAudio        = "audio"
	TypeFeedback     = "feedback"
	TypeGuidance     = "guidance"
	TypeConfirmation = "confirmation"
)

// FeedbackReceived is the confirmation text sent for every feedback frame.
const FeedbackReceived = "Feedback received"

// ErrMalformedFrame is returned when a frame is not a JSON object.
var ErrMalformedFrame = errors.New("malformed frame")

// Event is a decoded inbound frame. Exactly one of Audio and Feedback is set
// for known types; both are nil for unknown types.
type Event struct {
	Type     string
	Audio    *Audio
	Feedback *Feedback
}

// Audio carries one transcribed utterance.
type Audio struct {
	Transcript string `json:"transcript"`
}

// Feedback judges a previously emitted suggestion.
type Feedback struct {
	ResponseID string `json:"response_id"`
	IsHelpful  bool   `json:"is_helpful"`
}

type envelope struct {
	Type string `json:"type"`
}

// Decode parses an inbound frame. Unknown types decode without error so the
// caller can ignore them.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	ev := Event{Type: env.Type}
	switch env.Type {
	case TypeAudio:
		var a Audio
		if err := json.Unmarshal(data, &a); err != nil {
			return Event{}, fmt.Errorf("%w: audio: %v", ErrMalformedFrame, err)
		}
		ev.Audio = &a
	case TypeFeedback:
		var f Feedback
		if err := json.Unmarshal(data, &f); err != nil {
			return Event{}, fmt.Errorf("%w: feedback: %v", ErrMalformedFrame, err)
		}
		ev.Feedback = &f
	}
	return ev, nil
}

// Guidance is the outbound suggestion frame.
type Guidance struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id"`
	Text       string `json:"text"`
}

// Confirmation acknowledges a feedback frame.
type Confirmation struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewGuidance(responseID, text string) Guidance {
	return Guidance{Type: TypeGuidance, ResponseID: responseID, Text: text}
}

func NewConfirmation() Confirmation {
	return Confirmation{Type: TypeConfirmation, Message: FeedbackReceived}
}
