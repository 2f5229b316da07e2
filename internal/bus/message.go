package bus

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nao1215/campusshield/internal/model"
)

// Kind is the type of a message.
type Kind string

// Canonical message vocabulary.
const (
	// KindProbe asks the page agent whether it is ready. Request/reply.
	KindProbe Kind = "probe"

	// KindActivate asks the hosting environment to start the page agent.
	// One-shot and idempotent.
	KindActivate Kind = "activate"

	// KindTriggerScan is the user's scan request from the trigger to the
	// page agent. It is acknowledged once, before the scan completes.
	KindTriggerScan Kind = "trigger-scan"

	// KindScanRequest carries a ScanRequest from the page agent to the
	// relay. The single reply carries the ScanResult.
	KindScanRequest Kind = "scan-request"

	// KindScanStart tells the result panel a scan is in progress.
	KindScanStart Kind = "scan-start"

	// KindScanResult delivers a successful verdict to the result panel.
	KindScanResult Kind = "scan-result"

	// KindScanError delivers a failure verdict to the result panel.
	KindScanError Kind = "scan-error"

	// KindSurfaceReady is sent by the result panel once it accepts input.
	KindSurfaceReady Kind = "surface-ready"

	// KindDragStart, KindDragMove and KindDragEnd carry header drag
	// gestures from the result panel to the page agent.
	KindDragStart Kind = "drag-start"
	KindDragMove  Kind = "drag-move"
	KindDragEnd   Kind = "drag-end"

	// KindRemoveSurface asks the page agent to destroy the result panel.
	KindRemoveSurface Kind = "remove-surface"

	// KindReply is the kind of every reply produced by a Replier.
	KindReply Kind = "reply"
)

// Well-known endpoint names.
const (
	NameTrigger = "trigger"
	NameHost    = "host"
	NameAgent   = "agent"
	NameRelay   = "relay"
	NameSurface = "surface"
)

// Message is the envelope exchanged between endpoints.
type Message struct {
	// ID identifies the message. A reply carries the ID of its request.
	ID string `json:"id"`

	// Kind selects the handler branch at the receiver.
	Kind Kind `json:"kind"`

	// From names the sending endpoint.
	From string `json:"from,omitempty"`

	// Payload is the JSON-encoded body.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a message with a fresh ID and a JSON-encoded payload.
// A nil payload produces a message without body.
func NewMessage(from string, kind Kind, payload any) (Message, error) {
	msg := Message{
		ID:   uuid.NewString(),
		Kind: kind,
		From: from,
	}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	msg.Payload = data
	return msg, nil
}

// MustMessage is like NewMessage but panics on encoding failure.
// It is meant for payload types that always encode.
func MustMessage(from string, kind Kind, payload any) Message {
	msg, err := NewMessage(from, kind, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Decode unmarshals the payload into v.
// A missing or malformed payload is reported as model.ErrValidation.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s message has no payload", model.ErrValidation, m.Kind)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", model.ErrValidation, m.Kind, err)
	}
	return nil
}
