package protocol

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ChatEvent is a chat message as delivered to overlay feed consumers.
type ChatEvent struct {
	Sender     string
	Text       string
	Channel    string
	ReceivedAt time.Time
}

const (
	fieldSender     = "sender"
	fieldText       = "text"
	fieldChannel    = "channel"
	fieldReceivedAt = "received_at"
)

// Encode encodes the event into bytes using protobuf
func (e *ChatEvent) Encode() ([]byte, error) {
	pbEvent, err := e.toProto()
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	data, err := proto.Marshal(pbEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return data, nil
}

// Decode decodes bytes into an event using protobuf
func (e *ChatEvent) Decode(data []byte) error {
	pbEvent := &structpb.Struct{}
	if err := proto.Unmarshal(data, pbEvent); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	if err := e.fromProto(pbEvent); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	return nil
}

func (e *ChatEvent) toProto() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldSender:     e.Sender,
		fieldText:       e.Text,
		fieldChannel:    e.Channel,
		fieldReceivedAt: e.ReceivedAt.UTC().Format(time.RFC3339Nano),
	})
}

// fromProto tolerates missing fields so older feed producers stay readable.
func (e *ChatEvent) fromProto(pbEvent *structpb.Struct) error {
	fields := pbEvent.GetFields()
	e.Sender = fields[fieldSender].GetStringValue()
	e.Text = fields[fieldText].GetStringValue()
	e.Channel = fields[fieldChannel].GetStringValue()
	e.ReceivedAt = time.Time{}

	if raw := fields[fieldReceivedAt].GetStringValue(); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", fieldReceivedAt, err)
		}
		e.ReceivedAt = ts
	}
	return nil
}
