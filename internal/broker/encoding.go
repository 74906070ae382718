package broker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"avl-gateway/internal/dispatcher"
	"avl-gateway/internal/pipeline"
)

type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingCBOR Encoding = "cbor"
)

func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(strings.ToLower(strings.TrimSpace(s))); e {
	case "", EncodingJSON:
		return EncodingJSON, nil
	case EncodingCBOR:
		return EncodingCBOR, nil
	default:
		return "", fmt.Errorf("unknown amqp encoding %q", s)
	}
}

func (e Encoding) ContentType() string {
	if e == EncodingCBOR {
		return "application/cbor"
	}
	return "application/json"
}

// Message is the body published for one batch.
type Message struct {
	IMEI    string                     `json:"imei" cbor:"imei"`
	Remote  string                     `json:"remote,omitempty" cbor:"remote,omitempty"`
	Final   bool                       `json:"final" cbor:"final"`
	SentAt  string                     `json:"sent_at" cbor:"sent_at"`
	Records []*pipeline.TrackingObject `json:"records" cbor:"records"`
}

func newMessage(b dispatcher.Batch, now time.Time) Message {
	return Message{
		IMEI:    b.IMEI,
		Remote:  b.Remote,
		Final:   b.Final,
		SentAt:  now.UTC().Format(time.RFC3339),
		Records: pipeline.Track(b.IMEI, b.Packets, now),
	}
}

func (e Encoding) Marshal(m Message) ([]byte, error) {
	if e == EncodingCBOR {
		return cbor.Marshal(m)
	}
	return json.Marshal(m)
}

func (e Encoding) Unmarshal(data []byte, m *Message) error {
	if e == EncodingCBOR {
		return cbor.Unmarshal(data, m)
	}
	return json.Unmarshal(data, m)
}

// RoutingKey is avl.<imei>, for binding per device on a topic exchange.
func RoutingKey(imei string) string {
	return "avl." + imei
}
