package tally

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/shamaton/msgpack/v2"
)

var (
	ErrNotSequence = errors.New("payload is not a sequence")
)

type PayloadMarshaler interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	ContentType() string
}

type JsonMarshaler struct{}

func (JsonMarshaler) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JsonMarshaler) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JsonMarshaler) ContentType() string { return "application/json" }

type MsgpackMarshaler struct{}

func (MsgpackMarshaler) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (MsgpackMarshaler) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

func (MsgpackMarshaler) ContentType() string { return "application/msgpack" }

var (
	jsonMarshaler    PayloadMarshaler = JsonMarshaler{}
	msgpackMarshaler PayloadMarshaler = MsgpackMarshaler{}
)

// MarshalerFor 按 content-type 选择编解码器，未知类型返回 nil
func MarshalerFor(contentType string) PayloadMarshaler {
	switch contentType {
	case "", "application/json", "text/json":
		return jsonMarshaler
	case "application/msgpack", "application/x-msgpack", "application/vnd.msgpack":
		return msgpackMarshaler
	}
	return nil
}

// DecodeSequence 把顶层数组解码为 []any，顶层不是数组时返回 ErrNotSequence
func DecodeSequence(m PayloadMarshaler, data []byte) ([]any, error) {
	var raw any
	if err := m.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode sequence: %w", err)
	}
	seq, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotSequence, raw)
	}
	return seq, nil
}
