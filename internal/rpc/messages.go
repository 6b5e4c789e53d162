package rpc

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/FridgeSeal/swarm/internal/article"
)

// message is implemented by every request and response type. Field numbers match the swarm
// package messages, so stock protobuf clients interoperate.
type message interface {
	marshal() ([]byte, error)
	unmarshal([]byte) error
}

// HealthcheckRequest carries no fields.
type HealthcheckRequest struct{}

func (*HealthcheckRequest) marshal() ([]byte, error) { return nil, nil }

func (*HealthcheckRequest) unmarshal(b []byte) error {
	return walkFields(b, func(protowire.Number, protowire.Type, []byte) (int, error) { return -1, nil })
}

// HealthcheckResponse reports liveness.
type HealthcheckResponse struct {
	IsHealthy bool
	Message   string
}

func (m *HealthcheckResponse) marshal() ([]byte, error) {
	var b []byte
	b = appendBool(b, 1, m.IsHealthy)
	b = appendString(b, 2, m.Message)
	return b, nil
}

func (m *HealthcheckResponse) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBool(typ, b, &m.IsHealthy)
		case 2:
			return consumeString(typ, b, &m.Message)
		}
		return -1, nil
	})
}

// WriteDataRequest stores Data under Key.
type WriteDataRequest struct {
	Key  []byte
	Data string
}

func (m *WriteDataRequest) marshal() ([]byte, error) {
	var b []byte
	b = appendBytes(b, 1, m.Key)
	b = appendString(b, 2, m.Data)
	return b, nil
}

func (m *WriteDataRequest) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Key)
		case 2:
			return consumeString(typ, b, &m.Data)
		}
		return -1, nil
	})
}

// WriteDataResponse returns the replaced value, or Data for a new key.
type WriteDataResponse struct {
	WasSuccessful bool
	Reply         string
}

func (m *WriteDataResponse) marshal() ([]byte, error) {
	var b []byte
	b = appendBool(b, 1, m.WasSuccessful)
	b = appendString(b, 2, m.Reply)
	return b, nil
}

func (m *WriteDataResponse) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBool(typ, b, &m.WasSuccessful)
		case 2:
			return consumeString(typ, b, &m.Reply)
		}
		return -1, nil
	})
}

// ReadDataRequest reads Key.
type ReadDataRequest struct {
	Key []byte
}

func (m *ReadDataRequest) marshal() ([]byte, error) {
	return appendBytes(nil, 1, m.Key), nil
}

func (m *ReadDataRequest) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeBytes(typ, b, &m.Key)
		}
		return -1, nil
	})
}

// ReadDataResponse holds the stored text.
type ReadDataResponse struct {
	Data string
}

func (m *ReadDataResponse) marshal() ([]byte, error) {
	return appendString(nil, 1, m.Data), nil
}

func (m *ReadDataResponse) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeString(typ, b, &m.Data)
		}
		return -1, nil
	})
}

// ReadArticleRequest reads the article stored under ID.
type ReadArticleRequest struct {
	ID string
}

func (m *ReadArticleRequest) marshal() ([]byte, error) {
	return appendString(nil, 1, m.ID), nil
}

func (m *ReadArticleRequest) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeString(typ, b, &m.ID)
		}
		return -1, nil
	})
}

// ReadArticleResponse holds the decoded article record. On the wire the record is an embedded
// message in the article store encoding.
type ReadArticleResponse struct {
	Article article.Record
}

func (m *ReadArticleResponse) marshal() ([]byte, error) {
	raw, err := article.Encode(m.Article)
	if err != nil {
		return nil, fmt.Errorf("encode article: %w", err)
	}
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	return protowire.AppendBytes(b, raw), nil
}

func (m *ReadArticleResponse) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		var raw []byte
		n, err := consumeBytes(typ, b, &raw)
		if err != nil || n < 0 {
			return n, err
		}
		rec, err := article.Decode(raw)
		if err != nil {
			return 0, fmt.Errorf("decode article: %w", err)
		}
		m.Article = rec
		return n, nil
	})
}

var errInvalidUTF8 = errors.New("string field is not valid utf-8")

// walkFields calls fn for each field in b. fn returns the bytes it consumed, or -1 to skip the
// field as unknown.
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if n < 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return nil
}

// Proto3 scalars: zero values are omitted.

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func consumeBool(typ protowire.Type, b []byte, dst *bool) (int, error) {
	if typ != protowire.VarintType {
		return -1, nil
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v != 0
	return n, nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, error) {
	if typ != protowire.BytesType {
		return -1, nil
	}
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	if !utf8.ValidString(v) {
		return 0, errInvalidUTF8
	}
	*dst = v
	return n, nil
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) (int, error) {
	if typ != protowire.BytesType {
		return -1, nil
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = append([]byte(nil), v...)
	return n, nil
}
