package rpc

import "fmt"

// CodecName is the content-subtype the data service speaks.
const CodecName = "proto"

// Codec marshals the request and response messages in protobuf wire format. Server and client
// force it, so no protoc-generated types are needed on either side.
type Codec struct{}

// Marshal encodes v, which must be one of the service messages.
func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(message)
	if !ok {
		return nil, fmt.Errorf("marshal %T: not a data service message", v)
	}
	b, err := m.marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return b, nil
}

// Unmarshal decodes data into v. An empty payload leaves v zero.
func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(message)
	if !ok {
		return fmt.Errorf("unmarshal %T: not a data service message", v)
	}
	if err := m.unmarshal(data); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}

// Name returns CodecName.
func (Codec) Name() string {
	return CodecName
}
