package riffle

import (
	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// -----------------------------------------------------------------------------
// Bytes Codec
// -----------------------------------------------------------------------------

// bytesCodec passes record payloads through untouched.
type bytesCodec struct{}

// NewBytesCodec creates the identity codec: Decode returns the payload
// as []byte. This is the default codec for Open.
func NewBytesCodec() Codec {
	return &bytesCodec{}
}

func (b *bytesCodec) Name() string {
	return "bytes"
}

func (b *bytesCodec) Decode(data []byte) (any, error) {
	return data, nil
}

// -----------------------------------------------------------------------------
// JSON Codec
// -----------------------------------------------------------------------------

// jsonCodec decodes each payload as one JSON document.
type jsonCodec struct{}

// NewJSONCodec creates a codec that unmarshals each record payload as a
// single JSON document into an untyped value.
func NewJSONCodec() Codec {
	return &jsonCodec{}
}

func (j *jsonCodec) Name() string {
	return "json"
}

func (j *jsonCodec) Decode(data []byte) (any, error) {
	var record any
	if err := jsonAPI.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return record, nil
}
