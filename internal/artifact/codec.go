// Package artifact persists learned merges, vocabularies and caches in a
// vocabulary directory described by a checksummed manifest.
package artifact

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Codec encodes artifact payloads.
type Codec interface {
	Name() string
	// Ext is the file extension without the dot.
	Ext() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Codec names.
const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// CodecFor returns the codec registered under name. An empty name selects
// JSON.
func CodecFor(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecJSON:
		return jsonCodec{}, nil
	case CodecCBOR:
		return newCBORCodec()
	default:
		return nil, fmt.Errorf("unknown artifact format %q (want %s|%s)", name, CodecJSON, CodecCBOR)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecJSON }
func (jsonCodec) Ext() string  { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}

	return append(b, '\n'), nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// cborCodec uses canonical encoding so that equal values produce equal
// bytes and therefore equal digests.
type cborCodec struct {
	enc cbor.EncMode
}

func newCBORCodec() (Codec, error) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}

	return cborCodec{enc: enc}, nil
}

func (cborCodec) Name() string { return CodecCBOR }
func (cborCodec) Ext() string  { return "cbor" }

func (c cborCodec) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}
