package store

import (
	"encoding/base64"
	"fmt"

	"github.com/ethpandaops/circleboard/pkg/config"
)

// codec maps logical keys and JSON documents to their stored form.
// The production codec only obfuscates; it is not encryption.
type codec interface {
	encodeKey(key string) string
	encodeValue(raw []byte) []byte
	decodeValue(data []byte) ([]byte, error)
}

func newCodec(mode string) (codec, error) {
	switch mode {
	case "", config.ModeDevelopment:
		return plainCodec{}, nil
	case config.ModeProduction:
		return base64Codec{}, nil
	default:
		return nil, fmt.Errorf("unsupported storage mode: %s", mode)
	}
}

type plainCodec struct{}

func (plainCodec) encodeKey(key string) string { return key }

func (plainCodec) encodeValue(raw []byte) []byte { return raw }

func (plainCodec) decodeValue(data []byte) ([]byte, error) { return data, nil }

// base64Codec encodes keys with the URL alphabet so they stay valid file
// names and object keys.
type base64Codec struct{}

func (base64Codec) encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (base64Codec) encodeValue(raw []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)

	return out
}

func (base64Codec) decodeValue(data []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.DecodedLen(len(data)))

	n, err := base64.StdEncoding.Decode(out, data)
	if err != nil {
		return nil, err
	}

	return out[:n], nil
}
