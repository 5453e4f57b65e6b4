package wire

import (
	"fmt"
	"strings"
)

// Codec converts motor commands to and from datagram payloads.
type Codec interface {
	Encode(cmd MotorCommand) ([]byte, error)
	Decode(data []byte) (MotorCommand, error)
}

// Format names a wire encoding.
type Format string

const (
	FormatFlatBuffers Format = "flatbuffers"
	FormatJSON        Format = "json"
)

// ParseFormat maps a configuration value onto a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatFlatBuffers, "":
		return FormatFlatBuffers, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown wire format %q", s)
	}
}

// NewCodec returns the codec for a configured format name.
func NewCodec(format string) (Codec, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if f == FormatJSON {
		return JSONCodec{}, nil
	}
	return FlatBuffersCodec{}, nil
}
