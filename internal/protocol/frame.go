// Package protocol decodes the 2-byte sensor wire format and reassembles
// frames from an arbitrarily chunked byte stream.
//
// Each frame is 16 bits, big-endian:
//
//	[type:2][sensor id:6][temperature:8]
//
// Only TypeReading frames carry a temperature reading; the other type codes
// decode successfully and are ignored downstream.
package protocol

import (
	"errors"

	"github.com/luki/sensorstream/internal/sensor"
)

// FrameSize is the length of one frame on the wire.
const FrameSize = 2

// TypeReading is the message type of a temperature reading frame.
const TypeReading uint8 = 2

// ErrInsufficientData is returned by Decode when fewer than FrameSize bytes
// are available. Callers should wait for more bytes rather than fail.
var ErrInsufficientData = errors.New("insufficient data for frame")

// Frame is a decoded wire frame.
type Frame struct {
	Type        uint8 // 0-3
	SensorID    sensor.ID
	Temperature uint8
}

// IsReading reports whether the frame carries a temperature reading.
func (f Frame) IsReading() bool {
	return f.Type == TypeReading
}

// Decode decodes the first FrameSize bytes of b.
func Decode(b []byte) (Frame, error) {
	if len(b) < FrameSize {
		return Frame{}, ErrInsufficientData
	}
	v := uint16(b[0])<<8 | uint16(b[1])
	return Frame{
		Type:        uint8(v>>14) & 0b11,
		SensorID:    sensor.ID(v>>8) & 0b111111,
		Temperature: uint8(v & 0xFF),
	}, nil
}

// Encode packs f into its wire form. Fields wider than their bit width are
// truncated.
func Encode(f Frame) [FrameSize]byte {
	v := uint16(f.Type&0b11)<<14 | uint16(f.SensorID&0b111111)<<8 | uint16(f.Temperature)
	return [FrameSize]byte{byte(v >> 8), byte(v)}
}

// EncodeReading is Encode for a TypeReading frame.
func EncodeReading(id sensor.ID, temperature uint8) [FrameSize]byte {
	return Encode(Frame{Type: TypeReading, SensorID: id, Temperature: temperature})
}
