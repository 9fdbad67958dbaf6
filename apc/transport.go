package apc

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/gogpu/maptile/coords"
	"github.com/gogpu/maptile/tcs"
)

// Field numbers for the length-prefixed wire encoding used when the host
// environment has no real OS threads. The encoding deliberately mirrors a FlatBuffer-style
// fixed-offset-addressable layout: the first field is always the
// discriminant, so a receiver can dispatch on tag 1 before parsing the
// rest.
const (
	fieldKind           = protowire.Number(1)
	fieldCoordsX        = protowire.Number(2)
	fieldCoordsY        = protowire.Number(3)
	fieldCoordsZ        = protowire.Number(4)
	fieldSourceLayer    = protowire.Number(5)
	fieldLayerName      = protowire.Number(6)
	fieldBuffer         = protowire.Number(7)
	fieldFeatureIndices = protowire.Number(8)
	fieldImageWidth     = protowire.Number(9)
	fieldImageHeight    = protowire.Number(10)
	fieldImagePixels    = protowire.Number(11)
)

// EncodeMessage serializes a Message into a length-prefixed byte buffer:
// a 4-byte little-endian length prefix followed by the protobuf-wire-format
// body. The returned slice is the whole frame; EncodeMessage sends nothing
// itself, and the APC mailboxes carry Message values, not encoded frames.
func EncodeMessage(m Message) []byte {
	var body []byte
	body = protowire.AppendTag(body, fieldKind, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(m.Kind))

	body = protowire.AppendTag(body, fieldCoordsX, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(uint32(m.Coords.X)))
	body = protowire.AppendTag(body, fieldCoordsY, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(uint32(m.Coords.Y)))
	body = protowire.AppendTag(body, fieldCoordsZ, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(m.Coords.Z))

	if m.SourceLayer != "" {
		body = protowire.AppendTag(body, fieldSourceLayer, protowire.BytesType)
		body = protowire.AppendBytes(body, []byte(m.SourceLayer))
	}
	if m.LayerName != "" {
		body = protowire.AppendTag(body, fieldLayerName, protowire.BytesType)
		body = protowire.AppendBytes(body, []byte(m.LayerName))
	}
	if len(m.Buffer) > 0 {
		body = protowire.AppendTag(body, fieldBuffer, protowire.BytesType)
		body = protowire.AppendBytes(body, m.Buffer)
	}
	for _, idx := range m.FeatureIndices {
		body = protowire.AppendTag(body, fieldFeatureIndices, protowire.VarintType)
		body = protowire.AppendVarint(body, uint64(idx))
	}
	if m.Kind == KindLayerRaster {
		body = protowire.AppendTag(body, fieldImageWidth, protowire.VarintType)
		body = protowire.AppendVarint(body, uint64(m.Image.Width))
		body = protowire.AppendTag(body, fieldImageHeight, protowire.VarintType)
		body = protowire.AppendVarint(body, uint64(m.Image.Height))
		body = protowire.AppendTag(body, fieldImagePixels, protowire.BytesType)
		body = protowire.AppendBytes(body, m.Image.Pixels)
	}

	out := make([]byte, 4, 4+len(body))
	out[0] = byte(len(body))
	out[1] = byte(len(body) >> 8)
	out[2] = byte(len(body) >> 16)
	out[3] = byte(len(body) >> 24)
	return append(out, body...)
}

// DecodeMessage parses a buffer produced by EncodeMessage. It returns the
// decoded Message and the number of bytes consumed, so callers can walk a
// stream of concatenated frames.
func DecodeMessage(data []byte) (Message, int, error) {
	if len(data) < 4 {
		return Message{}, 0, fmt.Errorf("apc: short frame header (%d bytes)", len(data))
	}
	length := int(data[0]) | int(data[1])<<8 | int(data[2])<<16 | int(data[3])<<24
	if length < 0 || 4+length > len(data) {
		return Message{}, 0, fmt.Errorf("apc: frame length %d exceeds buffer", length)
	}
	body := data[4 : 4+length]

	var m Message
	var x, y int32
	var z coords.ZoomLevel
	var width, height int

	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return Message{}, 0, fmt.Errorf("apc: malformed tag: %w", protowire.ParseError(n))
		}
		body = body[n:]

		switch num {
		case fieldKind:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return Message{}, 0, fmt.Errorf("apc: malformed kind field")
			}
			m.Kind = MessageKind(v)
			body = body[n:]
		case fieldCoordsX:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return Message{}, 0, fmt.Errorf("apc: malformed coords.x field")
			}
			x = int32(uint32(v))
			body = body[n:]
		case fieldCoordsY:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return Message{}, 0, fmt.Errorf("apc: malformed coords.y field")
			}
			y = int32(uint32(v))
			body = body[n:]
		case fieldCoordsZ:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return Message{}, 0, fmt.Errorf("apc: malformed coords.z field")
			}
			z = coords.ZoomLevel(v)
			body = body[n:]
		case fieldSourceLayer:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return Message{}, 0, fmt.Errorf("apc: malformed source_layer field")
			}
			m.SourceLayer = string(v)
			body = body[n:]
		case fieldLayerName:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return Message{}, 0, fmt.Errorf("apc: malformed layer_name field")
			}
			m.LayerName = string(v)
			body = body[n:]
		case fieldBuffer:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return Message{}, 0, fmt.Errorf("apc: malformed buffer field")
			}
			m.Buffer = append([]byte(nil), v...)
			body = body[n:]
		case fieldFeatureIndices:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return Message{}, 0, fmt.Errorf("apc: malformed feature_indices field")
			}
			m.FeatureIndices = append(m.FeatureIndices, uint32(v))
			body = body[n:]
		case fieldImageWidth:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return Message{}, 0, fmt.Errorf("apc: malformed image width field")
			}
			width = int(v)
			body = body[n:]
		case fieldImageHeight:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return Message{}, 0, fmt.Errorf("apc: malformed image height field")
			}
			height = int(v)
			body = body[n:]
		case fieldImagePixels:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return Message{}, 0, fmt.Errorf("apc: malformed image pixels field")
			}
			m.Image = tcs.RGBAImage{Width: width, Height: height, Pixels: append([]byte(nil), v...)}
			body = body[n:]
		default:
			vn := protowire.ConsumeFieldValue(num, typ, body)
			if vn < 0 {
				return Message{}, 0, fmt.Errorf("apc: malformed unknown field %d", num)
			}
			body = body[vn:]
		}
	}

	m.Coords = coords.WorldTileCoords{X: x, Y: y, Z: z}
	return m, 4 + length, nil
}
