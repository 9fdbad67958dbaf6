// Package pipeline implements the processing pipelines that turn raw tile
// bytes into tessellated vector geometry or decoded raster images,
// running as AsyncProcedure bodies on APC workers.
package pipeline

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// GeomType mirrors the Mapbox Vector Tile spec's Tile.GeomType enum.
type GeomType uint32

const (
	GeomUnknown GeomType = iota
	GeomPoint
	GeomLineString
	GeomPolygon
)

// mvtFeature is one decoded feature: its geometry command stream (still
// encoded — see geometry.go) and resolved tag properties.
type mvtFeature struct {
	Geometry []uint32
	Type     GeomType
	Tags     map[string]mvtValue
}

// mvtLayer is one decoded MVT layer.
type mvtLayer struct {
	Name     string
	Extent   uint32
	Features []mvtFeature
}

// mvtValue is a decoded MVT Value union, narrowed to the Go type its tag
// carries.
type mvtValue struct {
	String string
	Float  float64
	Int    int64
	Uint   uint64
	Bool   bool
	Kind   valueKind
}

type valueKind int

const (
	valueString valueKind = iota
	valueFloat
	valueInt
	valueUint
	valueBool
)

// Any returns the value boxed as interface{}, for IndexedFeature.Properties.
func (v mvtValue) Any() any {
	switch v.Kind {
	case valueString:
		return v.String
	case valueFloat:
		return v.Float
	case valueInt:
		return v.Int
	case valueUint:
		return v.Uint
	case valueBool:
		return v.Bool
	default:
		return nil
	}
}

// Tile field numbers (Tile.layers = 3).
const mvtFieldLayers = protowire.Number(3)

// Layer field numbers.
const (
	layerFieldName    = protowire.Number(1)
	layerFieldFeature = protowire.Number(2)
	layerFieldKeys    = protowire.Number(3)
	layerFieldValues  = protowire.Number(4)
	layerFieldExtent  = protowire.Number(5)
)

// Feature field numbers.
const (
	featureFieldID       = protowire.Number(1)
	featureFieldTags     = protowire.Number(2)
	featureFieldType     = protowire.Number(3)
	featureFieldGeometry = protowire.Number(4)
)

// Value field numbers.
const (
	valueFieldString = protowire.Number(1)
	valueFieldFloat  = protowire.Number(2)
	valueFieldDouble = protowire.Number(3)
	valueFieldInt    = protowire.Number(4)
	valueFieldUint   = protowire.Number(5)
	valueFieldSint   = protowire.Number(6)
	valueFieldBool   = protowire.Number(7)
)

// decodeTile parses the top-level Tile message (layers only; the schema's
// optional/required tag details beyond what names are not
// needed by this pipeline).
func decodeTile(data []byte) ([]mvtLayer, error) {
	var layers []mvtLayer
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("pipeline: malformed tile tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		if num != mvtFieldLayers || typ != protowire.BytesType {
			vn := protowire.ConsumeFieldValue(num, typ, data)
			if vn < 0 {
				return nil, fmt.Errorf("pipeline: malformed tile field %d", num)
			}
			data = data[vn:]
			continue
		}

		body, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, fmt.Errorf("pipeline: malformed layer bytes")
		}
		data = data[n:]

		layer, err := decodeLayer(body)
		if err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

func decodeLayer(data []byte) (mvtLayer, error) {
	layer := mvtLayer{Extent: 4096}
	var keys []string
	var values []mvtValue
	type rawFeature struct {
		geometry []uint32
		typ      GeomType
		tagIdx   []uint32
	}
	var raw []rawFeature

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return mvtLayer{}, fmt.Errorf("pipeline: malformed layer tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == layerFieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return mvtLayer{}, fmt.Errorf("pipeline: malformed layer name")
			}
			layer.Name = string(v)
			data = data[n:]
		case num == layerFieldExtent:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return mvtLayer{}, fmt.Errorf("pipeline: malformed layer extent")
			}
			layer.Extent = uint32(v)
			data = data[n:]
		case num == layerFieldKeys && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return mvtLayer{}, fmt.Errorf("pipeline: malformed layer key")
			}
			keys = append(keys, string(v))
			data = data[n:]
		case num == layerFieldValues && typ == protowire.BytesType:
			body, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return mvtLayer{}, fmt.Errorf("pipeline: malformed layer value")
			}
			val, err := decodeValue(body)
			if err != nil {
				return mvtLayer{}, err
			}
			values = append(values, val)
			data = data[n:]
		case num == layerFieldFeature && typ == protowire.BytesType:
			body, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return mvtLayer{}, fmt.Errorf("pipeline: malformed feature bytes")
			}
			f, err := decodeFeatureRaw(body)
			if err != nil {
				return mvtLayer{}, err
			}
			raw = append(raw, rawFeature{geometry: f.geometry, typ: f.typ, tagIdx: f.tagIdx})
			data = data[n:]
		default:
			vn := protowire.ConsumeFieldValue(num, typ, data)
			if vn < 0 {
				return mvtLayer{}, fmt.Errorf("pipeline: malformed layer field %d", num)
			}
			data = data[vn:]
		}
	}

	for _, f := range raw {
		tags := make(map[string]mvtValue, len(f.tagIdx)/2)
		for i := 0; i+1 < len(f.tagIdx); i += 2 {
			ki, vi := f.tagIdx[i], f.tagIdx[i+1]
			if int(ki) < len(keys) && int(vi) < len(values) {
				tags[keys[ki]] = values[vi]
			}
		}
		layer.Features = append(layer.Features, mvtFeature{Geometry: f.geometry, Type: f.typ, Tags: tags})
	}
	return layer, nil
}

type rawFeatureFields struct {
	geometry []uint32
	typ      GeomType
	tagIdx   []uint32
}

func decodeFeatureRaw(data []byte) (rawFeatureFields, error) {
	var out rawFeatureFields
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return out, fmt.Errorf("pipeline: malformed feature tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case featureFieldType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return out, fmt.Errorf("pipeline: malformed feature type")
			}
			out.typ = GeomType(v)
			data = data[n:]
		case featureFieldTags:
			vs, n, err := consumePackedOrRepeatedVarint(typ, data)
			if err != nil {
				return out, err
			}
			out.tagIdx = append(out.tagIdx, vs...)
			data = data[n:]
		case featureFieldGeometry:
			vs, n, err := consumePackedOrRepeatedVarint(typ, data)
			if err != nil {
				return out, err
			}
			out.geometry = append(out.geometry, vs...)
			data = data[n:]
		default:
			vn := protowire.ConsumeFieldValue(num, typ, data)
			if vn < 0 {
				return out, fmt.Errorf("pipeline: malformed feature field %d", num)
			}
			data = data[vn:]
		}
	}
	return out, nil
}

// consumePackedOrRepeatedVarint decodes either a packed (length-delimited)
// or unpacked (single varint per tag occurrence) repeated uint32 field,
// returning the values decoded from this one occurrence plus bytes
// consumed from data (the tag itself already having been consumed by the
// caller).
func consumePackedOrRepeatedVarint(typ protowire.Type, data []byte) ([]uint32, int, error) {
	if typ == protowire.BytesType {
		body, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, 0, fmt.Errorf("pipeline: malformed packed varint field")
		}
		var out []uint32
		for len(body) > 0 {
			v, vn := protowire.ConsumeVarint(body)
			if vn < 0 {
				return nil, 0, fmt.Errorf("pipeline: malformed packed varint element")
			}
			out = append(out, uint32(v))
			body = body[vn:]
		}
		return out, n, nil
	}
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return nil, 0, fmt.Errorf("pipeline: malformed varint field")
	}
	return []uint32{uint32(v)}, n, nil
}

func decodeValue(data []byte) (mvtValue, error) {
	var v mvtValue
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return v, fmt.Errorf("pipeline: malformed value tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case valueFieldString:
			s, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return v, fmt.Errorf("pipeline: malformed value string")
			}
			v = mvtValue{Kind: valueString, String: string(s)}
			data = data[n:]
		case valueFieldFloat:
			f, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return v, fmt.Errorf("pipeline: malformed value float")
			}
			v = mvtValue{Kind: valueFloat, Float: float64(math.Float32frombits(f))}
			data = data[n:]
		case valueFieldDouble:
			f, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return v, fmt.Errorf("pipeline: malformed value double")
			}
			v = mvtValue{Kind: valueFloat, Float: math.Float64frombits(f)}
			data = data[n:]
		case valueFieldInt:
			iv, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return v, fmt.Errorf("pipeline: malformed value int")
			}
			v = mvtValue{Kind: valueInt, Int: int64(iv)}
			data = data[n:]
		case valueFieldUint:
			uv, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return v, fmt.Errorf("pipeline: malformed value uint")
			}
			v = mvtValue{Kind: valueUint, Uint: uv}
			data = data[n:]
		case valueFieldSint:
			sv, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return v, fmt.Errorf("pipeline: malformed value sint")
			}
			v = mvtValue{Kind: valueInt, Int: protowire.DecodeZigZag(sv)}
			data = data[n:]
		case valueFieldBool:
			bv, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return v, fmt.Errorf("pipeline: malformed value bool")
			}
			v = mvtValue{Kind: valueBool, Bool: bv != 0}
			data = data[n:]
		default:
			vn := protowire.ConsumeFieldValue(num, typ, data)
			if vn < 0 {
				return v, fmt.Errorf("pipeline: malformed value field %d", num)
			}
			data = data[vn:]
		}
	}
	return v, nil
}
