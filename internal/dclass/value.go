package dclass

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Tag identifies the wire shape of a packed Value (spec.md §7).
type Tag uint8

const (
	TagNone Tag = iota
	TagBool
	TagUint64
	TagInt64
	TagFloat64
	TagString
	TagBlob
	TagTuple
	TagList
	TagDict
)

// Value is the in-memory representation of a field argument or
// parameter value. Exactly one of the typed fields is meaningful,
// selected by Tag — this is the tagged-variant value type called for
// in spec.md §9 "Dynamic field values".
type Value struct {
	Tag   Tag
	Bool  bool
	Int   int64
	UInt  uint64
	Float float64
	Str   string
	Blob  []byte
	List  []Value          // TagTuple / TagList
	Dict  []DictEntry      // TagDict, alternating key/value preserved as pairs
}

// DictEntry is one key/value pair of a TagDict value.
type DictEntry struct {
	Key   Value
	Value Value
}

func None() Value                { return Value{Tag: TagNone} }
func Bool(b bool) Value          { return Value{Tag: TagBool, Bool: b} }
func Uint64v(u uint64) Value     { return Value{Tag: TagUint64, UInt: u} }
func Int64v(i int64) Value       { return Value{Tag: TagInt64, Int: i} }
func Float64v(f float64) Value   { return Value{Tag: TagFloat64, Float: f} }
func Str(s string) Value         { return Value{Tag: TagString, Str: s} }
func Blob(b []byte) Value        { return Value{Tag: TagBlob, Blob: b} }
func Tuple(vs ...Value) Value    { return Value{Tag: TagTuple, List: vs} }
func ListOf(vs ...Value) Value   { return Value{Tag: TagList, List: vs} }

// Pack serializes v to the tagged-union wire encoding described in
// spec.md §7. Composites carry a uint32 length followed by the
// recursively-encoded children; dicts alternate key/value.
func Pack(v Value) []byte {
	var buf []byte
	buf = append(buf, byte(v.Tag))
	switch v.Tag {
	case TagNone:
	case TagBool:
		if v.Bool {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case TagUint64:
		buf = binary.LittleEndian.AppendUint64(buf, v.UInt)
	case TagInt64:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.Int))
	case TagFloat64:
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.Float))
	case TagString:
		buf = appendLenPrefixed(buf, []byte(v.Str))
	case TagBlob:
		buf = appendLenPrefixed(buf, v.Blob)
	case TagTuple, TagList:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.List)))
		for _, child := range v.List {
			buf = append(buf, Pack(child)...)
		}
	case TagDict:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.Dict)))
		for _, entry := range v.Dict {
			buf = append(buf, Pack(entry.Key)...)
			buf = append(buf, Pack(entry.Value)...)
		}
	}
	return buf
}

func appendLenPrefixed(buf, data []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

// Unpack decodes one Value from the front of data and returns the
// remaining bytes. It is the structural inverse of Pack and is used by
// every backend that persists Values through the tagged-union encoding.
func Unpack(data []byte) (Value, []byte, error) {
	if len(data) < 1 {
		return Value{}, nil, fmt.Errorf("unpack: empty buffer")
	}
	tag := Tag(data[0])
	data = data[1:]
	switch tag {
	case TagNone:
		return Value{Tag: TagNone}, data, nil
	case TagBool:
		if len(data) < 1 {
			return Value{}, nil, fmt.Errorf("unpack bool: short buffer")
		}
		return Value{Tag: TagBool, Bool: data[0] != 0}, data[1:], nil
	case TagUint64:
		if len(data) < 8 {
			return Value{}, nil, fmt.Errorf("unpack uint64: short buffer")
		}
		return Value{Tag: TagUint64, UInt: binary.LittleEndian.Uint64(data)}, data[8:], nil
	case TagInt64:
		if len(data) < 8 {
			return Value{}, nil, fmt.Errorf("unpack int64: short buffer")
		}
		return Value{Tag: TagInt64, Int: int64(binary.LittleEndian.Uint64(data))}, data[8:], nil
	case TagFloat64:
		if len(data) < 8 {
			return Value{}, nil, fmt.Errorf("unpack float64: short buffer")
		}
		return Value{Tag: TagFloat64, Float: math.Float64frombits(binary.LittleEndian.Uint64(data))}, data[8:], nil
	case TagString:
		s, rest, err := unpackLenPrefixed(data)
		if err != nil {
			return Value{}, nil, fmt.Errorf("unpack string: %w", err)
		}
		return Value{Tag: TagString, Str: string(s)}, rest, nil
	case TagBlob:
		b, rest, err := unpackLenPrefixed(data)
		if err != nil {
			return Value{}, nil, fmt.Errorf("unpack blob: %w", err)
		}
		return Value{Tag: TagBlob, Blob: b}, rest, nil
	case TagTuple, TagList:
		if len(data) < 4 {
			return Value{}, nil, fmt.Errorf("unpack list: short buffer")
		}
		n := binary.LittleEndian.Uint32(data)
		data = data[4:]
		children := make([]Value, 0, n)
		for range n {
			var child Value
			var err error
			child, data, err = Unpack(data)
			if err != nil {
				return Value{}, nil, fmt.Errorf("unpack list element: %w", err)
			}
			children = append(children, child)
		}
		return Value{Tag: tag, List: children}, data, nil
	case TagDict:
		if len(data) < 4 {
			return Value{}, nil, fmt.Errorf("unpack dict: short buffer")
		}
		n := binary.LittleEndian.Uint32(data)
		data = data[4:]
		entries := make([]DictEntry, 0, n)
		for range n {
			var key, val Value
			var err error
			key, data, err = Unpack(data)
			if err != nil {
				return Value{}, nil, fmt.Errorf("unpack dict key: %w", err)
			}
			val, data, err = Unpack(data)
			if err != nil {
				return Value{}, nil, fmt.Errorf("unpack dict value: %w", err)
			}
			entries = append(entries, DictEntry{Key: key, Value: val})
		}
		return Value{Tag: TagDict, Dict: entries}, data, nil
	default:
		return Value{}, nil, fmt.Errorf("unpack: unknown tag %d", tag)
	}
}

func unpackLenPrefixed(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("short length prefix")
	}
	n := binary.LittleEndian.Uint32(data)
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, fmt.Errorf("short payload: want %d have %d", n, len(data))
	}
	return data[:n], data[n:], nil
}
