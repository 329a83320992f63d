package dclass

import (
	"encoding/binary"
	"fmt"
)

// FieldValues maps a field name to its last-applied argument tuple
// (spec.md §3: "for atomic fields the value is an ordered tuple of
// arguments; for parameter fields it is a single value"). A single
// Value of TagTuple/TagList already captures the atomic-argument-tuple
// shape, so FieldValues is simply name -> Value.
type FieldValues map[string]Value

// PackRequired packs every required field of class in inherited-field
// order, using the supplied value when present and the field's default
// otherwise (original_source/database_object.py: packRequired).
func PackRequired(c *Class, fields FieldValues) []byte {
	var out []byte
	for _, f := range c.Fields {
		if !f.IsRequired() {
			continue
		}
		v, ok := fields[f.Name]
		if !ok {
			v = f.Default
		}
		out = append(out, Pack(v)...)
	}
	return out
}

// PackOther packs every db, non-required field that is present in
// fields, each prefixed with its numeric field id, preceded by a
// uint16 count (original_source/database_object.py: packOther).
//
// The Python source calls packDefaultValue() a second time right after
// packing the field's own arguments; spec.md §9 flags this as probably
// unintentional padding and tells implementers to record, not guess.
// This port does NOT emit a second value after the field's arguments —
// doing so would desync a reader that expects exactly one value per
// field id — and records the discrepancy here rather than reproducing it.
func PackOther(c *Class, fields FieldValues) []byte {
	var body []byte
	var count uint16
	for _, f := range c.Fields {
		if f.IsRequired() || !f.IsDB() {
			continue
		}
		v, ok := fields[f.Name]
		if !ok {
			continue
		}
		body = binary.LittleEndian.AppendUint16(body, uint16(f.Number))
		body = append(body, Pack(v)...)
		count++
	}
	out := binary.LittleEndian.AppendUint16(nil, count)
	return append(out, body...)
}

// PackField packs a single named field's value.
func PackField(c *Class, fieldName string, v Value) ([]byte, error) {
	f := c.FieldByName(fieldName)
	if f == nil {
		return nil, fmt.Errorf("dclass: class %q has no field %q", c.Name, fieldName)
	}
	return Pack(v), nil
}

// UnpackField decodes a single field's packed bytes back to a Value.
func UnpackField(c *Class, fieldName string, data []byte) (Value, error) {
	f := c.FieldByName(fieldName)
	if f == nil {
		return Value{}, fmt.Errorf("dclass: class %q has no field %q", c.Name, fieldName)
	}
	v, _, err := Unpack(data)
	if err != nil {
		return Value{}, fmt.Errorf("unpacking field %q: %w", fieldName, err)
	}
	return v, nil
}

// DefaultFieldValues returns the default-packed value for every db
// field of c, used by CreateStoredObject to seed a new object before
// caller-supplied overrides are applied (spec.md §4.4).
func DefaultFieldValues(c *Class) FieldValues {
	fv := make(FieldValues, len(c.Fields))
	for _, f := range c.Fields {
		if f.IsDB() {
			fv[f.Name] = f.Default
		}
	}
	return fv
}
