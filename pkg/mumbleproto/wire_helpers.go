package mumbleproto

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// appendUint32 / appendUint64 / appendInt32 / appendBool / appendString /
// appendBytes append a single optional proto2 scalar field, skipping the
// field entirely when the pointer is nil — mirroring proto2 "optional"
// presence semantics grumble's generated messages rely on
// (cmd/grumble/client.go checks `.has_*()`/nil-ness before sending).

func appendUint32(b []byte, num protowire.Number, v *uint32) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(*v))
}

func appendUint64(b []byte, num protowire.Number, v *uint64) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, *v)
}

func appendInt32(b []byte, num protowire.Number, v *int32) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(uint32(*v)))
}

func appendBool(b []byte, num protowire.Number, v *bool) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	val := uint64(0)
	if *v {
		val = 1
	}
	return protowire.AppendVarint(b, val)
}

func appendString(b []byte, num protowire.Number, v *string) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, []byte(*v))
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendFloat32(b []byte, num protowire.Number, v *float32) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(*v))
}

func appendRepeatedUint32(b []byte, num protowire.Number, vs []uint32) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	return b
}

func appendRepeatedString(b []byte, num protowire.Number, vs []string) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(v))
	}
	return b
}

func appendRepeatedInt32(b []byte, num protowire.Number, vs []int32) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(v)))
	}
	return b
}

// appendEmbedded appends a length-delimited submessage field whose body
// has already been marshaled by the caller.
func appendEmbedded(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

// field is one decoded wire field handed to a message's unmarshal switch.
type field struct {
	num     protowire.Number
	typ     protowire.Type
	varint  uint64
	fixed32 uint32
	bytes   []byte
}

// walkFields parses data into a sequence of fields, invoking fn for each.
// Unknown field numbers are left to the caller to ignore.
func walkFields(data []byte, fn func(field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("mumbleproto: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		var f field
		f.num, f.typ = num, typ

		var m int
		switch typ {
		case protowire.VarintType:
			v, k := protowire.ConsumeVarint(data)
			m = k
			f.varint = v
		case protowire.Fixed32Type:
			v, k := protowire.ConsumeFixed32(data)
			m = k
			f.fixed32 = v
		case protowire.Fixed64Type:
			v, k := protowire.ConsumeFixed64(data)
			m = k
			f.varint = v
		case protowire.BytesType:
			v, k := protowire.ConsumeBytes(data)
			m = k
			f.bytes = v
		case protowire.StartGroupType:
			k := protowire.ConsumeFieldValue(num, typ, data)
			m = k
		default:
			k := protowire.ConsumeFieldValue(num, typ, data)
			m = k
		}
		if m < 0 {
			return fmt.Errorf("mumbleproto: bad field %d: %w", num, protowire.ParseError(m))
		}
		data = data[m:]

		if typ == protowire.VarintType || typ == protowire.Fixed32Type ||
			typ == protowire.Fixed64Type || typ == protowire.BytesType {
			if err := fn(f); err != nil {
				return err
			}
		}
	}
	return nil
}

func ptrUint32(v uint64) *uint32 {
	u := uint32(v)
	return &u
}

func ptrInt32(v uint64) *int32 {
	i := int32(uint32(v))
	return &i
}

func ptrUint64(v uint64) *uint64 {
	return &v
}

func ptrBool(v uint64) *bool {
	b := v != 0
	return &b
}

func ptrString(v []byte) *string {
	s := string(v)
	return &s
}

func ptrFloat32(v uint32) *float32 {
	f := math.Float32frombits(v)
	return &f
}
