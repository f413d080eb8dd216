// Copyright © 2018 The ELPS authors

package bytecode

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Units are encoded in protobuf wire format.  Field numbers:
//
//	Unit:   1 name, 2 method (repeated, message)
//	Method: 1 name, 2 param (repeated), 3 result, 4 locals, 5 instr (repeated, message)
//	Instr:  1 op, 2 operand (zigzag), 3 const (message), 4 owner, 5 name
//	Const:  1 kind, 2 int (zigzag), 3 double (fixed64), 4 str

// ErrMalformed is returned when a class file cannot be decoded.
var ErrMalformed = errors.New("malformed class file")

// Marshal encodes u.
func Marshal(u *Unit) []byte {
	var b []byte
	b = appendString(b, 1, u.Name)
	for _, m := range u.Methods {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalMethod(m))
	}
	return b
}

func marshalMethod(m *Method) []byte {
	var b []byte
	b = appendString(b, 1, m.Name)
	for _, p := range m.Params {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, p)
	}
	b = appendString(b, 3, m.Result)
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Locals))
	for _, in := range m.Code {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalInstr(in))
	}
	return b
}

func marshalInstr(in Instr) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(in.Op))
	if in.Operand != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(in.Operand)))
	}
	if in.Op == CONST {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalConst(in.Const))
	}
	b = appendString(b, 4, in.Owner)
	b = appendString(b, 5, in.Name)
	return b
}

func marshalConst(c Const) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.Kind))
	switch c.Kind {
	case ConstInt, ConstBool:
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(c.Int))
	case ConstDouble:
		b = protowire.AppendTag(b, 3, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(c.Double))
	case ConstString:
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, c.Str)
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// Unmarshal decodes a unit encoded by Marshal.
func Unmarshal(b []byte) (*Unit, error) {
	u := &Unit{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			u.Name = s
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			m, err := unmarshalMethod(v)
			if err != nil {
				return 0, err
			}
			u.Methods = append(u.Methods, m)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func unmarshalMethod(b []byte) (*Method, error) {
	m := &Method{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			m.Name = s
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			m.Params = append(m.Params, s)
			return n, nil
		case num == 3 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			m.Result = s
			return n, nil
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Locals = int(v)
			return n, nil
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			in, err := unmarshalInstr(v)
			if err != nil {
				return 0, err
			}
			m.Code = append(m.Code, in)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return m, err
}

func unmarshalInstr(b []byte) (Instr, error) {
	var in Instr
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			in.Op = Opcode(v)
			if n > 0 && !in.Op.Valid() {
				return 0, fmt.Errorf("%w: invalid opcode %d", ErrMalformed, v)
			}
			return n, nil
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			in.Operand = int(protowire.DecodeZigZag(v))
			return n, nil
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			c, err := unmarshalConst(v)
			if err != nil {
				return 0, err
			}
			in.Const = c
			return n, nil
		case num == 4 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			in.Owner = s
			return n, nil
		case num == 5 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			in.Name = s
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return in, err
}

func unmarshalConst(b []byte) (Const, error) {
	var c Const
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			c.Kind = ConstKind(v)
			if n > 0 && c.Kind > ConstString {
				return 0, fmt.Errorf("%w: invalid constant kind %d", ErrMalformed, v)
			}
			return n, nil
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			c.Int = protowire.DecodeZigZag(v)
			return n, nil
		case num == 3 && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			c.Double = math.Float64frombits(v)
			return n, nil
		case num == 4 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			c.Str = s
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return c, err
}

// consumeFields calls fn for every field of the message b.  fn returns the
// number of bytes of b consumed by the field value, negative on error.
func consumeFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}
