package amod

import (
	"fmt"
	"strconv"
)

// Type is the declared type of a module option.
type Type int

const (
	TypeNone        Type = 0
	TypeInt         Type = 1
	TypeString      Type = 2
	TypeUnsignedInt Type = 3
	TypeBool        Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeString:
		return "string"
	case TypeUnsignedInt:
		return "unsigned int"
	case TypeBool:
		return "bool"
	default:
		return "none"
	}
}

// Value is an option value. It is one of Int, String, UInt, Bool,
// IntArray, StringArray, UIntArray or BoolArray.
type Value interface {
	Type() Type
	IsArray() bool
	Len() int
	fmt.Stringer
}

type (
	Int         int64
	String      string
	UInt        uint64
	Bool        bool
	IntArray    []int64
	StringArray []string
	UIntArray   []uint64
	BoolArray   []bool
)

func (Int) Type() Type         { return TypeInt }
func (String) Type() Type      { return TypeString }
func (UInt) Type() Type        { return TypeUnsignedInt }
func (Bool) Type() Type        { return TypeBool }
func (IntArray) Type() Type    { return TypeInt }
func (StringArray) Type() Type { return TypeString }
func (UIntArray) Type() Type   { return TypeUnsignedInt }
func (BoolArray) Type() Type   { return TypeBool }

func (Int) IsArray() bool         { return false }
func (String) IsArray() bool      { return false }
func (UInt) IsArray() bool        { return false }
func (Bool) IsArray() bool        { return false }
func (IntArray) IsArray() bool    { return true }
func (StringArray) IsArray() bool { return true }
func (UIntArray) IsArray() bool   { return true }
func (BoolArray) IsArray() bool   { return true }

func (Int) Len() int           { return 1 }
func (String) Len() int        { return 1 }
func (UInt) Len() int          { return 1 }
func (Bool) Len() int          { return 1 }
func (a IntArray) Len() int    { return len(a) }
func (a StringArray) Len() int { return len(a) }
func (a UIntArray) Len() int   { return len(a) }
func (a BoolArray) Len() int   { return len(a) }

func (v Int) String() string         { return strconv.FormatInt(int64(v), 10) }
func (v String) String() string      { return string(v) }
func (v UInt) String() string        { return strconv.FormatUint(uint64(v), 10) }
func (v Bool) String() string        { return strconv.FormatBool(bool(v)) }
func (a IntArray) String() string    { return fmt.Sprint([]int64(a)) }
func (a StringArray) String() string { return fmt.Sprint([]string(a)) }
func (a UIntArray) String() string   { return fmt.Sprint([]uint64(a)) }
func (a BoolArray) String() string   { return fmt.Sprint([]bool(a)) }

// ParseScalar parses a user-supplied string as a scalar of type t.
func ParseScalar(t Type, s string) (Value, error) {
	switch t {
	case TypeInt:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return Int(v), nil
	case TypeString:
		return String(s), nil
	case TypeUnsignedInt:
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return UInt(v), nil
	case TypeBool:
		switch s {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
		return nil, fmt.Errorf("%q is neither true nor false", s)
	default:
		return nil, fmt.Errorf("unsupported option type %d", t)
	}
}

// ParseArray parses user-supplied strings as an array of type t. On failure
// it returns the index of the offending element.
func ParseArray(t Type, elems []string) (Value, int, error) {
	switch t {
	case TypeInt:
		out := make(IntArray, len(elems))
		for i, s := range elems {
			v, err := ParseScalar(t, s)
			if err != nil {
				return nil, i, err
			}
			out[i] = int64(v.(Int))
		}
		return out, -1, nil
	case TypeString:
		return StringArray(append([]string(nil), elems...)), -1, nil
	case TypeUnsignedInt:
		out := make(UIntArray, len(elems))
		for i, s := range elems {
			v, err := ParseScalar(t, s)
			if err != nil {
				return nil, i, err
			}
			out[i] = uint64(v.(UInt))
		}
		return out, -1, nil
	case TypeBool:
		out := make(BoolArray, len(elems))
		for i, s := range elems {
			v, err := ParseScalar(t, s)
			if err != nil {
				return nil, i, err
			}
			out[i] = bool(v.(Bool))
		}
		return out, -1, nil
	default:
		return nil, -1, fmt.Errorf("unsupported option array type %d", t)
	}
}

// Truncate limits an array value to n elements. Scalars are returned as is.
func Truncate(v Value, n int) Value {
	if n < 0 || !v.IsArray() || v.Len() <= n {
		return v
	}
	switch a := v.(type) {
	case IntArray:
		return a[:n]
	case StringArray:
		return a[:n]
	case UIntArray:
		return a[:n]
	case BoolArray:
		return a[:n]
	}
	return v
}
