package link

import (
	"strconv"
)

// ValueKind identifies which representation a Value was last written in.
type ValueKind uint8

const (
	ValNull ValueKind = iota
	ValInt
	ValReal
	ValString
	ValBytes
	ValVariant
)

// Value holds one typed value plus lazily-computed alternate
// representations. The alternate representations are invalidated on every
// write (see invalidateCache); they are filled in on demand by the typed
// Read accessors and then kept until the next write.
//
// This mirrors spec.md's coercion table: Int<->Real is widening/truncating,
// everything converts to String, String parses back to numbers (failing
// closed with ok=false), and Variant converts via its runtime type tag.
type Value struct {
	kind ValueKind

	i int64
	r float64
	s string
	b []byte

	variantType string
	variantData []byte

	cache cachedConversions
}

type cachedConversions struct {
	intOK, realOK, stringOK, bytesOK bool
	i                                int64
	r                                float64
	s                                string
	b                                []byte
}

func NullValue() Value { return Value{kind: ValNull} }

func IntValue(v int64) Value { return Value{kind: ValInt, i: v} }

func RealValue(v float64) Value { return Value{kind: ValReal, r: v} }

func StringValue(v string) Value { return Value{kind: ValString, s: v} }

func BytesValue(v []byte) Value {
	cp := append([]byte(nil), v...)
	return Value{kind: ValBytes, b: cp}
}

func VariantValue(typeName string, data []byte) Value {
	cp := append([]byte(nil), data...)
	return Value{kind: ValVariant, variantType: typeName, variantData: cp}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) VariantType() string { return v.variantType }

// Equal reports whether two values are the same representation and
// content, used for the ignore-same-value check. It does not coerce.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValNull:
		return true
	case ValInt:
		return v.i == o.i
	case ValReal:
		return v.r == o.r
	case ValString:
		return v.s == o.s
	case ValBytes:
		return string(v.b) == string(o.b)
	case ValVariant:
		return v.variantType == o.variantType && string(v.variantData) == string(o.variantData)
	}
	return false
}

// AsInt returns the value coerced to int64. ok is false when the
// conversion is impossible (e.g. a non-numeric string).
func (v *Value) AsInt() (int64, bool) {
	if v.cache.intOK {
		return v.cache.i, true
	}
	var out int64
	var ok bool
	switch v.kind {
	case ValInt:
		out, ok = v.i, true
	case ValReal:
		out, ok = int64(v.r), true
	case ValString:
		n, err := strconv.ParseInt(v.s, 10, 64)
		out, ok = n, err == nil
	case ValBytes:
		n, err := strconv.ParseInt(string(v.b), 10, 64)
		out, ok = n, err == nil
	case ValNull:
		out, ok = 0, false
	case ValVariant:
		n, err := strconv.ParseInt(string(v.variantData), 10, 64)
		out, ok = n, err == nil
	}
	if ok {
		v.cache.i, v.cache.intOK = out, true
	}
	return out, ok
}

// AsReal returns the value coerced to float64.
func (v *Value) AsReal() (float64, bool) {
	if v.cache.realOK {
		return v.cache.r, true
	}
	var out float64
	var ok bool
	switch v.kind {
	case ValReal:
		out, ok = v.r, true
	case ValInt:
		out, ok = float64(v.i), true
	case ValString:
		f, err := strconv.ParseFloat(v.s, 64)
		out, ok = f, err == nil
	case ValBytes:
		f, err := strconv.ParseFloat(string(v.b), 64)
		out, ok = f, err == nil
	case ValNull:
		out, ok = 0, false
	case ValVariant:
		f, err := strconv.ParseFloat(string(v.variantData), 64)
		out, ok = f, err == nil
	}
	if ok {
		v.cache.r, v.cache.realOK = out, true
	}
	return out, ok
}

// AsString returns the value coerced to a UTF-8 string. Numbers become
// their decimal form; byte arrays pass through as-is; variants convert via
// their declared type when possible.
func (v *Value) AsString() (string, bool) {
	if v.cache.stringOK {
		return v.cache.s, true
	}
	var out string
	ok := true
	switch v.kind {
	case ValString:
		out = v.s
	case ValInt:
		out = strconv.FormatInt(v.i, 10)
	case ValReal:
		out = strconv.FormatFloat(v.r, 'g', -1, 64)
	case ValBytes:
		out = string(v.b)
	case ValNull:
		out, ok = "", true
	case ValVariant:
		out = string(v.variantData)
	}
	if ok {
		v.cache.s, v.cache.stringOK = out, true
	}
	return out, ok
}

// AsBytes returns the raw byte-array representation, if the value was
// written as one (or as a string, which is its own byte encoding).
func (v *Value) AsBytes() ([]byte, bool) {
	if v.cache.bytesOK {
		return v.cache.b, true
	}
	var out []byte
	ok := true
	switch v.kind {
	case ValBytes:
		out = v.b
	case ValString:
		out = []byte(v.s)
	case ValVariant:
		out = v.variantData
	case ValInt:
		s, _ := v.AsString()
		out = []byte(s)
	case ValReal:
		s, _ := v.AsString()
		out = []byte(s)
	case ValNull:
		out, ok = nil, true
	}
	if ok {
		v.cache.b, v.cache.bytesOK = out, true
	}
	return out, ok
}

func (v *Value) invalidateCache() {
	v.cache = cachedConversions{}
}
