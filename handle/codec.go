package handle

import (
	"bytes"
	"fmt"

	"github.com/synctree/synctree/link"
)

// ExportTag is the one-byte discriminator spec.md §4.D reserves in the
// range 1..15: printable data never starts below ASCII 32 except through
// this tag, so a receiver can always tell "tagged blob" from "bare text"
// on the first byte.
type ExportTag byte

const (
	TagVariant    ExportTag = 1 // legacy stream, no embedded type name
	TagVariantTxt ExportTag = 2 // "typename:" + utf8 payload
	TagVariantBin ExportTag = 3 // version byte + "typename:" + raw payload
	TagByteArray  ExportTag = 4
	TagString     ExportTag = 5
)

// ExportValue encodes v for the wire, picking the tag by the value's
// current type and inserting the String tag when a textual value would
// otherwise start with a byte below 32 (which would collide with the
// reserved tag range).
func ExportValue(v link.Value) []byte {
	switch v.Kind() {
	case link.ValBytes:
		b, _ := v.AsBytes()
		return append([]byte{byte(TagByteArray)}, b...)
	case link.ValVariant:
		head := []byte(v.VariantType() + ":")
		data, _ := v.AsBytes()
		return append(append([]byte{byte(TagVariantTxt)}, head...), data...)
	default:
		s, _ := v.AsString()
		data := []byte(s)
		if len(data) > 0 && data[0] < 32 {
			return append([]byte{byte(TagString)}, data...)
		}
		return data
	}
}

// ImportValue decodes a blob produced by ExportValue (or bare untagged
// text) back into a link.Value, dispatching on the leading tag byte when
// it falls in the reserved 1..15 range.
func ImportValue(blob []byte) (link.Value, error) {
	if len(blob) == 0 {
		return link.NullValue(), nil
	}
	tag := blob[0]
	if tag < 1 || tag > 15 {
		return link.StringValue(string(blob)), nil
	}

	rest := blob[1:]
	switch ExportTag(tag) {
	case TagString:
		return link.StringValue(string(rest)), nil
	case TagByteArray:
		return link.BytesValue(rest), nil
	case TagVariantTxt:
		idx := bytes.IndexByte(rest, ':')
		if idx < 0 {
			return link.Value{}, fmt.Errorf("handle: malformed VariantTxt blob")
		}
		return link.VariantValue(string(rest[:idx]), rest[idx+1:]), nil
	case TagVariantBin:
		if len(rest) < 1 {
			return link.Value{}, fmt.Errorf("handle: truncated VariantBin blob")
		}
		body := rest[1:] // skip version byte
		idx := bytes.IndexByte(body, ':')
		if idx < 0 {
			return link.Value{}, fmt.Errorf("handle: malformed VariantBin blob")
		}
		return link.VariantValue(string(body[:idx]), body[idx+1:]), nil
	case TagVariant:
		return link.VariantValue("", rest), nil
	default:
		return link.Value{}, fmt.Errorf("handle: unknown export tag %d", tag)
	}
}
