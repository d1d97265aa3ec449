package bencode

import (
	"bytes"
	"sort"
	"strconv"
)

// Encode serializes v to its canonical bencoded form: dictionary keys are
// always emitted sorted ascending by raw byte value, regardless of the
// order Decode observed them in. Encoding is total over the four variants
// and deterministic, which is the property the info-hash depends on.
//
// Encode fails with an EncodeError if v (or a value nested inside it)
// carries a Kind outside the four declared variants, or is a dictionary
// Value whose *Dict is nil (as DictValue(nil) builds). Values built through
// Int, Str, String, List, or DictValue with a non-nil *Dict always encode.
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeTo(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeTo(buf *bytes.Buffer, v Value) error {
	switch v.Kind {
	case KindInt:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(v.Int, 10))
		buf.WriteByte('e')
	case KindString:
		buf.WriteString(strconv.Itoa(len(v.Str)))
		buf.WriteByte(':')
		buf.Write(v.Str)
	case KindList:
		buf.WriteByte('l')
		for _, item := range v.List {
			if err := encodeTo(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte('e')
	case KindDict:
		if v.Dict == nil {
			return newEncodeError("nil dict")
		}
		buf.WriteByte('d')
		keys := v.Dict.Keys()
		sort.Strings(keys)
		for _, k := range keys {
			val, _ := v.Dict.Get(k)
			buf.WriteString(strconv.Itoa(len(k)))
			buf.WriteByte(':')
			buf.WriteString(k)
			if err := encodeTo(buf, val); err != nil {
				return err
			}
		}
		buf.WriteByte('e')
	default:
		return newEncodeError("unknown value kind %d", v.Kind)
	}
	return nil
}
