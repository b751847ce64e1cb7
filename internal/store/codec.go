// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	slog "github.com/nhr-fau/sensorstore/pkg/log"
)

// Kind is the tag of the format-descriptor sum type. It is parsed once,
// at sensor load, from the descriptor string stored in a sensor's
// format-history sub-store.
type Kind int

const (
	KindBytes Kind = iota
	KindString
	KindFloat
	KindInt
	KindJSON
	KindYAML
	KindRegex
	KindPacked
)

// packedWidths maps each layout character a Packed descriptor may use to
// its width in bytes.
var packedWidths = map[byte]int{
	'b': 1, 'B': 1,
	'h': 2, 'H': 2,
	'i': 4, 'I': 4,
	'q': 8, 'Q': 8,
	'f': 4, 'd': 8,
}

// legacyUnsignedShort records layout characters that the spec fixes as
// signed but that an older revision of the source encoded as unsigned.
// See the "ambiguous source behavior" note in spec.md §9: such files must
// be detected and rejected, not silently reinterpreted.
const legacyUnsignedShort = 'H'

// FormatDescriptor is the parsed form of a sensor's format descriptor
// string (spec.md §4.1/§4.9). It is immutable once constructed.
type FormatDescriptor struct {
	Kind   Kind
	Layout string // only meaningful when Kind == KindPacked
	raw    string
}

// String returns the original descriptor string, the form persisted to
// the format-history sub-store.
func (fd FormatDescriptor) String() string {
	return fd.raw
}

// ParseFormatDescriptor parses a sensor's format descriptor string into
// its sum-type representation. Recognized special forms are "f", "int",
// "str", "bytes", "json", "yaml", and "regex"; anything else must be a
// non-empty string over the packed-layout alphabet {b,B,h,H,i,I,q,Q,f,d}.
func ParseFormatDescriptor(s string) (FormatDescriptor, error) {
	switch s {
	case "f":
		return FormatDescriptor{Kind: KindFloat, raw: s}, nil
	case "int":
		return FormatDescriptor{Kind: KindInt, raw: s}, nil
	case "str":
		return FormatDescriptor{Kind: KindString, raw: s}, nil
	case "bytes":
		return FormatDescriptor{Kind: KindBytes, raw: s}, nil
	case "json":
		return FormatDescriptor{Kind: KindJSON, raw: s}, nil
	case "yaml":
		return FormatDescriptor{Kind: KindYAML, raw: s}, nil
	case "regex":
		return FormatDescriptor{Kind: KindRegex, raw: s}, nil
	}

	if s == "" {
		return FormatDescriptor{}, fmt.Errorf("%w: empty format descriptor", ErrInvalidArgument)
	}
	for i := 0; i < len(s); i++ {
		if _, ok := packedWidths[s[i]]; !ok {
			return FormatDescriptor{}, fmt.Errorf("%w: unknown format descriptor %q", ErrInvalidArgument, s)
		}
	}
	return FormatDescriptor{Kind: KindPacked, Layout: s, raw: s}, nil
}

// GuessFormat implements the format-guessing algorithm of spec.md §4.1,
// used only at a sensor's first write when no descriptor is yet chosen.
func GuessFormat(v any) (FormatDescriptor, error) {
	switch val := v.(type) {
	case nil:
		return FormatDescriptor{}, fmt.Errorf("%w: cannot guess format of nil value", ErrInvalidArgument)
	case map[string]any:
		return ParseFormatDescriptor("json")
	case string:
		if _, err := strconv.ParseFloat(val, 64); err == nil {
			return ParseFormatDescriptor("f")
		}
		return ParseFormatDescriptor("str")
	case []byte:
		if _, err := strconv.ParseFloat(string(val), 64); err == nil {
			return ParseFormatDescriptor("f")
		}
		return ParseFormatDescriptor("bytes")
	}

	if isNumber(v) {
		return ParseFormatDescriptor("f")
	}

	if n, ok := numericSliceLen(v); ok {
		layout := strings.Repeat("f", n)
		return ParseFormatDescriptor(layout)
	}

	return ParseFormatDescriptor("json")
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

func numericSliceLen(v any) (int, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return 0, false
	}
	n := rv.Len()
	if n == 0 {
		return 0, false
	}
	for i := 0; i < n; i++ {
		if !isNumber(rv.Index(i).Interface()) {
			return 0, false
		}
	}
	return n, true
}

// Pack encodes v under the codec selected by fd.
func Pack(fd FormatDescriptor, v any) ([]byte, error) {
	switch fd.Kind {
	case KindBytes:
		switch val := v.(type) {
		case []byte:
			return val, nil
		case string:
			return []byte(val), nil
		default:
			return []byte(fmt.Sprint(val)), nil
		}
	case KindString:
		return []byte(toText(v)), nil
	case KindFloat:
		f, err := toFloat64(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		buf := make([]byte, 4)
		nativeEndian.PutUint32(buf, math.Float32bits(float32(f)))
		return buf, nil
	case KindInt:
		f, err := toFloat64(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return encodeElem('h', f)
	case KindJSON:
		return packJSON(v)
	case KindYAML:
		return yaml.Marshal(v)
	case KindRegex:
		s := toText(v)
		if _, err := regexp.Compile(s); err != nil {
			return nil, fmt.Errorf("%w: pattern does not compile: %v", ErrInvalidArgument, err)
		}
		return []byte(s), nil
	case KindPacked:
		return packTuple(fd.Layout, v)
	default:
		return nil, fmt.Errorf("%w: unsupported format kind", ErrInvalidArgument)
	}
}

// Unpack decodes bytes stored under the codec selected by fd.
func Unpack(fd FormatDescriptor, b []byte) (any, error) {
	switch fd.Kind {
	case KindBytes:
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case KindString:
		return string(b), nil
	case KindFloat:
		if len(b) != 4 {
			return nil, fmt.Errorf("%w: float value must be 4 bytes, got %d", ErrDecode, len(b))
		}
		return float64(math.Float32frombits(nativeEndian.Uint32(b))), nil
	case KindInt:
		if len(b) != 2 {
			return nil, fmt.Errorf("%w: int value must be 2 bytes, got %d", ErrDecode, len(b))
		}
		return decodeElem('h', b)
	case KindJSON:
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return out, nil
	case KindYAML:
		var out any
		if err := yaml.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return normalizeYAML(out), nil
	case KindRegex:
		return string(b), nil
	case KindPacked:
		return unpackTuple(fd.Layout, b)
	default:
		return nil, fmt.Errorf("%w: unsupported format kind", ErrDecode)
	}
}

// nativeEndian is used for the scalar Float codec, whose contract is
// "native endianness" (spec.md §4.1). Packed layouts use a fixed
// little-endian order regardless of host, so that files are portable
// across architectures (an explicit choice, since the spec leaves packed
// byte order unspecified beyond the Int variant's own little-endian
// requirement).
var nativeEndian binary.ByteOrder = binary.NativeEndian

func toText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func toFloat64(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		return strconv.ParseFloat(val, 64)
	case []byte:
		return strconv.ParseFloat(string(val), 64)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(rv.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return float64(rv.Uint()), nil
		case reflect.Float32, reflect.Float64:
			return rv.Float(), nil
		}
		return 0, fmt.Errorf("value %#v is not numeric", v)
	}
}

// packJSON validates an already-encoded JSON string on pack, or encodes
// any JSON-serializable value; non-string mapping keys are coerced to
// strings with a logged warning (spec.md §4.1).
func packJSON(v any) ([]byte, error) {
	if s, ok := v.(string); ok {
		if !json.Valid([]byte(s)) {
			return nil, fmt.Errorf("%w: value is not valid JSON", ErrInvalidArgument)
		}
		return []byte(s), nil
	}
	v = coerceMapKeys(v)
	return json.Marshal(v)
}

func coerceMapKeys(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() != reflect.String {
		slog.Warnf("[CODEC]> non-string mapping keys coerced to strings for JSON encoding")
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		return out
	}
	return v
}

// normalizeYAML converts yaml.v3's map[string]interface{} decode targets
// (already the default for `any`) and recursively normalizes nested
// map[string]interface{} structures so callers see plain Go values.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, vv := range val {
			val[k] = normalizeYAML(vv)
		}
		return val
	case []any:
		for i, vv := range val {
			val[i] = normalizeYAML(vv)
		}
		return val
	default:
		return val
	}
}

func packTuple(layout string, v any) ([]byte, error) {
	values, err := toSlice(v, len(layout))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(layout)*8)
	for i := 0; i < len(layout); i++ {
		c := layout[i]
		if c == legacyUnsignedShort {
			return nil, fmt.Errorf("%w: legacy unsigned short format 'H' is not writable, use 'h'", ErrInvalidArgument)
		}
		elem, err := toFloat64(values[i])
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrInvalidArgument, i, err)
		}
		b, err := encodeElem(c, elem)
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
	}
	return buf, nil
}

func toSlice(v any, arity int) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: packed value must be an iterable of arity %d", ErrInvalidArgument, arity)
	}
	if rv.Len() != arity {
		return nil, fmt.Errorf("%w: packed value has arity %d, descriptor wants %d", ErrInvalidArgument, rv.Len(), arity)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func encodeElem(c byte, f float64) ([]byte, error) {
	switch c {
	case 'b':
		if f < math.MinInt8 || f > math.MaxInt8 {
			return nil, fmt.Errorf("%w: value %v overflows int8", ErrInvalidArgument, f)
		}
		return []byte{byte(int8(f))}, nil
	case 'B':
		if f < 0 || f > math.MaxUint8 {
			return nil, fmt.Errorf("%w: value %v overflows uint8", ErrInvalidArgument, f)
		}
		return []byte{byte(uint8(f))}, nil
	case 'h':
		if f < math.MinInt16 || f > math.MaxInt16 {
			return nil, fmt.Errorf("%w: value %v overflows int16", ErrInvalidArgument, f)
		}
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(int16(f)))
		return b, nil
	case 'i':
		if f < math.MinInt32 || f > math.MaxInt32 {
			return nil, fmt.Errorf("%w: value %v overflows int32", ErrInvalidArgument, f)
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(f)))
		return b, nil
	case 'I':
		if f < 0 || f > math.MaxUint32 {
			return nil, fmt.Errorf("%w: value %v overflows uint32", ErrInvalidArgument, f)
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(f))
		return b, nil
	case 'q':
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(int64(f)))
		return b, nil
	case 'Q':
		if f < 0 {
			return nil, fmt.Errorf("%w: value %v overflows uint64", ErrInvalidArgument, f)
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(f))
		return b, nil
	case 'f':
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f)))
		return b, nil
	case 'd':
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(f))
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown packed layout character %q", ErrInvalidArgument, c)
	}
}

// unpackTuple always returns a []any "tuple", per spec.md §4.1.
func unpackTuple(layout string, b []byte) ([]any, error) {
	out := make([]any, 0, len(layout))
	off := 0
	for i := 0; i < len(layout); i++ {
		c := layout[i]
		if c == legacyUnsignedShort {
			return nil, fmt.Errorf("%w: legacy unsigned short format 'H' is rejected, file was written with a pre-fix codec", ErrInvalidArgument)
		}
		width := packedWidths[c]
		if off+width > len(b) {
			return nil, fmt.Errorf("%w: packed value of %d bytes is truncated for layout %q", ErrDecode, len(b), layout)
		}
		chunk := b[off : off+width]
		val, err := decodeElem(c, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
		off += width
	}
	if off != len(b) {
		return nil, fmt.Errorf("%w: packed value has %d trailing bytes", ErrDecode, len(b)-off)
	}
	return out, nil
}

func decodeElem(c byte, b []byte) (any, error) {
	switch c {
	case 'b':
		return int64(int8(b[0])), nil
	case 'B':
		return uint64(b[0]), nil
	case 'h':
		return int64(int16(binary.LittleEndian.Uint16(b))), nil
	case 'i':
		return int64(int32(binary.LittleEndian.Uint32(b))), nil
	case 'I':
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 'q':
		return int64(binary.LittleEndian.Uint64(b)), nil
	case 'Q':
		return binary.LittleEndian.Uint64(b), nil
	case 'f':
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case 'd':
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	default:
		return nil, fmt.Errorf("%w: unknown packed layout character %q", ErrDecode, c)
	}
}

// --- datetime key codec ---

// PackTimeKey encodes t as an 8-byte big-endian microsecond timestamp so
// that lexicographic byte order equals chronological order.
func PackTimeKey(t time.Time) ([]byte, error) {
	micros := t.Unix()*1_000_000 + int64(t.Nanosecond())/1000
	if micros < 0 {
		return nil, fmt.Errorf("%w: timestamps before the epoch are not representable", ErrInvalidArgument)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(micros))
	return buf, nil
}

// UnpackTimeKey decodes an 8-byte big-endian microsecond timestamp key.
func UnpackTimeKey(b []byte) (time.Time, error) {
	if len(b) != 8 {
		return time.Time{}, fmt.Errorf("%w: timestamp key must be 8 bytes, got %d", ErrDecode, len(b))
	}
	micros := int64(binary.BigEndian.Uint64(b))
	return time.UnixMicro(micros).UTC(), nil
}

// sortedUniqueTimes sorts ts in place and returns it de-duplicated; the
// export engine builds its merged axis with it.
func sortedUniqueTimes(ts []time.Time) []time.Time {
	if len(ts) == 0 {
		return ts
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	out := ts[:1]
	for _, t := range ts[1:] {
		if !t.Equal(out[len(out)-1]) {
			out = append(out, t)
		}
	}
	return out
}
