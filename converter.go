package onetable

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

// Converter maps a native value to and from its wire attribute. Converters never see
// nil values: the item mapper writes and reads NULL itself.
type Converter interface {
	ToAttributeValue(v any) (types.AttributeValue, error)
	FromAttributeValue(av types.AttributeValue) (any, error)
}

// ConverterFunc adapts a pair of typed functions to the [Converter] interface.
type ConverterFunc[V any] struct {
	Write func(V) (types.AttributeValue, error)
	Read  func(types.AttributeValue) (V, error)
}

// ToAttributeValue implements Converter.
func (c ConverterFunc[V]) ToAttributeValue(v any) (types.AttributeValue, error) {
	tv, ok := v.(V)
	if !ok {
		return nil, fmt.Errorf("expected %v, got %T", reflect.TypeFor[V](), v)
	}
	return c.Write(tv)
}

// FromAttributeValue implements Converter.
func (c ConverterFunc[V]) FromAttributeValue(av types.AttributeValue) (any, error) {
	return c.Read(av)
}

// ConverterRegistry resolves converters by declared type. A registry is populated
// during table initialization and only read afterwards.
type ConverterRegistry struct {
	converters map[reflect.Type]Converter
}

// NewConverterRegistry returns a registry holding the built-in converters.
func NewConverterRegistry() *ConverterRegistry {
	r := &ConverterRegistry{converters: make(map[reflect.Type]Converter)}

	RegisterConverter[bool](r, BoolConverter)
	RegisterConverter[string](r, StringConverter)
	RegisterConverter[int](r, intConverter[int](strconv.IntSize))
	RegisterConverter[int8](r, intConverter[int8](8))
	RegisterConverter[int16](r, intConverter[int16](16))
	RegisterConverter[int32](r, intConverter[int32](32))
	RegisterConverter[int64](r, intConverter[int64](64))
	RegisterConverter[uint](r, uintConverter[uint](strconv.IntSize))
	RegisterConverter[uint8](r, uintConverter[uint8](8))
	RegisterConverter[uint16](r, uintConverter[uint16](16))
	RegisterConverter[uint32](r, uintConverter[uint32](32))
	RegisterConverter[uint64](r, uintConverter[uint64](64))
	RegisterConverter[float32](r, floatConverter[float32](32))
	RegisterConverter[float64](r, floatConverter[float64](64))
	RegisterConverter[time.Duration](r, DurationConverter)
	RegisterConverter[time.Time](r, EpochMillisConverter)
	RegisterConverter[strfmt.DateTime](r, DateTimeConverter)
	RegisterConverter[uuid.UUID](r, UUIDConverter)
	RegisterConverter[strfmt.UUID](r, StrfmtUUIDConverter)

	return r
}

// Register sets the converter for t, replacing any built-in.
func (r *ConverterRegistry) Register(t reflect.Type, c Converter) {
	r.converters[t] = c
}

// RegisterConverter sets the converter for values of type V.
func RegisterConverter[V any](r *ConverterRegistry, c Converter) {
	r.Register(reflect.TypeFor[V](), c)
}

// Resolve returns the converter for t. One level of pointer is stripped first,
// so *int resolves to the int converter.
func (r *ConverterRegistry) Resolve(t reflect.Type) (Converter, error) {
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if c, ok := r.converters[t]; ok {
		return c, nil
	}
	return nil, &ConversionError{Type: t}
}

func (r *ConverterRegistry) clone() *ConverterRegistry {
	out := &ConverterRegistry{converters: make(map[reflect.Type]Converter, len(r.converters))}
	for t, c := range r.converters {
		out.converters[t] = c
	}
	return out
}

// attributeText returns the textual content of a String or Number attribute.
func attributeText(av types.AttributeValue) (string, bool) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, true
	case *types.AttributeValueMemberN:
		return v.Value, true
	default:
		return "", false
	}
}

func unexpectedAttribute(want string, av types.AttributeValue) error {
	return fmt.Errorf("expected %s attribute, got %T", want, av)
}

// BoolConverter stores booleans as BOOL.
var BoolConverter = ConverterFunc[bool]{
	Write: func(v bool) (types.AttributeValue, error) {
		return &types.AttributeValueMemberBOOL{Value: v}, nil
	},
	Read: func(av types.AttributeValue) (bool, error) {
		if v, ok := av.(*types.AttributeValueMemberBOOL); ok {
			return v.Value, nil
		}
		return false, unexpectedAttribute("BOOL", av)
	},
}

// StringConverter stores strings as S.
var StringConverter = ConverterFunc[string]{
	Write: func(v string) (types.AttributeValue, error) {
		return &types.AttributeValueMemberS{Value: v}, nil
	},
	Read: func(av types.AttributeValue) (string, error) {
		if v, ok := av.(*types.AttributeValueMemberS); ok {
			return v.Value, nil
		}
		return "", unexpectedAttribute("S", av)
	},
}

// Numbers are read from N, or from S because prefixed keys are stored as strings.

func intConverter[V ~int | ~int8 | ~int16 | ~int32 | ~int64](bitSize int) ConverterFunc[V] {
	return ConverterFunc[V]{
		Write: func(v V) (types.AttributeValue, error) {
			return &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(v), 10)}, nil
		},
		Read: func(av types.AttributeValue) (V, error) {
			text, ok := attributeText(av)
			if !ok {
				return 0, unexpectedAttribute("N", av)
			}
			n, err := strconv.ParseInt(text, 10, bitSize)
			return V(n), err
		},
	}
}

func uintConverter[V ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64](bitSize int) ConverterFunc[V] {
	return ConverterFunc[V]{
		Write: func(v V) (types.AttributeValue, error) {
			return &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(v), 10)}, nil
		},
		Read: func(av types.AttributeValue) (V, error) {
			text, ok := attributeText(av)
			if !ok {
				return 0, unexpectedAttribute("N", av)
			}
			n, err := strconv.ParseUint(text, 10, bitSize)
			return V(n), err
		},
	}
}

func floatConverter[V ~float32 | ~float64](bitSize int) ConverterFunc[V] {
	return ConverterFunc[V]{
		Write: func(v V) (types.AttributeValue, error) {
			return &types.AttributeValueMemberN{Value: strconv.FormatFloat(float64(v), 'f', -1, bitSize)}, nil
		},
		Read: func(av types.AttributeValue) (V, error) {
			text, ok := attributeText(av)
			if !ok {
				return 0, unexpectedAttribute("N", av)
			}
			f, err := strconv.ParseFloat(text, bitSize)
			return V(f), err
		},
	}
}

// DurationConverter stores durations as a number of nanoseconds.
var DurationConverter = intConverter[time.Duration](64)

var epochMillis = intConverter[int64](64)

// EpochMillisConverter stores times as milliseconds since the Unix epoch. Times are read back in UTC.
var EpochMillisConverter = ConverterFunc[time.Time]{
	Write: func(v time.Time) (types.AttributeValue, error) {
		return epochMillis.Write(v.UnixMilli())
	},
	Read: func(av types.AttributeValue) (time.Time, error) {
		ms, err := epochMillis.Read(av)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	},
}

// EpochSecondsConverter stores times as seconds since the Unix epoch. It is not registered
// by default; attach it to a field with [WithFieldConverter] or to the table with [WithConverter].
var EpochSecondsConverter = ConverterFunc[time.Time]{
	Write: func(v time.Time) (types.AttributeValue, error) {
		return epochMillis.Write(v.Unix())
	},
	Read: func(av types.AttributeValue) (time.Time, error) {
		s, err := epochMillis.Read(av)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(s, 0).UTC(), nil
	},
}

// RFC3339Converter stores times as RFC 3339 strings with nanoseconds. Unlike the epoch
// converters it keeps the UTC offset, so values read back in a fixed zone with the
// offset they were written with. It is not registered by default.
var RFC3339Converter = ConverterFunc[time.Time]{
	Write: func(v time.Time) (types.AttributeValue, error) {
		return &types.AttributeValueMemberS{Value: v.Format(time.RFC3339Nano)}, nil
	},
	Read: func(av types.AttributeValue) (time.Time, error) {
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return time.Time{}, unexpectedAttribute("S", av)
		}
		return time.Parse(time.RFC3339Nano, s.Value)
	},
}

// DateTimeConverter stores strfmt date-times as milliseconds since the Unix epoch.
var DateTimeConverter = ConverterFunc[strfmt.DateTime]{
	Write: func(v strfmt.DateTime) (types.AttributeValue, error) {
		return EpochMillisConverter.Write(time.Time(v))
	},
	Read: func(av types.AttributeValue) (strfmt.DateTime, error) {
		t, err := EpochMillisConverter.Read(av)
		return strfmt.DateTime(t), err
	},
}

// UUIDConverter stores UUIDs in their canonical string form.
var UUIDConverter = ConverterFunc[uuid.UUID]{
	Write: func(v uuid.UUID) (types.AttributeValue, error) {
		return &types.AttributeValueMemberS{Value: v.String()}, nil
	},
	Read: func(av types.AttributeValue) (uuid.UUID, error) {
		text, ok := attributeText(av)
		if !ok {
			return uuid.Nil, unexpectedAttribute("S", av)
		}
		return uuid.Parse(text)
	},
}

// StrfmtUUIDConverter stores strfmt UUIDs as S, rejecting malformed values on read.
var StrfmtUUIDConverter = ConverterFunc[strfmt.UUID]{
	Write: func(v strfmt.UUID) (types.AttributeValue, error) {
		return &types.AttributeValueMemberS{Value: v.String()}, nil
	},
	Read: func(av types.AttributeValue) (strfmt.UUID, error) {
		text, ok := attributeText(av)
		if !ok {
			return "", unexpectedAttribute("S", av)
		}
		if !strfmt.IsUUID(text) {
			return "", fmt.Errorf("invalid uuid %q", text)
		}
		return strfmt.UUID(text), nil
	},
}
