package canonical

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
)

// Parse decodes a single JSON document into a Value. Duplicate object keys
// keep the last occurrence. Trailing data after the document is rejected.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("%w: %w", ErrCanonicalization, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("%w: trailing data after JSON document", ErrCanonicalization)
	}
	return FromAny(raw)
}

// FromAny converts a Go value into a Value. It accepts the shapes produced by
// encoding/json (map[string]any, []any, json.Number, string, bool, float64,
// nil) plus typed maps, slices, pointers, integers and structs. Structs and
// json.Marshaler implementations go through their JSON encoding. Cycles and
// values with no JSON form (funcs, channels, complex numbers, maps with
// non-string keys) are rejected with ErrCanonicalization.
func FromAny(in any) (Value, error) {
	c := converter{visiting: make(map[visitKey]struct{})}
	return c.convert(reflect.ValueOf(in), 0)
}

const maxDepth = 10000

type visitKey struct {
	ptr uintptr
	typ reflect.Type
	n   int
}

type converter struct {
	visiting map[visitKey]struct{}
}

var (
	valueType     = reflect.TypeOf(Value{})
	numberType    = reflect.TypeOf(json.Number(""))
	marshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

func (c *converter) convert(rv reflect.Value, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, fmt.Errorf("%w: nesting deeper than %d", ErrCanonicalization, maxDepth)
	}
	if !rv.IsValid() {
		return Null(), nil
	}

	switch rv.Type() {
	case valueType:
		return rv.Interface().(Value), nil //nolint:forcetypeassert // type checked above
	case numberType:
		return parseNumber(rv.String())
	}
	if rv.Kind() != reflect.Pointer && rv.Kind() != reflect.Interface && rv.Type().Implements(marshalerType) {
		return c.viaJSON(rv)
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return c.convert(rv.Elem(), depth+1)

	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		if rv.Type().Implements(marshalerType) {
			return c.viaJSON(rv)
		}
		leave, err := c.enter(rv, 0)
		if err != nil {
			return Value{}, err
		}
		defer leave()
		return c.convert(rv.Elem(), depth+1)

	case reflect.Bool:
		return Bool(rv.Bool()), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(float64(rv.Int())), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Number(float64(rv.Uint())), nil

	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, fmt.Errorf("%w: non-finite number %v", ErrCanonicalization, f)
		}
		return Number(f), nil

	case reflect.String:
		return String(rv.String()), nil

	case reflect.Slice:
		if rv.IsNil() {
			return Null(), nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return String(base64.StdEncoding.EncodeToString(rv.Bytes())), nil
		}
		leave, err := c.enter(rv, rv.Len())
		if err != nil {
			return Value{}, err
		}
		defer leave()
		return c.convertList(rv, depth)

	case reflect.Array:
		return c.convertList(rv, depth)

	case reflect.Map:
		if rv.IsNil() {
			return Null(), nil
		}
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("%w: map key type %s", ErrCanonicalization, rv.Type().Key())
		}
		leave, err := c.enter(rv, 0)
		if err != nil {
			return Value{}, err
		}
		defer leave()
		members := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			member, err := c.convert(iter.Value(), depth+1)
			if err != nil {
				return Value{}, err
			}
			members[iter.Key().String()] = member
		}
		return Value{kind: KindMap, m: members}, nil

	case reflect.Struct:
		return c.viaJSON(rv)

	default:
		return Value{}, fmt.Errorf("%w: unsupported type %s", ErrCanonicalization, rv.Type())
	}
}

func (c *converter) convertList(rv reflect.Value, depth int) (Value, error) {
	items := make([]Value, rv.Len())
	for i := range items {
		item, err := c.convert(rv.Index(i), depth+1)
		if err != nil {
			return Value{}, err
		}
		items[i] = item
	}
	return Value{kind: KindArray, arr: items}, nil
}

// enter marks a reference value as being on the current path and returns the
// function that unmarks it.
func (c *converter) enter(rv reflect.Value, n int) (func(), error) {
	key := visitKey{ptr: rv.Pointer(), typ: rv.Type(), n: n}
	if _, seen := c.visiting[key]; seen {
		return nil, fmt.Errorf("%w: circular reference through %s", ErrCanonicalization, rv.Type())
	}
	c.visiting[key] = struct{}{}
	return func() { delete(c.visiting, key) }, nil
}

func (c *converter) viaJSON(rv reflect.Value) (Value, error) {
	data, err := json.Marshal(rv.Interface())
	if err != nil {
		return Value{}, fmt.Errorf("%w: %w", ErrCanonicalization, err)
	}
	return Parse(data)
}

func parseNumber(s string) (Value, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Value{}, fmt.Errorf("%w: invalid number %q", ErrCanonicalization, s)
	}
	if math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: number %s out of range", ErrCanonicalization, s)
	}
	return Number(f), nil
}
