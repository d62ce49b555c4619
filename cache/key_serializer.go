package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// KeySeparator separates key segments.
const KeySeparator = "::"

// KeySerializer builds a cache key from an operation name and its arguments.
// Equal arguments must produce equal keys.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// Namespaced prefixes every key with a namespace, so one cache can hold
// several record types and each can be invalidated by prefix.
type Namespaced struct {
	Namespace string
}

var _ KeySerializer = Namespaced{}

// NewKeySerializer returns a serializer for namespace. An empty namespace
// yields bare keys.
func NewKeySerializer(namespace string) Namespaced {
	return Namespaced{Namespace: namespace}
}

// SerializeKey joins namespace, method and the rendered args.
func (n Namespaced) SerializeKey(method string, args ...any) string {
	parts := make([]string, 0, len(args)+2)
	if n.Namespace != "" {
		parts = append(parts, n.Namespace)
	}
	if method != "" {
		parts = append(parts, method)
	}
	for _, arg := range args {
		parts = append(parts, renderArg(reflect.ValueOf(arg)))
	}
	return strings.Join(parts, KeySeparator)
}

// Prefix is the key prefix shared by every key of method.
func (n Namespaced) Prefix(method string) string {
	return n.SerializeKey(method) + KeySeparator
}

// UserKey is the enrichment cache key of a user.
func UserKey(id int64) string {
	return "user" + KeySeparator + strconv.FormatInt(id, 10)
}

func renderArg(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}

	if s, ok := v.Interface().(fmt.Stringer); ok && v.Kind() == reflect.Struct {
		return s.String()
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return "nil"
		}
		return renderArg(v.Elem())
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprint(v.Interface())
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return "[]"
		}
		items := make([]string, v.Len())
		for i := range items {
			items[i] = renderArg(v.Index(i))
		}
		return "[" + strings.Join(items, ",") + "]"
	case reflect.Map:
		pairs := make([]string, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			pairs = append(pairs, renderArg(iter.Key())+"="+renderArg(iter.Value()))
		}
		sort.Strings(pairs)
		return "{" + strings.Join(pairs, ",") + "}"
	case reflect.Struct:
		t := v.Type()
		fields := make([]string, 0, v.NumField())
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			fields = append(fields, t.Field(i).Name+":"+renderArg(v.Field(i)))
		}
		return "{" + strings.Join(fields, ",") + "}"
	case reflect.Func, reflect.Chan:
		return fmt.Sprintf("%s:%p", v.Kind(), v.Interface())
	}

	data, err := json.Marshal(v.Interface())
	if err != nil {
		return v.Type().String()
	}
	return string(data)
}
