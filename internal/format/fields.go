package format

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
)

// field is one labelled value of a record
type field struct {
	Key   string
	Value interface{}
}

// indirect follows pointers and interfaces; ok is false for nil
func indirect(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v, false
		}
		v = v.Elem()
	}
	return v, v.IsValid()
}

// recordFields lists the fields of a struct or map in display order. Struct
// fields are named after their json tag; map keys are sorted.
func recordFields(v reflect.Value) ([]field, bool) {
	v, ok := indirect(v)
	if !ok {
		return nil, false
	}

	switch v.Kind() {
	case reflect.Struct:
		if isScalarStruct(v) {
			return nil, false
		}
		t := v.Type()
		fields := make([]field, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			name := fieldName(sf)
			if name == "-" {
				continue
			}
			fields = append(fields, field{Key: name, Value: v.Field(i).Interface()})
		}
		return fields, true
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		keys := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		fields := make([]field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, field{Key: k, Value: v.MapIndex(reflect.ValueOf(k).Convert(v.Type().Key())).Interface()})
		}
		return fields, true
	}
	return nil, false
}

// isScalarStruct reports structs that print as a single value
func isScalarStruct(v reflect.Value) bool {
	if v.Type() == reflect.TypeOf(time.Time{}) {
		return true
	}
	_, ok := v.Interface().(fmt.Stringer)
	if ok {
		return true
	}
	if v.CanAddr() {
		_, ok = v.Addr().Interface().(fmt.Stringer)
	}
	return ok
}

func fieldName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "" {
		return toSnake(sf.Name)
	}
	name := strings.Split(tag, ",")[0]
	if name == "" {
		return toSnake(sf.Name)
	}
	return name
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// humanize turns snake_case into Title Case
func humanize(key string) string {
	words := strings.Split(key, "_")
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
		}
	}
	return strings.Join(words, " ")
}

// displayValue renders a single value for table and text output
func displayValue(value interface{}, useColors bool) string {
	if value == nil {
		return ""
	}
	v, ok := indirect(reflect.ValueOf(value))
	if !ok {
		return ""
	}
	value = v.Interface()

	switch x := value.(type) {
	case string:
		return x
	case bool:
		if useColors {
			if x {
				return color.GreenString("true")
			}
			return color.RedString("false")
		}
		return strconv.FormatBool(x)
	case float32, float64:
		return fmt.Sprintf("%.2f", x)
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.Local().Format("2006-01-02 15:04")
	case fmt.Stringer:
		return x.String()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, v.Len())
		for i := 0; i < v.Len(); i++ {
			parts[i] = displayValue(v.Index(i).Interface(), false)
		}
		return strings.Join(parts, ", ")
	case reflect.Struct:
		if v.CanAddr() {
			if s, ok := v.Addr().Interface().(fmt.Stringer); ok {
				return s.String()
			}
		}
	}
	return fmt.Sprintf("%v", value)
}
