package format

import (
	"fmt"
	"io"
	"reflect"
)

// TextFormatter writes "Key: value" lines, one block per record
type TextFormatter struct{}

// NewTextFormatter creates a new text formatter
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{}
}

// Format formats data as simple text
func (f *TextFormatter) Format(w io.Writer, data interface{}) error {
	v, ok := indirect(reflect.ValueOf(data))
	if !ok {
		fmt.Fprintln(w, "No data")
		return nil
	}

	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		if v.Len() == 0 {
			fmt.Fprintln(w, "No data")
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			item := v.Index(i)
			fields, ok := recordFields(item)
			if !ok {
				fmt.Fprintln(w, displayValue(item.Interface(), false))
				continue
			}
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "Item %d:\n", i+1)
			f.writeFields(w, fields, "  ")
		}
		return nil
	}

	if fields, ok := recordFields(v); ok {
		f.writeFields(w, fields, "")
		return nil
	}

	fmt.Fprintln(w, displayValue(v.Interface(), false))
	return nil
}

func (f *TextFormatter) writeFields(w io.Writer, fields []field, indent string) {
	for _, fd := range fields {
		value := displayValue(fd.Value, false)
		if value == "" {
			value = "N/A"
		}
		fmt.Fprintf(w, "%s%s: %s\n", indent, humanize(fd.Key), value)
	}
}
