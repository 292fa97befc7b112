package format

import (
	"fmt"
	"io"
	"reflect"

	"github.com/olekukonko/tablewriter"
)

// TableFormatter handles table output formatting
type TableFormatter struct {
	useColors bool
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(useColors bool) *TableFormatter {
	return &TableFormatter{
		useColors: useColors,
	}
}

// Format writes records as a vertical property table and lists of records
// as one row per item
func (f *TableFormatter) Format(w io.Writer, data interface{}) error {
	v, ok := indirect(reflect.ValueOf(data))
	if !ok {
		fmt.Fprintln(w, "No data to display")
		return nil
	}

	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		return f.formatList(w, v)
	}
	if fields, ok := recordFields(v); ok {
		return f.formatRecord(w, fields)
	}

	fmt.Fprintln(w, displayValue(v.Interface(), f.useColors))
	return nil
}

func (f *TableFormatter) formatRecord(w io.Writer, fields []field) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Property", "Value"})
	f.configureTable(table, 2)

	for _, fd := range fields {
		table.Append([]string{humanize(fd.Key), displayValue(fd.Value, f.useColors)})
	}

	table.Render()
	return nil
}

func (f *TableFormatter) formatList(w io.Writer, v reflect.Value) error {
	if v.Len() == 0 {
		fmt.Fprintln(w, "No data to display")
		return nil
	}

	first, ok := recordFields(v.Index(0))
	if !ok {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Value"})
		f.configureTable(table, 1)
		for i := 0; i < v.Len(); i++ {
			table.Append([]string{displayValue(v.Index(i).Interface(), f.useColors)})
		}
		table.Render()
		return nil
	}

	keys := make([]string, len(first))
	headers := make([]string, len(first))
	for i, fd := range first {
		keys[i] = fd.Key
		headers[i] = humanize(fd.Key)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	f.configureTable(table, len(headers))

	for i := 0; i < v.Len(); i++ {
		fields, _ := recordFields(v.Index(i))
		byKey := make(map[string]interface{}, len(fields))
		for _, fd := range fields {
			byKey[fd.Key] = fd.Value
		}
		row := make([]string, len(keys))
		for j, key := range keys {
			row[j] = displayValue(byKey[key], f.useColors)
		}
		table.Append(row)
	}

	table.Render()
	return nil
}

// configureTable sets up table appearance; header colours must be given per
// column
func (f *TableFormatter) configureTable(table *tablewriter.Table, columns int) {
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	if f.useColors {
		colors := make([]tablewriter.Colors, columns)
		for i := range colors {
			colors[i] = tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiBlueColor}
		}
		table.SetHeaderColor(colors...)
	}
}
