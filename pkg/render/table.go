// Package render turns payloads into HTML tables, sanitises them for JSON
// output, and formats durations for people.
package render

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/illmade-knight/go-apicache/pkg/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Layout says how a Table should be drawn.
type Layout int

const (
	// LayoutEmpty means there is nothing to show.
	LayoutEmpty Layout = iota
	// LayoutList is one row per record, one column per key of the first record.
	LayoutList
	// LayoutRecord is one row per key of a single record.
	LayoutRecord
)

// Cell is one rendered value. Structured cells hold pretty-printed JSON.
type Cell struct {
	Text       string
	Structured bool
}

// Column is a header in a list table.
type Column struct {
	Key   string
	Label string
}

// Field is a labelled row in a record table.
type Field struct {
	Key   string
	Label string
	Value Cell
}

// Table is a payload laid out for display.
type Table struct {
	Layout     Layout
	Columns    []Column
	Rows       [][]Cell
	Fields     []Field
	ShowHeader bool
}

// TableOptions controls which parts of the payload are shown.
type TableOptions struct {
	// VisibleColumns restricts the table to these keys. Empty shows everything.
	VisibleColumns []string
	// HideHeader drops the header row of a list table and the labels of a record table.
	HideHeader bool
}

func (o TableOptions) visible(key string) bool {
	if len(o.VisibleColumns) == 0 {
		return true
	}
	for _, c := range o.VisibleColumns {
		if c == key {
			return true
		}
	}
	return false
}

// BuildTable lays out p. A list whose first element is an object becomes a
// list table with headers from that first object; anything else is shown as
// a single record keyed by object key or list index.
func BuildTable(p types.Payload, opts TableOptions) Table {
	if types.IsEmpty(p) || !types.IsAggregate(p) {
		return Table{Layout: LayoutEmpty}
	}
	if types.IsRecordList(p) {
		return buildList(p.([]any), opts)
	}
	return buildRecord(p, opts)
}

func buildList(list []any, opts TableOptions) Table {
	t := Table{Layout: LayoutList, ShowHeader: !opts.HideHeader}
	for _, key := range types.Headers(list) {
		if opts.visible(key) {
			t.Columns = append(t.Columns, Column{Key: key, Label: HumanizeKey(key)})
		}
	}
	for _, item := range list {
		record, _ := item.(map[string]any)
		row := make([]Cell, len(t.Columns))
		for i, col := range t.Columns {
			if v, ok := record[col.Key]; ok {
				row[i] = formatCell(v)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func buildRecord(p types.Payload, opts TableOptions) Table {
	t := Table{Layout: LayoutRecord, ShowHeader: !opts.HideHeader}
	add := func(key string, v any) {
		if opts.visible(key) {
			t.Fields = append(t.Fields, Field{Key: key, Label: HumanizeKey(key), Value: formatCell(v)})
		}
	}
	switch v := p.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			add(k, v[k])
		}
	case []any:
		for i, item := range v {
			add(strconv.Itoa(i), item)
		}
	}
	return t
}

// HumanizeKey turns "first_name" into "First Name". Existing capitals are kept.
func HumanizeKey(key string) string {
	// Casers carry state, so each call gets its own.
	return cases.Title(language.English, cases.NoLower).String(strings.ReplaceAll(key, "_", " "))
}

func formatCell(v any) Cell {
	switch val := v.(type) {
	case nil:
		return Cell{}
	case string:
		return Cell{Text: val}
	case json.Number:
		return Cell{Text: val.String()}
	case float64:
		return Cell{Text: strconv.FormatFloat(val, 'f', -1, 64)}
	case bool:
		return Cell{Text: strconv.FormatBool(val)}
	case map[string]any, []any:
		return Cell{Text: prettyJSON(val), Structured: true}
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return Cell{}
		}
		return Cell{Text: string(b)}
	}
}

func prettyJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimRight(buf.String(), "\n")
}
