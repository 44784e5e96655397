package sproc

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MapOption adjusts how table cells are converted into struct fields.
type MapOption func(*mapConfig)

type mapConfig struct {
	clean bool
}

// WithoutCleaning disables stripping of '$', ',', and '%' from cells bound
// for numeric fields. Cleaning is on by default so currency- and
// percent-formatted text ("$1,234.50", "12%") converts; it never touches
// cells bound for string fields.
func WithoutCleaning() MapOption {
	return func(c *mapConfig) { c.clean = false }
}

func newMapConfig(opts []MapOption) mapConfig {
	c := mapConfig{clean: true}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// ToStructs maps every row of a table into a value of struct type T.
//
// Fields bind by `db:"name"` tag first, otherwise by case-insensitive field
// ←→ column name. Nested structs flatten with `db:",inline"`. Pointer fields
// are allocated and set through. A field with no matching column, or whose
// cell is NULL or empty, keeps its zero value. Extra columns are ignored.
//
// Conversion goes through the cell's string representation; a cell that
// cannot convert to its field's type aborts the whole batch with an error
// matching ErrConvert. A nil table or a table with zero rows yields an
// empty slice.
//
// Example:
//
//	type Invoice struct {
//	    ID     int64   `db:"id"`
//	    Total  float64 `db:"total"`   // "$1,234.50" converts with cleaning
//	    Status string
//	}
//	invoices, err := sproc.ToStructs[Invoice](table)
func ToStructs[T any](t *Table, opts ...MapOption) ([]T, error) {
	cfg := newMapConfig(opts)

	rt := reflect.TypeOf((*T)(nil)).Elem()
	if rt.Kind() != reflect.Struct {
		return nil, opErr("map rows", "", ErrConvert, fmt.Errorf("destination %s is not a struct", rt))
	}
	// A nil table behaves like a table with zero rows.
	if t == nil {
		return []T{}, nil
	}
	idx := indexFor(rt)

	// Resolve each column to a field once, not per row.
	binds := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		if fi, ok := idx.byName[normalizeColAscii(c)]; ok {
			binds[i] = fi
		} else {
			binds[i] = -1
		}
	}

	out := make([]T, 0, t.Len())
	for ri, row := range t.Rows {
		rv := reflect.New(rt).Elem()
		for ci, fi := range binds {
			if fi < 0 || ci >= len(row) {
				continue
			}
			cell, ok := cellString(row[ci])
			if !ok {
				continue
			}
			f := idx.fields[fi]
			if err := setField(rv, f, cell, cfg); err != nil {
				return nil, opErr("map rows", "", ErrConvert,
					fmt.Errorf("row %d, column %q: %w", ri, t.Columns[ci], err))
			}
		}
		out = append(out, rv.Interface().(T))
	}
	return out, nil
}

// ToStruct maps the first row of a table into a value of struct type T.
// ok is false when the table has no rows; an empty table is not an error.
func ToStruct[T any](t *Table, opts ...MapOption) (out T, ok bool, err error) {
	if t.Len() == 0 {
		return out, false, nil
	}
	first := &Table{Columns: t.Columns, Rows: t.Rows[:1]}
	mapped, err := ToStructs[T](first, opts...)
	if err != nil {
		return out, false, err
	}
	return mapped[0], true, nil
}

// ToTable builds a table from a slice of struct values: one column per
// exported field in declaration order (tag-aware names), one row per item.
// Scalar values are stored as-is; pointer fields store their pointee, or
// NULL when nil.
func ToTable[T any](items []T) (*Table, error) {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	if rt.Kind() != reflect.Struct {
		return nil, opErr("build table", "", ErrConvert, fmt.Errorf("source %s is not a struct", rt))
	}
	idx := indexFor(rt)

	t := &Table{Columns: make([]string, len(idx.fields))}
	for i, f := range idx.fields {
		t.Columns[i] = f.col
	}
	for _, item := range items {
		rv := reflect.ValueOf(item)
		row := make([]any, len(idx.fields))
		for i, f := range idx.fields {
			v, ok := fieldByPath(rv, f.path)
			if !ok {
				row[i] = nil
				continue
			}
			row[i] = v.Interface()
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ---------------- Struct indexing & tags ----------------

type field struct {
	name string // lower-cased bind name
	col  string // column name emitted by ToTable (tag or field name, original case)
	path []int
	typ  reflect.Type // declared field type, pointers included
}

type structIndex struct {
	fields []field        // declaration order
	byName map[string]int // lower-cased name -> index into fields
}

// structIndexCache holds one index per mapped type, so reflection walks
// happen once per type, not once per row.
var structIndexCache sync.Map // key: reflect.Type -> *structIndex

func indexFor(rt reflect.Type) *structIndex {
	if v, ok := structIndexCache.Load(rt); ok {
		return v.(*structIndex)
	}
	idx := buildStructIndex(rt)
	structIndexCache.Store(rt, idx)
	return idx
}

func buildStructIndex(rt reflect.Type) *structIndex {
	idx := &structIndex{byName: make(map[string]int)}

	var walk func(t reflect.Type, base []int, forceInline bool)
	walk = func(t reflect.Type, base []int, forceInline bool) {
		t = derefPtr(t)
		if t.Kind() != reflect.Struct {
			return
		}
		n := t.NumField()
		for i := 0; i < n; i++ {
			sf := t.Field(i)
			if sf.PkgPath != "" && !sf.Anonymous { // unexported, non-anonymous
				continue
			}
			tag := sf.Tag.Get("db")
			name, inline, omit := parseTag(tag)
			if omit {
				continue
			}
			ft := sf.Type
			path := append(append([]int(nil), base...), i)

			if inline || (sf.Anonymous && (forceInline || tag == "")) {
				if isStructType(ft) || (ft.Kind() == reflect.Ptr && isStructType(ft.Elem())) {
					walk(ft, path, inline)
					continue
				}
			}
			if name == "" {
				name = sf.Name
			}
			lc := toLowerAscii(name)
			if _, ok := idx.byName[lc]; ok {
				continue
			}
			idx.byName[lc] = len(idx.fields)
			idx.fields = append(idx.fields, field{name: lc, col: name, path: path, typ: ft})
		}
	}
	walk(rt, nil, false)
	return idx
}

// parseTag supports: "-", "col", ",inline", "col,inline", "inline,col".
func parseTag(tag string) (name string, inline bool, omit bool) {
	if tag == "-" {
		return "", false, true
	}
	if tag == "" {
		return "", false, false
	}
	start := 0
	for i := 0; i <= len(tag); i++ {
		if i == len(tag) || tag[i] == ',' {
			part := tag[start:i]
			if part == "inline" {
				inline = true
			} else if part != "" && name == "" {
				name = part
			}
			start = i + 1
		}
	}
	return name, inline, false
}

// ---------------- Field access ----------------

func isStructType(t reflect.Type) bool { return derefPtr(t).Kind() == reflect.Struct }

func derefPtr(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// fieldByPathAlloc walks fpath, allocating nil pointers so the final value is
// addressable and settable.
func fieldByPathAlloc(root reflect.Value, fpath []int) reflect.Value {
	v := root
	for _, i := range fpath {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	return v
}

// fieldByPath walks fpath read-only. ok is false when a nil pointer is
// crossed, including a nil value in the final position.
func fieldByPath(root reflect.Value, fpath []int) (reflect.Value, bool) {
	v := root
	for _, i := range fpath {
		for v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, true
}

// ---------------- Cell conversion ----------------

var timeType = reflect.TypeOf(time.Time{})

// cellTimeFormats are tried in order when converting into a time.Time field.
var cellTimeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// setField converts the cell text into the field at f.path. An empty cell
// (after cleaning, for numeric fields) leaves the zero value in place;
// emptiness is decided before any pointer in the path is allocated, so
// pointer fields stay nil.
func setField(root reflect.Value, f field, cell string, cfg mapConfig) error {
	dt := derefPtr(f.typ)

	s := cell
	switch dt.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		s = cfg.cleanNumeric(cell)
	}
	if s == "" {
		return nil
	}

	dst := fieldByPathAlloc(root, f.path)

	if dt == timeType {
		for _, layout := range cellTimeFormats {
			if ts, err := time.Parse(layout, s); err == nil {
				dst.Set(reflect.ValueOf(ts))
				return nil
			}
		}
		return fmt.Errorf("cannot parse %q as time", s)
	}

	switch dt.Kind() {
	case reflect.String:
		dst.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("cannot convert %q to %s", s, dt)
		}
		dst.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, dt.Bits())
		if err != nil {
			return fmt.Errorf("cannot convert %q to %s", cell, dt)
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, dt.Bits())
		if err != nil {
			return fmt.Errorf("cannot convert %q to %s", cell, dt)
		}
		dst.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(s, dt.Bits())
		if err != nil {
			return fmt.Errorf("cannot convert %q to %s", cell, dt)
		}
		dst.SetFloat(n)
	case reflect.Slice:
		if dt.Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("unsupported field type %s", dt)
		}
		dst.SetBytes([]byte(s))
	default:
		return fmt.Errorf("unsupported field type %s", dt)
	}
	return nil
}

// cleanNumeric strips currency and grouping characters before numeric
// conversion, when cleaning is enabled.
func (c mapConfig) cleanNumeric(s string) string {
	if !c.clean {
		return s
	}
	if !strings.ContainsAny(s, "$,%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '$', ',', '%':
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// ---------------- Column normalization (ASCII fast-path) ----------------

func normalizeColAscii(s string) string {
	if l := len(s); l >= 2 {
		switch s[0] {
		case '"':
			if s[l-1] == '"' {
				s = s[1 : l-1]
			}
		case '`':
			if s[l-1] == '`' {
				s = s[1 : l-1]
			}
		case '[':
			if s[l-1] == ']' {
				s = s[1 : l-1]
			}
		}
	}
	return toLowerAscii(s)
}

func toLowerAscii(s string) string {
	var need bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			need = true
			break
		}
	}
	if !need {
		return s
	}
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c = c + ('a' - 'A')
		}
		b[i] = c
	}
	return string(b)
}
