package sproc

import (
	"testing"
	"time"
)

func TestToStructs_BasicMapping(t *testing.T) {
	type User struct {
		ID    int64  `db:"id"`
		Email string `db:"email"`
		Admin bool
	}
	table := &Table{
		Columns: []string{"ID", "EMAIL", "admin", "ignored"},
		Rows: [][]any{
			{int64(1), "a@example.com", "true", "x"},
			{int64(2), "b@example.com", "false", "y"},
		},
	}

	got, err := ToStructs[User](table)
	if err != nil {
		t.Fatalf("ToStructs error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].ID != 1 || got[0].Email != "a@example.com" || !got[0].Admin {
		t.Fatalf("unexpected first row: %+v", got[0])
	}
	if got[1].ID != 2 || got[1].Admin {
		t.Fatalf("unexpected second row: %+v", got[1])
	}
}

func TestToStructs_ZeroRows_EmptySlice(t *testing.T) {
	type Row struct{ N int }
	got, err := ToStructs[Row](&Table{Columns: []string{"n"}})
	if err != nil {
		t.Fatalf("ToStructs error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty slice, got %v", got)
	}
}

func TestToStructs_NullAndMissingLeaveZero(t *testing.T) {
	type Row struct {
		A string
		B int
		C float64 // no matching column
	}
	table := &Table{
		Columns: []string{"a", "b"},
		Rows:    [][]any{{nil, ""}},
	}
	got, err := ToStructs[Row](table)
	if err != nil {
		t.Fatalf("ToStructs error: %v", err)
	}
	if got[0].A != "" || got[0].B != 0 || got[0].C != 0 {
		t.Fatalf("expected zero values, got %+v", got[0])
	}
}

func TestToStructs_CleansCurrencyAndPercent(t *testing.T) {
	type Row struct {
		Total float64 `db:"total"`
		Rate  int     `db:"rate"`
		Memo  string  `db:"memo"`
	}
	table := &Table{
		Columns: []string{"total", "rate", "memo"},
		Rows:    [][]any{{"$1,234.50", "12%", "$9.99, or 5%"}},
	}
	got, err := ToStructs[Row](table)
	if err != nil {
		t.Fatalf("ToStructs error: %v", err)
	}
	if got[0].Total != 1234.5 || got[0].Rate != 12 {
		t.Fatalf("cleaning failed: %+v", got[0])
	}
	// String fields pass through untouched.
	if got[0].Memo != "$9.99, or 5%" {
		t.Fatalf("string field was cleaned: %q", got[0].Memo)
	}
}

func TestToStructs_WithoutCleaning(t *testing.T) {
	type Row struct {
		Total float64 `db:"total"`
	}
	table := &Table{Columns: []string{"total"}, Rows: [][]any{{"$1,234.50"}}}

	if _, err := ToStructs[Row](table, WithoutCleaning()); !IsConvert(err) {
		t.Fatalf("expected convert-kind error without cleaning, got %v", err)
	}
}

func TestToStructs_ConversionErrorAbortsBatch(t *testing.T) {
	type Row struct {
		N int `db:"n"`
	}
	table := &Table{
		Columns: []string{"n"},
		Rows:    [][]any{{"1"}, {"not a number"}, {"3"}},
	}
	got, err := ToStructs[Row](table)
	if !IsConvert(err) {
		t.Fatalf("expected convert-kind error, got %v", err)
	}
	if got != nil {
		t.Fatalf("no partial results on failure, got %v", got)
	}
}

func TestToStructs_PointerFields(t *testing.T) {
	type Row struct {
		Name *string `db:"name"`
		Age  *int    `db:"age"`
	}
	table := &Table{
		Columns: []string{"name", "age"},
		Rows:    [][]any{{"alice", "30"}, {nil, nil}},
	}
	got, err := ToStructs[Row](table)
	if err != nil {
		t.Fatalf("ToStructs error: %v", err)
	}
	if got[0].Name == nil || *got[0].Name != "alice" || got[0].Age == nil || *got[0].Age != 30 {
		t.Fatalf("unexpected first row: %+v", got[0])
	}
	if got[1].Name != nil || got[1].Age != nil {
		t.Fatalf("NULL cells must leave nil pointers: %+v", got[1])
	}
}

func TestToStructs_EmptyCellLeavesNilPointer(t *testing.T) {
	type Row struct {
		Name *string  `db:"name"`
		Age  *int     `db:"age"`
		Live *bool    `db:"live"`
		Rate *float64 `db:"rate"`
	}
	table := &Table{
		Columns: []string{"name", "age", "live", "rate"},
		Rows:    [][]any{{"", "", "", "$,%"}},
	}
	got, err := ToStructs[Row](table)
	if err != nil {
		t.Fatalf("ToStructs error: %v", err)
	}
	// An empty cell, including one empty after cleaning, must leave the
	// field's zero value: nil, not a pointer to zero.
	if got[0].Name != nil || got[0].Age != nil || got[0].Live != nil || got[0].Rate != nil {
		t.Fatalf("empty cells must leave nil pointers: %+v", got[0])
	}
}

func TestToStructs_NilTable(t *testing.T) {
	type Row struct{ N int }
	got, err := ToStructs[Row](nil)
	if err != nil {
		t.Fatalf("ToStructs error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty slice, got %v", got)
	}

	if _, ok, err := ToStruct[Row](nil); err != nil || ok {
		t.Fatalf("nil table must report absence: ok=%v err=%v", ok, err)
	}
}

func TestToStructs_InlineNested(t *testing.T) {
	type Address struct {
		City string `db:"city"`
	}
	type Customer struct {
		Name    string  `db:"name"`
		Address Address `db:",inline"`
	}
	table := &Table{
		Columns: []string{"name", "city"},
		Rows:    [][]any{{"acme", "berlin"}},
	}
	got, err := ToStructs[Customer](table)
	if err != nil {
		t.Fatalf("ToStructs error: %v", err)
	}
	if got[0].Name != "acme" || got[0].Address.City != "berlin" {
		t.Fatalf("unexpected: %+v", got[0])
	}
}

func TestToStructs_TimeField(t *testing.T) {
	type Row struct {
		At time.Time `db:"at"`
	}
	want := time.Date(2026, 8, 31, 12, 30, 0, 0, time.UTC)
	table := &Table{Columns: []string{"at"}, Rows: [][]any{{want}}}

	got, err := ToStructs[Row](table)
	if err != nil {
		t.Fatalf("ToStructs error: %v", err)
	}
	if !got[0].At.Equal(want) {
		t.Fatalf("time mismatch: got %v want %v", got[0].At, want)
	}
}

func TestToStructs_NonStructDestination(t *testing.T) {
	if _, err := ToStructs[int64](&Table{Columns: []string{"n"}}); !IsConvert(err) {
		t.Fatalf("expected convert-kind error, got %v", err)
	}
}

func TestToStruct_FirstRowOnly(t *testing.T) {
	type Row struct {
		N int `db:"n"`
	}
	table := &Table{Columns: []string{"n"}, Rows: [][]any{{"1"}, {"2"}}}

	got, ok, err := ToStruct[Row](table)
	if err != nil || !ok {
		t.Fatalf("ToStruct: ok=%v err=%v", ok, err)
	}
	if got.N != 1 {
		t.Fatalf("expected first row, got %+v", got)
	}
}

func TestToStruct_EmptyTable_Absent(t *testing.T) {
	type Row struct{ N int }
	got, ok, err := ToStruct[Row](&Table{Columns: []string{"n"}})
	if err != nil {
		t.Fatalf("empty table must not error: %v", err)
	}
	if ok {
		t.Fatalf("expected absence, got %+v", got)
	}
}

func TestToTable_DeclarationOrderColumns(t *testing.T) {
	type Item struct {
		SKU   string  `db:"sku"`
		Price float64 `db:"price"`
		Count int
		note  string // unexported, skipped
	}
	_ = Item{note: ""}

	table, err := ToTable([]Item{
		{SKU: "a-1", Price: 9.5, Count: 3},
		{SKU: "b-2", Price: 1.25, Count: 0},
	})
	if err != nil {
		t.Fatalf("ToTable error: %v", err)
	}
	wantCols := []string{"sku", "price", "Count"}
	if len(table.Columns) != len(wantCols) {
		t.Fatalf("columns: %v", table.Columns)
	}
	for i, c := range wantCols {
		if table.Columns[i] != c {
			t.Fatalf("column %d: got %q want %q", i, table.Columns[i], c)
		}
	}
	if table.Len() != 2 || table.Rows[0][0] != "a-1" || table.Rows[0][1] != 9.5 || table.Rows[1][2] != 0 {
		t.Fatalf("unexpected rows: %v", table.Rows)
	}
}

func TestToTable_NilPointerBecomesNull(t *testing.T) {
	type Row struct {
		Name *string `db:"name"`
	}
	table, err := ToTable([]Row{{Name: nil}, {Name: strp("x")}})
	if err != nil {
		t.Fatalf("ToTable error: %v", err)
	}
	if table.Rows[0][0] != nil {
		t.Fatalf("nil pointer must store NULL, got %#v", table.Rows[0][0])
	}
	if table.Rows[1][0] != "x" {
		t.Fatalf("pointer must store its pointee, got %#v", table.Rows[1][0])
	}
}

func TestRoundTrip_ScalarFields(t *testing.T) {
	type Metric struct {
		Name  string  `db:"name"`
		Value float64 `db:"value"`
		Count int64   `db:"count"`
		Live  bool    `db:"live"`
	}
	in := []Metric{
		{Name: "latency", Value: 12.5, Count: 100, Live: true},
		{Name: "errors", Value: 0.25, Count: 7, Live: false},
	}

	table, err := ToTable(in)
	if err != nil {
		t.Fatalf("ToTable error: %v", err)
	}
	out, err := ToStructs[Metric](table)
	if err != nil {
		t.Fatalf("ToStructs error: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length mismatch: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("row %d: got %+v want %+v", i, out[i], in[i])
		}
	}
}

func TestCellString(t *testing.T) {
	cases := []struct {
		in   any
		want string
		ok   bool
	}{
		{nil, "", false},
		{"x", "x", true},
		{[]byte("y"), "y", true},
		{int64(-3), "-3", true},
		{uint64(3), "3", true},
		{1.5, "1.5", true},
		{true, "true", true},
	}
	for _, c := range cases {
		got, ok := cellString(c.in)
		if got != c.want || ok != c.ok {
			t.Fatalf("cellString(%#v) = %q,%v; want %q,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}
