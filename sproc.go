package sproc

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Querier is implemented by *sql.DB, *sql.Tx, *sql.Conn, and any wrapper
// that can execute a query returning rows.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer is implemented by *sql.DB, *sql.Tx, *sql.Conn, and any wrapper
// that can execute a statement that does not return rows.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Placeholder selects the positional parameter style for a target database.
//
// Common choices:
//   - PlaceholderQuestion → "?"          (MySQL, SQLite, DuckDB, ClickHouse)
//   - PlaceholderDollar   → "$1, $2, …"  (PostgreSQL)
//   - PlaceholderAtP      → "@p1, @p2…"  (SQL Server)
//   - PlaceholderColonNum → ":1, :2, …"  (Oracle)
type Placeholder int

const (
	PlaceholderQuestion Placeholder = iota
	PlaceholderDollar
	PlaceholderAtP
	PlaceholderColonNum
)

// PlaceholderFor picks a Placeholder based on a driver name string.
// This is the default used by New when no explicit style is configured.
//
// Examples:
//
//	ph := sproc.PlaceholderFor("postgres") // => PlaceholderDollar
//	ph := sproc.PlaceholderFor("sqlserver") // => PlaceholderAtP
//	ph := sproc.PlaceholderFor("mysql")    // => PlaceholderQuestion
func PlaceholderFor(driverName string) Placeholder {
	switch strings.ToLower(driverName) {
	case "pgx", "postgres", "postgresql", "lib/pq", "pg":
		return PlaceholderDollar
	case "sqlserver", "mssql":
		return PlaceholderAtP
	case "godror", "oracle", "goracle":
		return PlaceholderColonNum
	default:
		return PlaceholderQuestion
	}
}

func (ph Placeholder) append(out []byte, arg int) []byte {
	switch ph {
	case PlaceholderDollar:
		out = append(out, '$')
		return strconv.AppendInt(out, int64(arg), 10)
	case PlaceholderAtP:
		out = append(out, '@', 'p')
		return strconv.AppendInt(out, int64(arg), 10)
	case PlaceholderColonNum:
		out = append(out, ':')
		return strconv.AppendInt(out, int64(arg), 10)
	default:
		return append(out, '?')
	}
}

// callStatement renders "CALL proc(?, ?, …)" with n placeholders in the
// configured style. The procedure name must already be validated.
func callStatement(procedure string, ph Placeholder, n int) string {
	out := make([]byte, 0, len(procedure)+8+4*n)
	out = append(out, "CALL "...)
	out = append(out, procedure...)
	out = append(out, '(')
	for i := 1; i <= n; i++ {
		if i > 1 {
			out = append(out, ", "...)
		}
		out = ph.append(out, i)
	}
	out = append(out, ')')
	return string(out)
}

// validProcedureName accepts a plain identifier, optionally schema-qualified
// ("dbo.GetUsers", "billing.reports.monthly"). Everything else is rejected
// before any SQL is rendered, so a procedure name can never smuggle SQL text.
func validProcedureName(name string) error {
	if name == "" {
		return fmt.Errorf("empty procedure name")
	}
	for _, part := range strings.Split(name, ".") {
		if !validIdent(part) {
			return fmt.Errorf("invalid procedure name %q", name)
		}
	}
	return nil
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	r, w := utf8.DecodeRuneInString(s)
	if !(r == '_' || unicode.IsLetter(r)) {
		return false
	}
	for _, r := range s[w:] {
		if !(r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}
