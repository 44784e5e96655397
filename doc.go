/*
Package sproc is a small layer over database/sql for calling stored
procedures with positional string parameters and moving their tabular
results in and out of typed structs. You name a procedure and its
parameters; sproc renders the dialect-correct CALL statement, materializes
the result, and maps it with a tiny, predictable API.

# Overview

An Executor resolves its connection string from a read-only Source (a YAML
connections file, the environment, or a static map), opens a connection
scoped to each call, executes, and releases the connection on every exit
path. Results come back as a fully materialized Table; ToStructs, ToStruct,
and ToTable convert between tables and struct slices.

# Mapping rules

  - Fields bind by `db:"name"` first; otherwise case-insensitive field ←→ column name.
  - Nested structs can be flattened with `db:",inline"`.
  - Pointer fields are allocated and set through; NULL and empty cells leave zero values.
  - Extra columns are ignored; missing columns yield zero values (favors robustness).
  - Cells bound for numeric fields are cleaned of '$', ',', '%' before
    conversion (currency- and percent-formatted text); disable with
    WithoutCleaning. String fields are never cleaned.

# Connections

By default every call opens, verifies, and closes its own handle, so no
connection ever outlives a call and the driver pool is discarded with it.
WithPooling keeps one pool handle open across calls and gives each call a
private connection from it. The reachability check on open is bounded by
WithConnectTimeout, so a dead host fails fast instead of hanging.

# Error handling

  - Failures wrap exactly one of ErrConnect, ErrExecute, ErrConvert.
  - OpError carries the operation and procedure name; errors.As reaches it,
    errors.Is reaches the kind sentinel and the driver error beneath.
  - ToStruct on an empty table reports absence, not an error.

# Compatibility

sproc works with any database/sql driver. The CALL placeholder style is
inferred from the driver name (PlaceholderFor) and can be overridden for
drivers registered under nonstandard names.

sproc is intended for codebases that talk to procedure-heavy databases and
value clarity over abstraction. It keeps the API small and predictable while
leaving connection pooling, timeouts, and transactions to database/sql.
*/
package sproc
