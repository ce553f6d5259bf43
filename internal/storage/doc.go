// Package storage provides the optional run-history persistence layer.
//
// Every task invocation (scheduled, manual or CLI) can be appended as a
// RunRecord. The dashboard's last-run timestamps are never restored from here;
// the store is an audit trail only.
//
// Drivers:
//   - "file": JSON Lines file, dependency-free
//   - "sqlite": SQLite database via modernc.org/sqlite
package storage
