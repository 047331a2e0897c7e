// Package core provides dataset persistence and query translation.
//
// The package is independent of any transport or storage driver. Handlers,
// CLI tools and tests talk to a [Service], and the Service talks to a [Store]
// engine (Postgres, SQLite or in-memory, see internal/store).
//
// # Data Model
//
// A [Dataset] is a named collection of tabular rows. Each save of a sheet
// records an [Import] entry on the dataset, and every persisted [Row] points
// back to both its dataset and the import that produced it.
//
// # Saving
//
// [Service.SaveImportWithRows] resolves the target dataset with a
// [DatasetMatcher] (explicit id, else filename plus sheet index), upserts the
// dataset and its import entry, then writes the rows under a [ReplaceMode]:
//
//   - Append: existing rows are kept
//   - ReplaceImport: rows of the supplied import are deleted first
//   - ReplaceAll: every row of the dataset is deleted first
//
// Deletion happens before insertion and the two are not atomic.
//
// # Querying
//
// Query-string parameters are turned into an [Expr] tree by [BuildFilter],
// [SearchFilter], [RowSort] and [DatasetSort]. Raw strings are cast by
// [Cast] into the value a column most plausibly holds. Engines translate the
// tree into their own query language.
//
// # Values
//
// Stored documents carry tagged values (ids, timestamps, numbers). [ToStorage]
// and [FromStorage] convert between the external JSON-friendly form and the
// storage form; ids become strings and timestamps become ISO-8601 strings
// with millisecond precision on the way out.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DS001-DS004: Dataset errors (not found, invalid id, save failures)
//   - DB001-DB007: Database errors (duplicates, connections, timeouts)
//   - REQ001-REQ004: Request errors (bad payload, busy, cancelled)
package core
