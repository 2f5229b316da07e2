// Package store provides persistence for campusshield.
//
// Two kinds of state are kept:
//   - A key/value table. The result panel position is stored there per page
//     origin, using the schema {"top": "<n>px", "right": "<n>px"}.
//   - A scan history table with the verdict of every completed scan. Only the
//     verdict and the page origin are stored, never the e-mail content.
//
// DB is backed by SQLite (modernc.org/sqlite, no cgo). Memory implements the
// same key/value contract for tests and for runs without a database.
package store
