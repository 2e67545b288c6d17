// Package storage persists the per-course reminder document.
//
// A Provider only moves opaque bytes; decoding and schema defaults live in
// package store. Drivers:
//   - file:   <dir>/<course>.json, written via tmp file + rename
//   - sqlite: one row per course in the documents table
package storage
