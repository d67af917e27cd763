// Package ir provides the shared record and model-schema types for restq.
//
// This package contains type definitions and value helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// record shape and schema description the foundational layer with no
// circular dependencies.
//
// Key design constraints:
//   - Records are plain map[string]any values so they round-trip through
//     encoding/json without adapters
//   - Every store read is normalized by field type before it leaves the store
//   - Canonical JSON (RFC 8785 key order, NFC strings) is the only encoding
//     used for content-addressed identifiers and golden output
package ir
