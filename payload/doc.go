// Package payload normalizes function invocation payloads into a flat list of JSON events.
//
// A payload may arrive as a reader, raw bytes (optionally gzip compressed), text or an already decoded value.
// Streaming records ({"value": "<base64 json>"}), either alone, in a list or wrapped into {"records": [...]},
// are unwrapped into the JSON documents they carry. Everything else is passed through as is.
package payload
