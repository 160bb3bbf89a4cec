package httpcore

import (
	"mime"
	"path/filepath"
	"strings"
)

// defaultContentType is used when the extension is unknown, matching spec
// §6.4's server_add_static default.
const defaultContentType = "application/octet-stream"

// contentTypeByExtension detects a content type from path's extension. It
// leans on stdlib mime.TypeByExtension (seeded from the OS mime.types file
// plus a small built-in table) rather than hand-rolling an extension table:
// no corpus repo defines its own MIME table, and duplicating stdlib's table
// badly would only drift from it over time — see DESIGN.md.
func contentTypeByExtension(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return defaultContentType
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	switch strings.ToLower(ext) {
	case ".wasm":
		return "application/wasm"
	case ".map":
		return "application/json"
	default:
		return defaultContentType
	}
}
