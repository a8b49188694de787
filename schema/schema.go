// Package schema embeds the published JSON Schema for taptap-observe's
// stdout events, so the binary can print it without a separate file on
// disk.
package schema

import _ "embed"

//go:embed events.schema.json
var Events []byte
