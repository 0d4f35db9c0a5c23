package render

import (
	"context"
	"encoding/json"
	"io"

	"github.com/0x6d61/astra/internal/console"
)

// JSONRenderer outputs the whole snapshot as JSON.
type JSONRenderer struct {
	// Compact outputs single-line JSON when true (no indentation).
	Compact bool
}

// Format returns "json".
func (r *JSONRenderer) Format() string {
	return "json"
}

type jsonOutput struct {
	SchemaVersion string `json:"schema_version"`
	Tool          string `json:"tool"`
	console.Snapshot
}

// Render writes snap as JSON. Every panel is included, not only the
// active page.
func (r *JSONRenderer) Render(ctx context.Context, snap console.Snapshot, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out := jsonOutput{
		SchemaVersion: "1.0",
		Tool:          "astra",
		Snapshot:      snap,
	}
	enc := json.NewEncoder(w)
	if !r.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}
