// Package render formats console snapshots for the terminal.
package render

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/0x6d61/astra/internal/console"
)

// Renderer writes a console snapshot in a specific format.
type Renderer interface {
	// Format returns the format name (e.g., "text", "json").
	Format() string

	// Render writes snap to w.
	Render(ctx context.Context, snap console.Snapshot, w io.Writer) error
}

// New creates a renderer by format name ("text" or "json").
// The format name is case-insensitive.
func New(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "text", "":
		return &TextRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %q", format)
	}
}

// FileSize formats a byte count as kilobytes with one decimal.
func FileSize(n int64) string {
	return fmt.Sprintf("%.1f KB", float64(n)/1024)
}
