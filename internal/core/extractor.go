package core

import (
	"context"
)

// RowExtractor turns the raw bytes of one uploaded file into field-keyed rows.
// The filename hint lets the extractor choose the right parsing strategy.
type RowExtractor interface {
	ExtractRows(ctx context.Context, filename string, data []byte) ([]map[string]string, error)
}
