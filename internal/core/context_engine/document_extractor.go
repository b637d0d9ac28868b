package context_engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/samurai-chat/internal/core"
)

var _ core.RowExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor turns office documents, PDFs and markup into one row per line of text.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// ExtractRows converts the document and returns {"text": line} for every non-blank line.
func (e *DocconvExtractor) ExtractRows(ctx context.Context, filename string, data []byte) ([]map[string]string, error) {
	contentType := docconv.MimeTypeByExtension(filename)
	if contentType == "application/octet-stream" {
		return nil, fmt.Errorf("no converter for %q", filename)
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
	if err != nil {
		return nil, fmt.Errorf("docconv %s: %w", contentType, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := res.Body
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("document has no extractable text")
	}

	rows := []map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		rows = append(rows, map[string]string{"text": line})
	}
	return rows, nil
}
