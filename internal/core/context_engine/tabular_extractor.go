package context_engine

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/samurai-chat/internal/core"
)

var _ core.RowExtractor = (*TabularExtractor)(nil)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TabularExtractor parses delimited text with a header row into field-keyed rows.
type TabularExtractor struct{}

func NewTabularExtractor() *TabularExtractor {
	return &TabularExtractor{}
}

// ExtractRows treats the first record as the header. Blank lines are skipped,
// short rows are padded with empty strings and surplus fields are dropped.
func (e *TabularExtractor) ExtractRows(ctx context.Context, filename string, data []byte) ([]map[string]string, error) {
	if !utf8.Valid(data) {
		return nil, errors.New("file is not valid UTF-8 text")
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.ReuseRecord = false
	if strings.EqualFold(filepath.Ext(filename), ".tsv") {
		r.Comma = '\t'
	}

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	rows := []map[string]string{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if isBlank(rec) {
			continue
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
