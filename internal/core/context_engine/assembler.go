package context_engine

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/samurai-chat/internal/core"
	"github.com/markdave123-py/samurai-chat/internal/models"
)

// documentExts are handed to docconv; everything else is parsed as delimited text.
var documentExts = map[string]bool{
	".pdf":   true,
	".docx":  true,
	".doc":   true,
	".odt":   true,
	".rtf":   true,
	".html":  true,
	".htm":   true,
	".xml":   true,
	".pages": true,
}

// Assembler derives the per-turn context items from a user's catalog.
// Nothing is cached; every call reads the files again.
type Assembler struct {
	tabular  core.RowExtractor
	document core.RowExtractor
	workers  int
	logger   *slog.Logger
}

func NewAssembler(tabular, document core.RowExtractor, workers int, logger *slog.Logger) *Assembler {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		tabular:  tabular,
		document: document,
		workers:  workers,
		logger:   logger.With("component", "context_assembler"),
	}
}

type buildResult struct {
	item  *models.ContextItem
	fault *models.ContextFault
}

// Build returns one item per readable file in catalog order. Files that are
// missing on disk or fail to parse are left out and reported as faults.
// Only cancellation of ctx makes Build fail.
func (a *Assembler) Build(ctx context.Context, files []models.UserDataFile) ([]models.ContextItem, []models.ContextFault, error) {
	results := make([]buildResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.buildOne(gctx, f)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	items := []models.ContextItem{}
	faults := []models.ContextFault{}
	for _, r := range results {
		if r.fault != nil {
			faults = append(faults, *r.fault)
			continue
		}
		items = append(items, *r.item)
	}
	return items, faults, nil
}

func (a *Assembler) buildOne(ctx context.Context, f models.UserDataFile) buildResult {
	data, err := os.ReadFile(f.PathToFile)
	if err != nil {
		kind := models.ContextFaultParse
		msg := "file could not be read"
		if errors.Is(err, fs.ErrNotExist) {
			kind = models.ContextFaultMissing
			msg = "file is listed in the catalog but missing on disk"
			a.logger.Error("catalog entry without file", "user_id", f.UserID, "filename", f.Filename)
		} else {
			a.logger.Warn("reading context file failed", "user_id", f.UserID, "filename", f.Filename, "error", err)
		}
		return buildResult{fault: &models.ContextFault{Filename: f.Filename, Kind: kind, Message: msg}}
	}

	rows, err := a.extractorFor(f.Filename).ExtractRows(ctx, f.Filename, data)
	if err != nil {
		a.logger.Warn("parsing context file failed", "user_id", f.UserID, "filename", f.Filename, "error", err)
		return buildResult{fault: &models.ContextFault{
			Filename: f.Filename,
			Kind:     models.ContextFaultParse,
			Message:  err.Error(),
		}}
	}

	return buildResult{item: &models.ContextItem{
		Description: Describe(f.Filename),
		Data:        rows,
	}}
}

func (a *Assembler) extractorFor(filename string) core.RowExtractor {
	if documentExts[strings.ToLower(filepath.Ext(filename))] {
		return a.document
	}
	return a.tabular
}

// Describe is the file's base name up to the first dot.
func Describe(filename string) string {
	base := filepath.Base(filename)
	if i := strings.Index(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}
