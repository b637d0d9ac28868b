package context_engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/samurai-chat/internal/models"
)

// stubExtractor records that it was chosen and returns one fixed row.
type stubExtractor struct{ tag string }

func (s stubExtractor) ExtractRows(_ context.Context, _ string, _ []byte) ([]map[string]string, error) {
	return []map[string]string{{"via": s.tag}}, nil
}

func writeFile(t *testing.T, dir, name, content string) models.UserDataFile {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return models.UserDataFile{UserID: "u1", Filename: name, PathToFile: p}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "prices", Describe("prices.csv"))
	assert.Equal(t, "report", Describe("report.v2.csv"))
	assert.Equal(t, "notes", Describe("notes"))
}

func TestBuildKeepsCatalogOrder(t *testing.T) {
	dir := t.TempDir()
	files := []models.UserDataFile{
		writeFile(t, dir, "b.csv", "k\n2\n"),
		writeFile(t, dir, "a.csv", "k\n1\n"),
		writeFile(t, dir, "c.csv", "k\n3\n"),
	}

	a := NewAssembler(NewTabularExtractor(), stubExtractor{"doc"}, 2, nil)
	items, faults, err := a.Build(context.Background(), files)
	require.NoError(t, err)
	assert.Empty(t, faults)
	require.Len(t, items, 3)
	assert.Equal(t, "b", items[0].Description)
	assert.Equal(t, "2", items[0].Data[0]["k"])
	assert.Equal(t, "a", items[1].Description)
	assert.Equal(t, "c", items[2].Description)
}

func TestBuildRoutesByExtension(t *testing.T) {
	dir := t.TempDir()
	files := []models.UserDataFile{
		writeFile(t, dir, "memo.PDF", "%PDF"),
		writeFile(t, dir, "data.txt", "x"),
	}

	a := NewAssembler(stubExtractor{"tab"}, stubExtractor{"doc"}, 1, nil)
	items, _, err := a.Build(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "doc", items[0].Data[0]["via"])
	assert.Equal(t, "tab", items[1].Data[0]["via"])
}

func TestBuildIsolatesFaults(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.csv", "k\nv\n")
	bad := writeFile(t, dir, "bad.csv", "k\n\"open\n")
	missing := models.UserDataFile{UserID: "u1", Filename: "gone.csv", PathToFile: filepath.Join(dir, "gone.csv")}

	a := NewAssembler(NewTabularExtractor(), stubExtractor{"doc"}, 4, nil)
	items, faults, err := a.Build(context.Background(), []models.UserDataFile{missing, good, bad})
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "good", items[0].Description)

	require.Len(t, faults, 2)
	assert.Equal(t, "gone.csv", faults[0].Filename)
	assert.Equal(t, models.ContextFaultMissing, faults[0].Kind)
	assert.Equal(t, "bad.csv", faults[1].Filename)
	assert.Equal(t, models.ContextFaultParse, faults[1].Kind)
}

func TestBuildEmptyCatalog(t *testing.T) {
	a := NewAssembler(NewTabularExtractor(), stubExtractor{"doc"}, 4, nil)
	items, faults, err := a.Build(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	assert.Empty(t, faults)
}

func TestBuildCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAssembler(NewTabularExtractor(), stubExtractor{"doc"}, 1, nil)
	_, _, err := a.Build(ctx, []models.UserDataFile{writeFile(t, dir, "a.csv", "k\n1\n")})
	require.ErrorIs(t, err, context.Canceled)
}
