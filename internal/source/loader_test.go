package source

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"docrag/internal/domain"
	"docrag/internal/logging"
)

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func writeDocx(t *testing.T, dir, name string, paragraphs ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)
	_, err = w.Write([]byte(body.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func newLoader() *Loader { return NewLoader(logging.Discard()) }

func TestLoadTextAssignsStableIDs(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "notes.txt", "The capital of France is Paris.\r\nSecond line.")

	docs, errs := newLoader().Load(context.Background(), []string{path})
	require.Empty(t, errs)
	require.Len(t, docs, 1)
	d := docs[0]
	assert.Equal(t, "The capital of France is Paris.\nSecond line.", d.Content)
	assert.Equal(t, d.ID, d.Metadata[domain.MetaSourceID])
	assert.Equal(t, path, d.Metadata[domain.MetaSource])
	assert.Equal(t, "text", d.Metadata[domain.MetaFormat])

	again, _ := newLoader().Load(context.Background(), []string{path})
	assert.Equal(t, d.ID, again[0].ID)

	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	assert.Equal(t, DocumentID(abs, 0), d.ID)
	assert.NotEqual(t, DocumentID(abs, 1), d.ID)
}

func TestLoadCSVOneDocumentPerRow(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "cities.csv", "\ufeffcity,country\nParis,France\nRome,Italy,extra\n")

	docs, errs := newLoader().Load(context.Background(), []string{path})
	require.Empty(t, errs)
	require.Len(t, docs, 2)
	assert.Equal(t, "city: Paris\ncountry: France", docs[0].Content)
	assert.Equal(t, "city: Rome\ncountry: Italy\ncolumn3: extra", docs[1].Content)
	assert.Equal(t, "2", docs[1].Metadata["row"])
	assert.NotEqual(t, docs[0].ID, docs[1].ID)
}

func TestLoadJSONFlattens(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "data.json", `{"name":"Paris","tags":["capital","city"],"geo":{"lat":48.85},"none":null}`)

	docs, errs := newLoader().Load(context.Background(), []string{path})
	require.Empty(t, errs)
	require.Len(t, docs, 1)
	assert.Equal(t, "geo.lat: 48.85\nname: Paris\ntags[0]: capital\ntags[1]: city", docs[0].Content)
}

func TestLoadMarkdownKeepsParagraphs(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "readme.md", "# Paris\n\nThe **capital** of\nFrance.\n\n- one\n- two\n\n```\ncode here\n```\n")

	docs, errs := newLoader().Load(context.Background(), []string{path})
	require.Empty(t, errs)
	require.Len(t, docs, 1)
	assert.Equal(t, "Paris\n\nThe capital of France.\n\none\n\ntwo\n\ncode here", docs[0].Content)
	assert.Equal(t, "Paris", docs[0].Metadata["title"])
}

func TestLoadDocx(t *testing.T) {
	dir := t.TempDir()
	path := writeDocx(t, dir, "memo.docx", "First paragraph.", "Second paragraph.")

	docs, errs := newLoader().Load(context.Background(), []string{path})
	require.Empty(t, errs)
	require.Len(t, docs, 1)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", docs[0].Content)
	assert.Equal(t, "docx", docs[0].Metadata[domain.MetaFormat])
}

func TestLoadExcelOneDocumentPerSheet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "city"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "country"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Paris"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "France"))
	_, err := f.NewSheet("Empty")
	require.NoError(t, err)
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	docs, errs := newLoader().Load(context.Background(), []string{path})
	require.Empty(t, errs)
	require.Len(t, docs, 1)
	assert.Equal(t, "city\tcountry\nParis\tFrance", docs[0].Content)
	assert.Equal(t, "Sheet1", docs[0].Metadata["sheet"])
}

func TestLoadCollectsPerFileFailures(t *testing.T) {
	dir := t.TempDir()
	good := write(t, dir, "good.txt", "fine")
	badPDF := write(t, dir, "broken.pdf", "not a pdf")
	badJSON := write(t, dir, "broken.json", "{")
	legacy := write(t, dir, "old.xls", "binary")
	unknown := write(t, dir, "image.png", "png")

	docs, errs := newLoader().Load(context.Background(), []string{badPDF, good, badJSON, legacy, unknown, filepath.Join(dir, "missing.txt")})
	require.Len(t, docs, 1)
	assert.Equal(t, "fine", docs[0].Content)
	assert.Len(t, errs, 5)

	var sawLegacy bool
	for _, err := range errs {
		if assert.Error(t, err) && strings.Contains(err.Error(), "old.xls") {
			sawLegacy = assert.ErrorIs(t, err, ErrLegacyExcel)
		}
	}
	assert.True(t, sawLegacy)
}

func TestLoadWalksDirectoriesAndGlobs(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.txt", "alpha")
	write(t, dir, "sub/b.md", "beta")
	write(t, dir, "sub/deeper/c.sql", "select 1;")
	write(t, dir, "sub/skip.png", "png")
	write(t, dir, ".hidden/d.txt", "hidden")
	write(t, dir, "empty.txt", "   \n")

	docs, errs := newLoader().Load(context.Background(), []string{dir})
	require.Empty(t, errs)
	var contents []string
	for _, d := range docs {
		contents = append(contents, d.Content)
	}
	assert.Equal(t, []string{"alpha", "beta", "select 1;"}, contents)

	files, errs := newLoader().Resolve([]string{dir, filepath.Join(dir, "a.txt")})
	require.Empty(t, errs)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "empty.txt"),
		filepath.Join(dir, "sub", "b.md"),
		filepath.Join(dir, "sub", "deeper", "c.sql"),
	}, files)

	docs, errs = newLoader().Load(context.Background(), []string{filepath.Join(dir, "**", "*.txt"), filepath.Join(dir, "a.txt")})
	require.Empty(t, errs)
	require.Len(t, docs, 2)

	_, errs = newLoader().Load(context.Background(), []string{filepath.Join(dir, "*.nothing")})
	assert.Len(t, errs, 1)
}

func TestLoadStopsOnCancelledContext(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "a.txt", "alpha")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	docs, errs := newLoader().Load(ctx, []string{path})
	assert.Empty(t, docs)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
}

func TestSupportsAndRegister(t *testing.T) {
	l := newLoader()
	assert.True(t, l.Supports("x/REPORT.PDF"))
	assert.False(t, l.Supports("x/photo.png"))

	l.Register(".log", TextReader{Format: "log"})
	assert.True(t, l.Supports("server.log"))
	require.Error(t, l.SetPattern("[unclosed"))
	require.NoError(t, l.SetPattern("**/*.log"))

	dir := t.TempDir()
	write(t, dir, "app/server.log", "started")
	write(t, dir, "notes.txt", "ignored by the pattern")
	docs, errs := l.Load(context.Background(), []string{dir})
	require.Empty(t, errs)
	require.Len(t, docs, 1)
	assert.Equal(t, "started", docs[0].Content)
}
