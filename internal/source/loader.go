package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"docrag/internal/domain"
)

// DefaultPattern selects the files a directory walk picks up.
const DefaultPattern = "**/*.{pdf,txt,csv,xls,xlsx,docx,json,md,markdown,sql}"

// Reader turns one file into documents. Readers fill Content and any
// format-specific metadata; the Loader assigns ids and common metadata.
type Reader interface {
	Read(path string) ([]domain.Document, error)
}

// Loader resolves files, directories and glob patterns and dispatches each
// file to the Reader registered for its extension.
type Loader struct {
	readers map[string]Reader
	pattern string
	logger  logrus.FieldLogger
}

// NewLoader returns a loader with every built-in format registered.
func NewLoader(logger logrus.FieldLogger) *Loader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	l := &Loader{readers: map[string]Reader{}, pattern: DefaultPattern, logger: logger}
	l.Register(".txt", TextReader{Format: "text"})
	l.Register(".sql", TextReader{Format: "sql"})
	l.Register(".md", MarkdownReader{})
	l.Register(".markdown", MarkdownReader{})
	l.Register(".pdf", PDFReader{})
	l.Register(".csv", CSVReader{})
	l.Register(".xlsx", ExcelReader{})
	l.Register(".xls", ExcelReader{})
	l.Register(".docx", DocxReader{})
	l.Register(".json", JSONReader{})
	return l
}

// Register binds a reader to a file extension such as ".txt".
func (l *Loader) Register(ext string, r Reader) {
	l.readers[strings.ToLower(ext)] = r
}

// SetPattern replaces the doublestar pattern used when walking directories.
func (l *Loader) SetPattern(pattern string) error {
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("%w: invalid pattern %q", domain.ErrConfiguration, pattern)
	}
	l.pattern = pattern
	return nil
}

// Supports reports whether path has a registered reader.
func (l *Loader) Supports(path string) bool {
	_, ok := l.readers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Load reads every file named by paths. A failing file is reported in the
// returned errors and does not stop the others.
func (l *Loader) Load(ctx context.Context, paths []string) ([]domain.Document, []error) {
	files, errs := l.Resolve(paths)
	var docs []domain.Document
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		got, err := l.loadFile(f)
		if err != nil {
			l.logger.WithError(err).WithField("path", f).Warn("skipping file")
			errs = append(errs, err)
			continue
		}
		l.logger.WithFields(logrus.Fields{"path": f, "documents": len(got)}).Debug("loaded file")
		docs = append(docs, got...)
	}
	return docs, errs
}

func (l *Loader) loadFile(path string) ([]domain.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	r, ok := l.readers[ext]
	if !ok {
		return nil, fmt.Errorf("%s: unsupported format %q", path, ext)
	}
	raw, err := r.Read(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	docs := make([]domain.Document, 0, len(raw))
	for i, d := range raw {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		d.ID = DocumentID(abs, i)
		d.Path = path
		md := domain.CloneMetadata(d.Metadata)
		md[domain.MetaSourceID] = d.ID
		md[domain.MetaSource] = path
		if _, ok := md[domain.MetaFormat]; !ok {
			md[domain.MetaFormat] = strings.TrimPrefix(ext, ".")
		}
		d.Metadata = md
		docs = append(docs, d)
	}
	return docs, nil
}

// DocumentID is a stable name-based UUID for the part-th document of a file.
func DocumentID(absPath string, part int) string {
	name := "file://" + filepath.ToSlash(absPath) + "#" + strconv.Itoa(part)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Resolve expands globs and directories into a sorted, de-duplicated file list.
func (l *Loader) Resolve(paths []string) ([]string, []error) {
	seen := map[string]struct{}{}
	var files []string
	var errs []error
	add := func(p string) {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}
	for _, p := range paths {
		if strings.ContainsAny(p, "*?[{") {
			matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", p, err))
				continue
			}
			if len(matches) == 0 {
				errs = append(errs, fmt.Errorf("%s: no files match", p))
			}
			for _, m := range matches {
				add(m)
			}
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		walked, err := l.walk(p)
		if err != nil {
			errs = append(errs, err)
		}
		for _, m := range walked {
			add(m)
		}
	}
	sort.Strings(files)
	return files, errs
}

func (l *Loader) walk(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		ok, err := doublestar.Match(l.pattern, strings.ToLower(filepath.ToSlash(rel)))
		if err != nil {
			return err
		}
		if ok {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}
