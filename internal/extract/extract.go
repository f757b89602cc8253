// Package extract turns uploaded document files into plain text ready for
// chunk splitting.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	"knowledgescout/internal/text"
)

// Result carries the extracted text plus the page count where the format
// has one; plain formats count as a single page.
type Result struct {
	Text  string
	Pages int
}

var supportedExts = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
	".md":   true,
}

// Supported reports whether the file extension can be extracted. The check
// runs at upload time so unsupported files are rejected before they are
// stored.
func Supported(filename string) bool {
	return supportedExts[strings.ToLower(filepath.Ext(filename))]
}

// FromFile extracts plain text from the file at path, dispatching on its
// extension.
func FromFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	return FromReader(f, filepath.Base(path))
}

// FromReader extracts plain text from r, using filename only to pick the
// format.
func FromReader(r io.Reader, filename string) (Result, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".pdf":
		return fromPDF(r)
	case ".docx":
		return fromDOCX(r)
	case ".md":
		return fromMarkdown(r)
	case ".txt":
		return fromPlain(r)
	default:
		return Result{}, fmt.Errorf("unsupported file type %q", ext)
	}
}

func fromPlain(r io.Reader) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read text: %w", err)
	}
	return Result{Text: collapseNewlines(string(data)), Pages: 1}, nil
}

func fromMarkdown(r io.Reader) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read markdown: %w", err)
	}
	return Result{Text: collapseNewlines(text.CleanMarkdown(string(data))), Pages: 1}, nil
}

func fromPDF(r io.Reader) (Result, error) {
	// The pdf reader wants io.ReaderAt plus a size, so buffer first.
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read pdf: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("open pdf: %w", err)
	}

	pages := reader.NumPage()
	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("skipping unreadable pdf page", "page", i, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			sb.WriteString(text)
			sb.WriteString("\n\n")
		}
	}

	return Result{Text: collapseNewlines(sb.String()), Pages: pages}, nil
}

var reDocxText = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

func fromDOCX(r io.Reader) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read docx: %w", err)
	}

	reader, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("open docx: %w", err)
	}
	defer reader.Close()

	// The library exposes raw document XML; pull the text runs out of it.
	content := reader.Editable().GetContent()
	var sb strings.Builder
	for _, match := range reDocxText.FindAllStringSubmatch(content, -1) {
		if text := strings.TrimSpace(match[1]); text != "" {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}

	return Result{Text: collapseNewlines(sb.String()), Pages: 1}, nil
}

var reMultiNewlines = regexp.MustCompile(`\n{3,}`)

func collapseNewlines(text string) string {
	return strings.TrimSpace(reMultiNewlines.ReplaceAllString(text, "\n\n"))
}
