package document

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/ledongthuc/pdf"
)

var (
	// ErrInvalidPDF is returned when bytes lack the %PDF- signature or cannot be parsed.
	ErrInvalidPDF = errors.New("invalid pdf")
	// ErrInvalidSlides is returned when a .pptx archive cannot be read.
	ErrInvalidSlides = errors.New("invalid pptx")
	// ErrUnsupportedType is returned for file extensions with no loader.
	ErrUnsupportedType = errors.New("unsupported file type")
)

var (
	pdfSignature = []byte("%PDF-")
	slidePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

// LoadText wraps a plain text file as a single Document.
func LoadText(source string, data []byte) (Document, error) {
	return New(KindText, source, "", string(data))
}

// LoadPDF returns one Document per non-empty page.
func LoadPDF(source string, data []byte) (docs []Document, err error) {
	if !bytes.HasPrefix(data, pdfSignature) {
		return nil, fmt.Errorf("%w: %s is missing the %%PDF- signature", ErrInvalidPDF, source)
	}
	defer func() {
		// The parser panics on some malformed cross-reference tables.
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("%w: %s: %v", ErrInvalidPDF, source, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPDF, source, err)
	}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d of %s: %w", i, source, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		doc, err := New(KindPDF, source, "", text)
		if err != nil {
			return nil, err
		}
		doc.Page = i
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadPPTX returns one Document per non-empty slide, in slide order.
func LoadPPTX(source string, data []byte) ([]Document, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidSlides, source, err)
	}

	type slideFile struct {
		number int
		file   *zip.File
	}
	var slides []slideFile
	for _, f := range archive.File {
		m := slidePattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slideFile{number: n, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	var docs []Document
	for _, s := range slides {
		text, err := slideText(s.file)
		if err != nil {
			return nil, fmt.Errorf("%w: %s slide %d: %w", ErrInvalidSlides, source, s.number, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		doc, err := New(KindSlides, source, fmt.Sprintf("Slide %d", s.number), text)
		if err != nil {
			return nil, err
		}
		doc.Page = s.number
		docs = append(docs, doc)
	}
	return docs, nil
}

// slideText joins the runs of each DrawingML paragraph, one paragraph per line.
func slideText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	root, err := xmlquery.Parse(rc)
	if err != nil {
		return "", err
	}
	var lines []string
	for _, p := range xmlquery.Find(root, "//*[local-name()='p']") {
		var b strings.Builder
		for _, t := range xmlquery.Find(p, ".//*[local-name()='t']") {
			b.WriteString(t.InnerText())
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// LoadBytes dispatches on the extension of name.
func LoadBytes(name string, data []byte) ([]Document, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		doc, err := LoadText(name, data)
		if err != nil {
			return nil, err
		}
		return []Document{doc}, nil
	case ".pdf":
		return LoadPDF(name, data)
	case ".pptx":
		return LoadPPTX(name, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, name)
	}
}

// CheckAddable accepts only the file types that may be appended to an existing index.
func CheckAddable(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt":
		return nil
	default:
		return fmt.Errorf("%w: %s (only .pdf and .txt are supported)", ErrUnsupportedType, path)
	}
}

// LoadFile reads path from disk and loads it by extension.
func LoadFile(path string) ([]Document, error) {
	f, err := os.Open(path) // #nosec G304 -- path is an operator-supplied CLI argument.
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return LoadBytes(path, data)
}
