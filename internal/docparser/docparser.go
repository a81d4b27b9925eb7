package docparser

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	// ErrUnsupportedType is returned for file extensions no extractor
	// handles.
	ErrUnsupportedType = errors.New("unsupported file format")

	// ErrArchiveTooLarge is returned when a zip exceeds the per-member
	// or total uncompressed size caps.
	ErrArchiveTooLarge = errors.New("archive exceeds size limits")

	// ErrUnsafePath is returned for zip members whose names escape the
	// archive root.
	ErrUnsafePath = errors.New("unsafe path in archive")
)

const (
	maxMemberSize  = 10 << 20  // uncompressed, per zip member
	maxArchiveSize = 100 << 20 // uncompressed, whole zip
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Document is one extracted upload: the original file name plus its
// plain-text content.
type Document struct {
	Name string
	Text string
}

// Supported reports whether the extension of name has an extractor.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".docx", ".txt", ".md", ".html", ".htm", ".xlsx", ".ods":
		return true
	}
	return false
}

// ExtractText converts one uploaded file to plain text, dispatching on
// the file extension.
func ExtractText(data []byte, name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf":
		return extractPDF(data)
	case ".docx":
		return extractDOCX(data)
	case ".txt":
		return normalize(string(data)), nil
	case ".md":
		return extractMarkdown(data)
	case ".html", ".htm":
		return extractHTML(data)
	case ".xlsx":
		return extractXLSX(data)
	case ".ods":
		return extractODS(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
}

// ExtractArchive validates a zip and extracts every supported member.
// Size caps and member paths are checked before any content is
// extracted, so an oversized archive costs nothing.
func ExtractArchive(data []byte) ([]Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	var total uint64
	for _, f := range zr.File {
		if !filepath.IsLocal(f.Name) {
			return nil, fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
		}
		if f.UncompressedSize64 > maxMemberSize {
			return nil, fmt.Errorf("%w: %s is %d bytes", ErrArchiveTooLarge, f.Name, f.UncompressedSize64)
		}
		total += f.UncompressedSize64
		if total > maxArchiveSize {
			return nil, fmt.Errorf("%w: total uncompressed size exceeds %d bytes", ErrArchiveTooLarge, maxArchiveSize)
		}
	}

	var docs []Document
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !Supported(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		// The directory sizes checked above can be forged; re-check
		// against the bytes actually decompressed.
		content, err := io.ReadAll(io.LimitReader(rc, maxMemberSize+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		if len(content) > maxMemberSize {
			return nil, fmt.Errorf("%w: %s larger than declared", ErrArchiveTooLarge, f.Name)
		}
		text, err := ExtractText(content, f.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
		if text == "" {
			continue
		}
		docs = append(docs, Document{Name: filepath.Base(f.Name), Text: text})
	}
	return docs, nil
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return normalize(b.String()), nil
}

func extractDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read docx: %w", err)
	}
	defer r.Close()

	// GetContent returns the raw word/document.xml; pull the text runs
	// out of the <w:t> elements.
	return normalize(extractXMLText(r.Editable().GetContent(), "w:t")), nil
}

func extractMarkdown(data []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert(data, &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return extractHTML(buf.Bytes())
}

func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Find("script, style").Remove()
	return normalize(doc.Text()), nil
}

func extractXLSX(data []byte) (string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return "", fmt.Errorf("failed to read xlsx: %w", err)
	}

	var b strings.Builder
	for _, sheet := range f.Sheets {
		b.WriteString("Sheet: " + sheet.Name + "\n")
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				b.WriteString(cell.String() + "\t")
			}
			b.WriteString("\n")
		}
	}
	return normalize(b.String()), nil
}

func extractODS(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to read spreadsheet: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		b.WriteString("Sheet: " + sheetName + "\n")
		for _, row := range rows {
			for _, cell := range row {
				b.WriteString(cell + "\t")
			}
			b.WriteString("\n")
		}
	}
	return normalize(b.String()), nil
}

// extractXMLText pulls the character data out of every <tag ...>...</tag>
// element without a full XML parse.
func extractXMLText(xmlContent, tag string) string {
	var b strings.Builder
	closing := "</" + tag + ">"
	rest := xmlContent
	for {
		idx := strings.Index(rest, "<"+tag)
		if idx < 0 {
			break
		}
		rest = rest[idx+len(tag)+1:]
		// Skip longer tag names sharing the prefix, like w:tbl for w:t.
		if rest != "" && rest[0] != '>' && rest[0] != ' ' && rest[0] != '/' {
			continue
		}
		open := strings.Index(rest, ">")
		if open < 0 {
			break
		}
		rest = rest[open+1:]
		end := strings.Index(rest, closing)
		if end < 0 {
			break
		}
		b.WriteString(rest[:end] + " ")
		rest = rest[end+len(closing):]
	}
	return b.String()
}

func normalize(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
