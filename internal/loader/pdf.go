package loader

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFLoader concatenates the plain text of every page
type PDFLoader struct{}

// Extensions returns the handled extensions
func (l *PDFLoader) Extensions() []string { return []string{".pdf"} }

// Load extracts text from the PDF at path
func (l *PDFLoader) Load(ctx context.Context, path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		if f != nil {
			_ = f.Close()
		}
		return "", fmt.Errorf("error reading PDF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return pagesText(ctx, reader)
}

// PDFText extracts text from an in-memory PDF
func PDFText(ctx context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("error reading PDF file: %w", err)
	}
	return pagesText(ctx, reader)
}

func pagesText(ctx context.Context, reader *pdf.Reader) (string, error) {
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// pages with broken content streams are skipped
			continue
		}
		b.WriteString(text)
	}
	return b.String(), nil
}
