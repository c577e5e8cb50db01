package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"
)

// HTMLLoader extracts the visible text of saved HTML pages
type HTMLLoader struct{}

// Extensions returns the handled extensions
func (l *HTMLLoader) Extensions() []string { return []string{".html", ".htm"} }

// Load parses the file and returns its visible text
func (l *HTMLLoader) Load(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open HTML file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return HTMLText(f)
}

// HTMLText parses r and returns the text outside script, style, noscript,
// iframe and template elements, one space between text runs
func HTMLText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}
	return strings.TrimSpace(visibleText(doc)), nil
}

func visibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "template":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return buf.String()
}
