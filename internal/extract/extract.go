// Package extract turns HTML sources into the plain text the ingestion
// pipeline expects.
package extract

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/erasmolabs/erasmo/internal/knowledge"
)

// Result is the extracted text plus the page title when one was found.
type Result struct {
	Title string
	Text  string
}

// FromHTML extracts readable text from an HTML document. It tries the
// readability algorithm first, which strips navigation and boilerplate,
// and falls back to whole-body text for pages readability cannot parse.
// pageURL may be empty. The returned text is whitespace-normalized.
func FromHTML(r io.Reader, pageURL string) (*Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil || pageURL == "" {
		base = &url.URL{}
	}

	if article, err := readability.FromReader(strings.NewReader(string(raw)), base); err == nil {
		text := knowledge.CleanText(article.TextContent)
		if text != "" {
			return &Result{Title: strings.TrimSpace(article.Title), Text: text}, nil
		}
	}

	return fallbackText(string(raw))
}

// fallbackText strips scripts and styles and returns the remaining body
// text. Used when readability finds no article content.
func fallbackText(raw string) (*Result, error) {
	node, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc := goquery.NewDocumentFromNode(node)
	doc.Find("script, style, noscript").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	body := doc.Find("body")
	text := body.Text()
	if body.Length() == 0 {
		text = doc.Text()
	}

	text = knowledge.CleanText(text)
	if text == "" {
		return nil, fmt.Errorf("no text content in document")
	}
	return &Result{Title: title, Text: text}, nil
}
