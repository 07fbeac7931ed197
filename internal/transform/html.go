package transform

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Transformer converts a raw document into clean text for indexing.
type Transformer interface {
	Text(r io.Reader) (string, error)
}

// Elements that carry no readable text and would otherwise leak code or markup into
// the indexed content.
const droppedSelectors = `script,noscript,style,iframe,link[rel='stylesheet'],svg`

var _ Transformer = (*HTMLTransformer)(nil)

// HTMLTransformer strips boilerplate elements from an HTML document and derives its
// readable text, whitespace-collapsed to single spaces.
type HTMLTransformer struct {
	extraSelectors []string
}

// Text implements Transformer.
func (t *HTMLTransformer) Text(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("could not parse html doc: %w", err)
	}

	doc.Find(droppedSelectors).Remove()

	for _, sel := range t.extraSelectors {
		doc.Find(sel).Remove()
	}

	root := doc.Selection
	if body := doc.Find("body"); body.Length() > 0 {
		root = body
	}

	return strings.Join(strings.Fields(root.Text()), " "), nil
}

// NewHTMLTransformer creates a transformer for HTML pages.
func NewHTMLTransformer(opts ...Option) *HTMLTransformer {
	t := &HTMLTransformer{}

	for _, opt := range opts {
		opt.applyHTMLTransformerOption(t)
	}

	return t
}

// Option is option to set up HTMLTransformer.
type Option interface {
	applyHTMLTransformerOption(t *HTMLTransformer)
}

type htmlTransformerOptionFunc func(t *HTMLTransformer)

func (f htmlTransformerOptionFunc) applyHTMLTransformerOption(t *HTMLTransformer) {
	f(t)
}

// WithDropSelectors adds selectors whose matches are removed before text extraction,
// for example ad containers or navigation chrome.
func WithDropSelectors(selectors ...string) Option {
	return htmlTransformerOptionFunc(func(t *HTMLTransformer) {
		t.extraSelectors = append(t.extraSelectors, selectors...)
	})
}
