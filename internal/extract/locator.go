package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/phosphosite-scraper/internal/browser"
)

// ErrNotInteractive is returned when clicking an element parsed from a page
// snapshot rather than found on the live page.
var ErrNotInteractive = errors.New("element is not attached to a live page")

// Locator is one structural lookup strategy. A nil Element with a nil error
// means "no match".
type Locator interface {
	Locate(page browser.Page) (browser.Element, error)
	String() string
}

// Selector queries the live page with an engine selector (css, xpath=,
// text=, :has-text()).
type Selector string

func (s Selector) Locate(page browser.Page) (browser.Element, error) {
	return page.QuerySelector(string(s))
}

func (s Selector) String() string {
	return string(s)
}

// Parent resolves Of and returns its parent element.
type Parent struct {
	Of Locator
}

func (p Parent) Locate(page browser.Page) (browser.Element, error) {
	el, err := p.Of.Locate(page)
	if err != nil || el == nil {
		return nil, err
	}
	return el.Parent()
}

func (p Parent) String() string {
	return "parent(" + p.Of.String() + ")"
}

// Document matches a goquery selector against a snapshot of the page's
// HTML. It supports cascadia extensions such as :contains() that the
// browser engine does not.
type Document struct {
	Query string
	// Parent selects the parent of the match instead of the match itself.
	Parent bool
}

func (d Document) Locate(page browser.Page) (browser.Element, error) {
	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to get page content: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page content: %w", err)
	}

	sel := doc.Find(d.Query).First()
	if sel.Length() == 0 {
		return nil, nil
	}
	if d.Parent {
		sel = sel.Parent()
	}
	return &snapshotElement{sel: sel}, nil
}

func (d Document) String() string {
	if d.Parent {
		return "doc:parent(" + d.Query + ")"
	}
	return "doc:" + d.Query
}

type snapshotElement struct {
	sel *goquery.Selection
}

func (e *snapshotElement) InnerText() (string, error) {
	return e.sel.Text(), nil
}

func (e *snapshotElement) GetAttribute(name string) (string, error) {
	return e.sel.AttrOr(name, ""), nil
}

func (e *snapshotElement) Click() error {
	return ErrNotInteractive
}

func (e *snapshotElement) Parent() (browser.Element, error) {
	parent := e.sel.Parent()
	if parent.Length() == 0 {
		return nil, nil
	}
	return &snapshotElement{sel: parent}, nil
}

// Chain tries each locator in order and returns the first match. A failing
// locator is logged and skipped; it never stops the chain.
type Chain struct {
	Locators []Locator
	Logger   *slog.Logger
}

func (c Chain) Locate(page browser.Page) (browser.Element, error) {
	el, _ := c.Walk(page, nil)
	return el, nil
}

// Walk offers each match to accept in locator order and returns the first
// accepted one together with the locator that found it. A nil accept takes
// the first match.
func (c Chain) Walk(page browser.Page, accept func(Locator, browser.Element) bool) (browser.Element, Locator) {
	for _, loc := range c.Locators {
		el, err := safeLocate(loc, page)
		if err != nil {
			c.logger().Debug("locator failed", "locator", loc.String(), "error", err)
			continue
		}
		if el == nil {
			continue
		}
		if accept != nil && !accept(loc, el) {
			continue
		}
		c.logger().Debug("locator matched", "locator", loc.String())
		return el, loc
	}
	return nil, nil
}

func (c Chain) String() string {
	parts := make([]string, len(c.Locators))
	for i, loc := range c.Locators {
		parts[i] = loc.String()
	}
	return "chain[" + strings.Join(parts, ", ") + "]"
}

func (c Chain) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// safeLocate converts a panicking locator into an error.
func safeLocate(loc Locator, page browser.Page) (el browser.Element, err error) {
	defer func() {
		if r := recover(); r != nil {
			el, err = nil, fmt.Errorf("locator panicked: %v", r)
		}
	}()
	return loc.Locate(page)
}
