package browser

import (
	"time"

	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/playwright-community/playwright-go"
)

type LoadState string

const (
	LoadStateLoad             LoadState = "load"
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"
	LoadStateNetworkIdle      LoadState = "networkidle"
)

// Element is a handle to a node on a live page.
type Element interface {
	InnerText() (string, error)
	GetAttribute(name string) (string, error)
	Click() error
	Parent() (Element, error)
}

// Page is the subset of a browser tab the scraper drives. QuerySelector
// returns a nil Element and nil error when nothing matches.
type Page interface {
	Goto(url string) error
	Reload() error
	WaitForLoadState(state LoadState, timeout time.Duration) error
	URL() string
	QuerySelector(selector string) (Element, error)
	Content() (string, error)
	Evaluate(expression string, arg ...any) (any, error)

	MoveMouse(x, y float64) error
	Wheel(deltaX, deltaY float64) error
	PressKey(key string) error
	SetViewportSize(width, height int) error

	// AddCookies installs cookies on the page's browser context. Cookies
	// without a domain are scoped to the page's current URL.
	AddCookies(cookies []models.Cookie) error
	Cookies() ([]models.Cookie, error)
	Close() error
}

type playwrightPage struct {
	page    playwright.Page
	timeout time.Duration
}

// WrapPage adapts a playwright page to Page.
func WrapPage(page playwright.Page, timeout time.Duration) Page {
	return &playwrightPage{page: page, timeout: timeout}
}

func (p *playwrightPage) ms(d time.Duration) *float64 {
	if d <= 0 {
		d = p.timeout
	}
	return playwright.Float(float64(d.Milliseconds()))
}

func (p *playwrightPage) Goto(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   p.ms(0),
	})
	return err
}

func (p *playwrightPage) Reload() error {
	_, err := p.page.Reload(playwright.PageReloadOptions{
		Timeout: p.ms(0),
	})
	return err
}

func (p *playwrightPage) WaitForLoadState(state LoadState, timeout time.Duration) error {
	var s *playwright.LoadState
	switch state {
	case LoadStateNetworkIdle:
		s = playwright.LoadStateNetworkidle
	case LoadStateLoad:
		s = playwright.LoadStateLoad
	default:
		s = playwright.LoadStateDomcontentloaded
	}
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   s,
		Timeout: p.ms(timeout),
	})
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) QuerySelector(selector string) (Element, error) {
	el, err := p.page.QuerySelector(selector)
	if err != nil || el == nil {
		return nil, err
	}
	return &playwrightElement{el: el}, nil
}

func (p *playwrightPage) Content() (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) Evaluate(expression string, arg ...any) (any, error) {
	return p.page.Evaluate(expression, arg...)
}

func (p *playwrightPage) MoveMouse(x, y float64) error {
	return p.page.Mouse().Move(x, y)
}

func (p *playwrightPage) Wheel(deltaX, deltaY float64) error {
	return p.page.Mouse().Wheel(deltaX, deltaY)
}

func (p *playwrightPage) PressKey(key string) error {
	return p.page.Keyboard().Press(key)
}

func (p *playwrightPage) SetViewportSize(width, height int) error {
	return p.page.SetViewportSize(width, height)
}

func (p *playwrightPage) AddCookies(cookies []models.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	return p.page.Context().AddCookies(toPlaywrightCookies(cookies, p.page.URL()))
}

func (p *playwrightPage) Cookies() ([]models.Cookie, error) {
	cookies, err := p.page.Context().Cookies()
	if err != nil {
		return nil, err
	}
	return fromPlaywrightCookies(cookies), nil
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

type playwrightElement struct {
	el playwright.ElementHandle
}

func (e *playwrightElement) InnerText() (string, error) {
	return e.el.InnerText()
}

func (e *playwrightElement) GetAttribute(name string) (string, error) {
	return e.el.GetAttribute(name)
}

func (e *playwrightElement) Click() error {
	return e.el.Click()
}

func (e *playwrightElement) Parent() (Element, error) {
	parent, err := e.el.QuerySelector("xpath=..")
	if err != nil || parent == nil {
		return nil, err
	}
	return &playwrightElement{el: parent}, nil
}
