// Package browsertest provides in-memory fakes of browser.Page for tests.
package browsertest

import (
	"errors"
	"sync"
	"time"

	"github.com/maltedev/phosphosite-scraper/internal/browser"
	"github.com/maltedev/phosphosite-scraper/internal/models"
)

type Element struct {
	Text     string
	Attrs    map[string]string
	ParentEl *Element
	TextErr  error
	ClickErr error
	OnClick  func()

	Clicks int
}

func (e *Element) InnerText() (string, error) {
	if e.TextErr != nil {
		return "", e.TextErr
	}
	return e.Text, nil
}

func (e *Element) GetAttribute(name string) (string, error) {
	return e.Attrs[name], nil
}

func (e *Element) Click() error {
	e.Clicks++
	if e.ClickErr != nil {
		return e.ClickErr
	}
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

func (e *Element) Parent() (browser.Element, error) {
	if e.ParentEl == nil {
		return nil, nil
	}
	return e.ParentEl, nil
}

// Page is a scriptable browser.Page. Elements are keyed by the exact
// selector string the code under test queries.
type Page struct {
	mu sync.Mutex

	Location string
	HTML     string
	Elements map[string]*Element
	Errors   map[string]error

	GotoErr   error
	ReloadErr error
	WaitErr   error
	// OnGoto runs after each navigation so tests can swap page state.
	OnGoto   func(p *Page, url string)
	OnReload func(p *Page)
	// OnEvaluate runs after each script evaluation.
	OnEvaluate func(p *Page, expression string)

	EvaluateResult any
	EvaluateErr    error

	Jar           []models.Cookie
	AddCookiesErr error
	CookiesErr    error

	Visited   []string
	Reloads   int
	Waits     []browser.LoadState
	Evaluated []string
	Keys      []string
	Moves     int
	Wheels    int
	Resizes   int
	Closed    bool
}

func NewPage() *Page {
	return &Page{
		Elements: map[string]*Element{},
		Errors:   map[string]error{},
	}
}

// Set registers el under selector and returns it.
func (p *Page) Set(selector string, el *Element) *Element {
	p.Elements[selector] = el
	return el
}

// Reset clears every registered element, error and HTML snapshot.
func (p *Page) Reset() {
	p.Elements = map[string]*Element{}
	p.Errors = map[string]error{}
	p.HTML = ""
}

func (p *Page) Goto(url string) error {
	p.Visited = append(p.Visited, url)
	if p.GotoErr != nil {
		return p.GotoErr
	}
	p.Location = url
	if p.OnGoto != nil {
		p.OnGoto(p, url)
	}
	return nil
}

func (p *Page) Reload() error {
	p.Reloads++
	if p.ReloadErr != nil {
		return p.ReloadErr
	}
	if p.OnReload != nil {
		p.OnReload(p)
	}
	return nil
}

func (p *Page) WaitForLoadState(state browser.LoadState, timeout time.Duration) error {
	p.Waits = append(p.Waits, state)
	return p.WaitErr
}

func (p *Page) URL() string {
	return p.Location
}

func (p *Page) QuerySelector(selector string) (browser.Element, error) {
	if err := p.Errors[selector]; err != nil {
		return nil, err
	}
	if el, ok := p.Elements[selector]; ok {
		return el, nil
	}
	return nil, nil
}

func (p *Page) Content() (string, error) {
	return p.HTML, nil
}

func (p *Page) Evaluate(expression string, arg ...any) (any, error) {
	p.Evaluated = append(p.Evaluated, expression)
	if p.EvaluateErr != nil {
		return nil, p.EvaluateErr
	}
	if p.OnEvaluate != nil {
		p.OnEvaluate(p, expression)
	}
	return p.EvaluateResult, nil
}

func (p *Page) MoveMouse(x, y float64) error {
	p.Moves++
	return nil
}

func (p *Page) Wheel(deltaX, deltaY float64) error {
	p.Wheels++
	return nil
}

func (p *Page) PressKey(key string) error {
	p.Keys = append(p.Keys, key)
	return nil
}

func (p *Page) SetViewportSize(width, height int) error {
	p.Resizes++
	return nil
}

func (p *Page) AddCookies(cookies []models.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.AddCookiesErr != nil {
		return p.AddCookiesErr
	}
	p.Jar = mergeCookies(p.Jar, cookies)
	return nil
}

func (p *Page) Cookies() ([]models.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CookiesErr != nil {
		return nil, p.CookiesErr
	}
	return append([]models.Cookie(nil), p.Jar...), nil
}

func (p *Page) Close() error {
	if p.Closed {
		return errors.New("page already closed")
	}
	p.Closed = true
	return nil
}

// Jar is an in-memory cookie jar.
type Jar struct {
	mu      sync.Mutex
	cookies []models.Cookie

	CookiesErr    error
	AddCookiesErr error
}

func NewJar(cookies ...models.Cookie) *Jar {
	return &Jar{cookies: cookies}
}

func (j *Jar) Cookies() ([]models.Cookie, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.CookiesErr != nil {
		return nil, j.CookiesErr
	}
	return append([]models.Cookie(nil), j.cookies...), nil
}

func (j *Jar) AddCookies(cookies []models.Cookie) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.AddCookiesErr != nil {
		return j.AddCookiesErr
	}
	j.cookies = mergeCookies(j.cookies, cookies)
	return nil
}

// mergeCookies replaces cookies with the same name, domain and path.
func mergeCookies(dst, src []models.Cookie) []models.Cookie {
	for _, c := range src {
		replaced := false
		for i, d := range dst {
			if d.Name == c.Name && d.Domain == c.Domain && d.Path == c.Path {
				dst[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			dst = append(dst, c)
		}
	}
	return dst
}
