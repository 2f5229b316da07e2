package extract

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/nao1215/campusshield/internal/config"
	"github.com/nao1215/campusshield/internal/dom"
	"github.com/nao1215/campusshield/internal/model"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Strategy extracts one e-mail from a document tree.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string

	// Extract returns the request and whether the strategy recognized the
	// layout. It must not modify root.
	Extract(root *html.Node, host string) (model.ScanRequest, bool)
}

// Chain tries strategies in order.
type Chain []Strategy

// NewChain builds the default chain with the given per-site selectors.
func NewChain(sites map[string]config.SiteSelectors) (Chain, error) {
	site, err := NewSite(sites)
	if err != nil {
		return nil, err
	}
	return Chain{Strict{}, site, Generic{}}, nil
}

// Extract returns the result of the first strategy that recognizes the
// layout, along with its name. When none does, the request is empty apart
// from links and the name is "".
func (c Chain) Extract(root *html.Node, host string) (model.ScanRequest, string) {
	for _, s := range c {
		if req, ok := s.Extract(root, host); ok {
			return req, s.Name()
		}
	}
	return model.ScanRequest{Links: Links(root)}, ""
}

// Recognizes reports whether root shows an opened e-mail. A known layout
// (Strict or Site) is enough; the generic heuristics count only when they
// find a sender, since any page has a title and body text.
func (c Chain) Recognizes(root *html.Node, host string) bool {
	req, name := c.Extract(root, host)
	switch name {
	case "":
		return false
	case Generic{}.Name():
		return req.Sender != ""
	default:
		return true
	}
}

// Strict matches the mock inbox layout used in development and demos.
type Strict struct{}

var (
	strictSender  = cascadia.MustCompile(".sender")
	strictSubject = cascadia.MustCompile(".subject")
	strictBody    = cascadia.MustCompile(".body")
)

// Name implements Strategy.
func (Strict) Name() string { return "strict" }

// Extract implements Strategy.
func (Strict) Extract(root *html.Node, _ string) (model.ScanRequest, bool) {
	req := model.ScanRequest{
		Sender:  textOf(strictSender.MatchFirst(root)),
		Subject: textOf(strictSubject.MatchFirst(root)),
		Body:    textOf(strictBody.MatchFirst(root)),
	}
	if !recognized(req) {
		return model.ScanRequest{}, false
	}
	req.Links = Links(root)
	return req, true
}

// Site matches hosts with configured selectors.
type Site struct {
	hosts map[string]compiledSelectors
}

type compiledSelectors struct {
	sender, subject, body cascadia.Selector
}

// NewSite compiles the selectors of every configured host.
func NewSite(sites map[string]config.SiteSelectors) (*Site, error) {
	s := &Site{hosts: make(map[string]compiledSelectors, len(sites))}
	for host, sel := range sites {
		var c compiledSelectors
		var err error
		if c.sender, err = compileOptional(sel.Sender); err != nil {
			return nil, fmt.Errorf("%w: %s sender: %v", config.ErrInvalidSelector, host, err)
		}
		if c.subject, err = compileOptional(sel.Subject); err != nil {
			return nil, fmt.Errorf("%w: %s subject: %v", config.ErrInvalidSelector, host, err)
		}
		if c.body, err = compileOptional(sel.Body); err != nil {
			return nil, fmt.Errorf("%w: %s body: %v", config.ErrInvalidSelector, host, err)
		}
		s.hosts[strings.ToLower(host)] = c
	}
	return s, nil
}

// Name implements Strategy.
func (*Site) Name() string { return "site" }

// Extract implements Strategy.
func (s *Site) Extract(root *html.Node, host string) (model.ScanRequest, bool) {
	c, ok := s.lookup(host)
	if !ok {
		return model.ScanRequest{}, false
	}

	req := model.ScanRequest{
		Sender:  senderOf(matchFirst(c.sender, root)),
		Subject: textOf(matchFirst(c.subject, root)),
	}
	scope := root
	if body := matchFirst(c.body, root); body != nil {
		req.Body = dom.Text(body)
		scope = body
	}
	if !recognized(req) {
		return model.ScanRequest{}, false
	}
	req.Links = Links(scope)
	return req, true
}

// lookup finds selectors for host or any parent domain of it.
func (s *Site) lookup(host string) (compiledSelectors, bool) {
	host = strings.ToLower(host)
	for host != "" {
		if c, ok := s.hosts[host]; ok {
			return c, true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return compiledSelectors{}, false
}

// Generic applies layout-independent heuristics.
type Generic struct{}

var (
	genericSender  = cascadia.MustCompile("[data-sender]")
	genericMailto  = cascadia.MustCompile(`a[href^="mailto:"]`)
	genericSubject = cascadia.MustCompile("h1")
	genericTitle   = cascadia.MustCompile("title")
	genericBody    = cascadia.MustCompile("article, main")
)

// Name implements Strategy.
func (Generic) Name() string { return "generic" }

// Extract implements Strategy.
func (Generic) Extract(root *html.Node, _ string) (model.ScanRequest, bool) {
	var req model.ScanRequest

	if n := genericSender.MatchFirst(root); n != nil {
		req.Sender = dom.Attr(n, "data-sender")
		if req.Sender == "" {
			req.Sender = dom.Text(n)
		}
	} else if n := genericMailto.MatchFirst(root); n != nil {
		req.Sender = strings.TrimPrefix(dom.Attr(n, "href"), "mailto:")
		if i := strings.IndexByte(req.Sender, '?'); i >= 0 {
			req.Sender = req.Sender[:i]
		}
	}

	if n := genericSubject.MatchFirst(root); n != nil {
		req.Subject = dom.Text(n)
	} else if n := genericTitle.MatchFirst(root); n != nil {
		req.Subject = dom.Text(n)
	}

	if n := genericBody.MatchFirst(root); n != nil {
		req.Body = dom.Text(n)
	} else if body := dom.Body(root); body != nil {
		req.Body = dom.Text(body)
	}

	if !recognized(req) {
		return model.ScanRequest{}, false
	}
	req.Links = Links(root)
	return req, true
}

// Links returns every http(s) anchor address under root in document order,
// without duplicates. It never returns nil.
func Links(root *html.Node) []string {
	links := make([]string, 0)
	if root == nil {
		return links
	}
	seen := make(map[string]bool)
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			href := strings.TrimSpace(dom.Attr(n, "href"))
			if strings.HasPrefix(href, "http") && !seen[href] {
				seen[href] = true
				links = append(links, href)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return links
}

func recognized(req model.ScanRequest) bool {
	return req.Sender != "" || req.Subject != "" || req.Body != ""
}

// senderOf prefers the address carried in an "email" attribute, which is
// how several mail clients expose the sender behind a display name.
func senderOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	if email := dom.Attr(n, "email"); email != "" {
		return email
	}
	return dom.Text(n)
}

func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	return dom.Text(n)
}

func compileOptional(sel string) (cascadia.Selector, error) {
	if sel == "" {
		return nil, nil
	}
	return cascadia.Compile(sel)
}

func matchFirst(sel cascadia.Selector, root *html.Node) *html.Node {
	if sel == nil {
		return nil
	}
	return sel.MatchFirst(root)
}
