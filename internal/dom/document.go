package dom

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/net/html"
)

// MutationKind describes what changed in a document.
type MutationKind int

const (
	// MutationChildList means nodes were inserted or removed.
	MutationChildList MutationKind = iota

	// MutationReplaced means the whole tree was replaced by a reload.
	MutationReplaced
)

// Mutation is one change notification.
type Mutation struct {
	Kind MutationKind
}

// Document is a parsed host document.
//
// Design decision: The tree is guarded by a RWMutex because two goroutines
// touch it: the page agent's loop and the file watcher that reloads it.
// Callers never hold *html.Node values outside Read/Mutate callbacks.
type Document struct {
	url string

	mu   sync.RWMutex
	root *html.Node

	obsMu     sync.Mutex
	observers map[int]func(Mutation)
	nextObs   int
}

// Parse parses HTML from r and associates it with pageURL.
func Parse(r io.Reader, pageURL string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{
		url:       pageURL,
		root:      root,
		observers: make(map[int]func(Mutation)),
	}, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(s, pageURL string) (*Document, error) {
	return Parse(bytes.NewBufferString(s), pageURL)
}

// Load parses the file at path. The document URL is its file:// URL.
func Load(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs) //nolint:gosec // User-provided document path is intentional
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f, FileURL(abs))
}

// FileURL returns the file:// URL of an absolute path.
func FileURL(abs string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

// URL returns the address the document was loaded from.
func (d *Document) URL() string {
	return d.url
}

// Host returns the host part of the document URL, or "" for file documents.
func (d *Document) Host() string {
	u, err := url.Parse(d.url)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Origin returns scheme://host[:port], the key under which per-page state is
// stored. File documents use their full URL because they have no host.
func (d *Document) Origin() string {
	u, err := url.Parse(d.url)
	if err != nil || u.Host == "" {
		return d.url
	}
	return u.Scheme + "://" + u.Host
}

// Read runs fn with shared access to the tree. fn must not modify it.
func (d *Document) Read(fn func(root *html.Node)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d.root)
}

// Mutate runs fn with exclusive access to the tree and notifies observers
// when fn reports a change.
func (d *Document) Mutate(fn func(root *html.Node) bool) {
	d.mu.Lock()
	changed := fn(d.root)
	d.mu.Unlock()

	if changed {
		d.notify(Mutation{Kind: MutationChildList})
	}
}

// Reload replaces the tree with the HTML read from r.
func (d *Document) Reload(r io.Reader) error {
	root, err := html.Parse(r)
	if err != nil {
		return fmt.Errorf("reload document: %w", err)
	}

	d.mu.Lock()
	d.root = root
	d.mu.Unlock()

	d.notify(Mutation{Kind: MutationReplaced})
	return nil
}

// HTML renders the current tree.
func (d *Document) HTML() (string, error) {
	var buf bytes.Buffer
	var err error
	d.Read(func(root *html.Node) {
		err = html.Render(&buf, root)
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Observe registers fn for mutation notifications. fn runs on the goroutine
// that made the change and must not block. The returned function removes
// the observer.
func (d *Document) Observe(fn func(Mutation)) func() {
	d.obsMu.Lock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	d.obsMu.Unlock()

	return func() {
		d.obsMu.Lock()
		delete(d.observers, id)
		d.obsMu.Unlock()
	}
}

func (d *Document) notify(m Mutation) {
	d.obsMu.Lock()
	fns := make([]func(Mutation), 0, len(d.observers))
	for _, fn := range d.observers {
		fns = append(fns, fn)
	}
	d.obsMu.Unlock()

	for _, fn := range fns {
		fn(m)
	}
}
