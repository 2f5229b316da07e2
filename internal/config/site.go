package config

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/nao1215/campusshield/internal/model"
)

// SiteSelectors holds the CSS selectors locating the parts of one e-mail
// in a specific mail client's layout.
type SiteSelectors struct {
	// Sender selects the element holding the sender. When the element has
	// an "email" attribute, that attribute wins over its text.
	Sender string `yaml:"sender,omitempty"`

	// Subject selects the subject line.
	Subject string `yaml:"subject,omitempty"`

	// Body selects the message body container. Links are collected inside it.
	Body string `yaml:"body,omitempty"`
}

// Compile checks that every non-empty selector parses.
func (s SiteSelectors) Compile() error {
	for _, sel := range []string{s.Sender, s.Subject, s.Body} {
		if sel == "" {
			continue
		}
		if _, err := cascadia.Compile(sel); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidSelector, sel, err)
		}
	}
	return nil
}

// DefaultSites returns the built-in selectors for known mail clients.
func DefaultSites() map[string]SiteSelectors {
	return map[string]SiteSelectors{
		"mail.google.com": {
			Sender:  "span.gD",
			Subject: "h2.hP",
			Body:    "div.a3s",
		},
	}
}

// File represents the structure of the .campusshield configuration file.
type File struct {
	// Backend overrides the scoring backend URL.
	Backend string `yaml:"backend,omitempty"`

	// SupportedPages replaces the list of eligible URL fragments.
	SupportedPages []string `yaml:"supportedPages,omitempty"`

	// Sites maps host names to their selectors. Entries are merged over the
	// built-in defaults.
	Sites map[string]SiteSelectors `yaml:"sites,omitempty"`

	// Viewport overrides the viewport used to clamp panel drags.
	Viewport *model.Viewport `yaml:"viewport,omitempty"`

	// Panel overrides the rendered panel size.
	Panel *model.Size `yaml:"panel,omitempty"`
}

// Validate compiles every site selector in the file.
func (f *File) Validate() error {
	for host, sel := range f.Sites {
		if err := sel.Compile(); err != nil {
			return fmt.Errorf("site %s: %w", host, err)
		}
	}
	return nil
}

// IsSupportedPage reports whether a document URL matches any supported-page
// fragment.
func IsSupportedPage(pageURL string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(pageURL, p) {
			return true
		}
	}
	return false
}
