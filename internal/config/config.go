package config

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/campusshield/internal/model"
)

// Default configuration values.
const (
	// DefaultBackendURL is where the local scoring backend listens.
	// `campusshield serve` binds to the same address.
	DefaultBackendURL = "http://127.0.0.1:5000/scan"

	// DefaultListenAddress is the bind address of `campusshield serve`.
	DefaultListenAddress = "127.0.0.1:5000"

	// DefaultBackendTimeout is the primary abort timer of the relay.
	// The in-flight HTTP call is cancelled when it fires.
	DefaultBackendTimeout = 5000 * time.Millisecond

	// DefaultSafetyMargin is added to the primary timer to form the safety
	// timer, which replies unconditionally if nothing else has.
	DefaultSafetyMargin = 1000 * time.Millisecond

	// DefaultForwardMargin is the extra time the page agent waits for the
	// relay beyond the relay's own upper bound before it gives up.
	DefaultForwardMargin = 1000 * time.Millisecond

	// DefaultSettleDelay is the wait between activating the page agent and
	// probing it again.
	DefaultSettleDelay = 400 * time.Millisecond

	// DefaultStatusDuration is how long a trigger status stays visible
	// before the control is reset.
	DefaultStatusDuration = 3 * time.Second

	// DefaultProbeTimeout bounds a single liveness probe.
	DefaultProbeTimeout = 1 * time.Second

	// DefaultMaxBodySize limits the backend response body read by the relay.
	// A verdict is a few hundred bytes, 1MB leaves ample room.
	DefaultMaxBodySize = 1 << 20

	// AppName is the application name used for XDG directory paths.
	AppName = "campusshield"
)

// DefaultViewport is the viewport assumed when none is configured.
var DefaultViewport = model.Viewport{Width: 1280, Height: 800}

// DefaultPanelSize is the rendered size of the result panel.
var DefaultPanelSize = model.Size{Width: 320, Height: 420}

// DefaultSupportedPages are the URL fragments of documents the trigger
// will activate the page agent on.
var DefaultSupportedPages = []string{
	"mock_email.html",
	"mail.google.com",
	"http://localhost",
	"http://127.0.0.1",
}

// Config holds all configuration options for campusshield.
// This struct is populated from CLI flags and the optional config file and
// passed through the application via dependency injection rather than
// global state.
//
// Design decision: We use a single flat struct instead of nested structs
// for simplicity. Timer budgets, geometry and output options are few enough
// that nesting would add complexity without significant benefit.
type Config struct {
	// BackendURL is the endpoint the relay posts scan requests to.
	BackendURL string

	// ListenAddress is the bind address of the local scoring backend.
	ListenAddress string

	// BackendTimeout is the relay's primary abort timer.
	BackendTimeout time.Duration

	// SafetyMargin is added to BackendTimeout to form the safety timer.
	SafetyMargin time.Duration

	// ForwardMargin is the page agent's slack beyond the relay's upper bound.
	ForwardMargin time.Duration

	// SettleDelay is the wait between activation and the second probe.
	SettleDelay time.Duration

	// StatusDuration is how long the trigger shows a terminal status.
	StatusDuration time.Duration

	// ProbeTimeout bounds one probe round trip.
	ProbeTimeout time.Duration

	// Viewport is the visible document area used to clamp panel drags.
	Viewport model.Viewport

	// PanelSize is the rendered size of the result panel.
	PanelSize model.Size

	// SupportedPages lists URL fragments of documents eligible for activation.
	// A document is supported when its URL contains any of them.
	SupportedPages []string

	// Sites maps a host name to the selectors of its mail layout.
	Sites map[string]SiteSelectors

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .campusshield in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// JSONReport enables JSON report output instead of human-readable format.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output instead of human-readable format.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// DBDir is the directory path for storing the SQLite database that holds
	// panel positions and scan history.
	// Defaults to XDG data directory (~/.local/share/campusshield on Linux).
	DBDir string

	// MaxBodySize is the maximum backend response body size in bytes to read.
	// Set to 0 to use the default (1MB).
	MaxBodySize int64
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because every timer budget is non-zero. This also serves as
// documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		BackendURL:     DefaultBackendURL,
		ListenAddress:  DefaultListenAddress,
		BackendTimeout: DefaultBackendTimeout,
		SafetyMargin:   DefaultSafetyMargin,
		ForwardMargin:  DefaultForwardMargin,
		SettleDelay:    DefaultSettleDelay,
		StatusDuration: DefaultStatusDuration,
		ProbeTimeout:   DefaultProbeTimeout,
		Viewport:       DefaultViewport,
		PanelSize:      DefaultPanelSize,
		SupportedPages: append([]string(nil), DefaultSupportedPages...),
		Sites:          DefaultSites(),
		MaxBodySize:    DefaultMaxBodySize,
		DBDir:          XDGDataDir(),
	}
}

// RelayDeadline is the upper bound for one relay reply: the primary timer
// plus the safety margin.
func (c *Config) RelayDeadline() time.Duration {
	return c.BackendTimeout + c.SafetyMargin
}

// ForwardDeadline is the upper bound the page agent waits for the relay.
func (c *Config) ForwardDeadline() time.Duration {
	return c.RelayDeadline() + c.ForwardMargin
}

// DBPath returns the SQLite file path inside DBDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DBDir, AppName+".db")
}

// ApplyFile merges the settings of a config file into c.
// Values absent from the file keep their current value.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	if f.Backend != "" {
		c.BackendURL = f.Backend
	}
	if len(f.SupportedPages) > 0 {
		c.SupportedPages = append([]string(nil), f.SupportedPages...)
	}
	if f.Viewport != nil {
		c.Viewport = *f.Viewport
	}
	if f.Panel != nil {
		c.PanelSize = *f.Panel
	}
	if c.Sites == nil {
		c.Sites = make(map[string]SiteSelectors)
	}
	for host, sel := range f.Sites {
		c.Sites[host] = sel
	}
}

// XDGDataDir returns the XDG data directory for campusshield.
// On Linux: ~/.local/share/campusshield
// On macOS: ~/Library/Application Support/campusshield
// On Windows: %LOCALAPPDATA%\campusshield
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for campusshield.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// We chose to return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return ErrNoBackendURL
	}

	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBackendURL
	}

	if c.BackendTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.SafetyMargin < 0 || c.ForwardMargin < 0 {
		return ErrInvalidMargin
	}

	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 ||
		c.PanelSize.Width <= 0 || c.PanelSize.Height <= 0 {
		return ErrInvalidViewport
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	return nil
}
