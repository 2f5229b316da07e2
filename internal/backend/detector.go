package backend

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/nao1215/campusshield/internal/model"
)

// Verdict thresholds on the combined score.
const (
	HighThreshold   = 0.70
	MediumThreshold = 0.40

	ruleScoreCap = 0.99
	urlScoreCap  = 0.30
	longURL      = 100
	maxSlashes   = 5

	lookalikeWeight      = 0.15
	maxLookalikeDistance = 2
)

// rule is one weighted detection rule. It counts at most once per message.
type rule struct {
	id          string
	patterns    []*regexp.Regexp
	weight      float64
	explanation string
}

func mustPatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+e))
	}
	return out
}

var defaultRules = []rule{
	{
		id:          "urgency_pressure",
		patterns:    mustPatterns(`\burge?nt\b`, `\bact\snow\b`, `\bimmediate(?:ly)?\b`, `\bASAP\b`),
		weight:      0.15,
		explanation: "Email uses high-pressure urgency language.",
	},
	{
		id: "verify_account",
		patterns: mustPatterns(
			`\bverif(?:y|ication)\s+(?:your\s+)?(?:account|identity|info)`,
			`\bconfirm\s+(?:your\s+)?(?:account|identity|info)`,
			`\bre-?verify\b`),
		weight:      0.20,
		explanation: "Email requests verification of account credentials.",
	},
	{
		id:          "account_suspension",
		patterns:    mustPatterns(`\bsuspend(?:ed)?\b`, `\blocked?\b`, `\brestricted?\b`),
		weight:      0.18,
		explanation: "Email threatens account suspension or lockout.",
	},
	{
		id: "password_request",
		patterns: mustPatterns(
			`\b(?:reset|change|update|confirm)\s+(?:your\s+)?password\b`,
			`\blogin\s+(?:again|now)\b`,
			`\bre-?authenticate\b`),
		weight:      0.20,
		explanation: "Email requests password or login information.",
	},
	{
		id:          "click_link_urgency",
		patterns:    mustPatterns(`(?:click|tap|open|visit).*(?:link|here|button)`),
		weight:      0.12,
		explanation: "Email urges clicking a link or button.",
	},
	{
		id: "payment_claim",
		patterns: mustPatterns(
			`\b(?:billing|payment|invoice|charge|subscription)\s+(?:issue|problem|due|failed)`,
			`\bupdate\s+(?:billing|payment)\s+(?:info|method)`,
			`\b(?:paypal|venmo|stripe|credit\s+card)\b`),
		weight:      0.13,
		explanation: "Email claims billing or payment issues.",
	},
	{
		id:          "prize_claim",
		patterns:    mustPatterns(`\b(?:congratulations|win|won|claim|prize|reward)\b`),
		weight:      0.10,
		explanation: "Email claims prize or reward.",
	},
	{
		id:          "misspelled_brand",
		patterns:    mustPatterns(`\b(?:gmai|gmial|gogle|amazn|micorsoft)\b`),
		weight:      0.08,
		explanation: "Email contains misspelled brand names.",
	},
}

var (
	urlPattern = regexp.MustCompile(`(?i)https?://[^\s)>'"]+|www\.[^\s)>'"]+\.[a-z]+`)
	ipURL      = regexp.MustCompile(`^https?://\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)
	riskyTLDs  = []string{".tk", ".ml", ".ga", ".cf"}

	// brandDomains are sender domains commonly imitated by typosquats.
	brandDomains = []string{
		"gmail.com", "google.com", "outlook.com", "office.com",
		"microsoft.com", "paypal.com", "amazon.com", "apple.com",
	}
)

// Detection is a verdict with the ids of the rules that fired.
type Detection struct {
	model.ScanResult

	// Reasons are machine-readable rule ids.
	Reasons []string `json:"reasons"`
}

// Detector scores e-mails with weighted rules.
type Detector struct {
	rules []rule
}

// NewDetector creates a detector with the built-in rules.
func NewDetector() *Detector {
	return &Detector{rules: defaultRules}
}

// Score implements relay.Scorer, so the detector can also run in-process.
func (d *Detector) Score(ctx context.Context, req model.ScanRequest) (model.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return model.ScanResult{}, err
	}
	return d.Analyze(req).ScanResult, nil
}

// Analyze scores one e-mail. Links found in the text are checked together
// with the links extracted from the page.
func (d *Detector) Analyze(req model.ScanRequest) Detection {
	text := req.Subject + " " + req.Body

	reasons, ruleScore := d.checkRules(text)
	suspicious, urlScore := analyzeURLs(collectURLs(text, req.Links))

	explanations := make([]string, 0, len(reasons)+2)
	for _, id := range reasons {
		explanations = append(explanations, d.explanation(id))
	}

	var senderScore float64
	if brand, ok := lookalikeBrand(req.Sender); ok {
		senderScore = lookalikeWeight
		reasons = append(reasons, "lookalike_sender")
		explanations = append(explanations, fmt.Sprintf("Sender domain imitates %s.", brand))
	}

	score := math.Min(ruleScore+urlScore+senderScore, 1.0)
	score = math.Round(score*100) / 100

	if len(suspicious) > 0 {
		reasons = append(reasons, "suspicious_urls")
		explanations = append(explanations, fmt.Sprintf("Email contains %d suspicious link(s).", len(suspicious)))
	}

	return Detection{
		ScanResult: model.ScanResult{
			RiskLevel:       riskFor(score),
			ConfidenceScore: score,
			Explanations:    explanations,
			SuspiciousLinks: suspicious,
		},
		Reasons: reasons,
	}
}

func (d *Detector) checkRules(text string) ([]string, float64) {
	var (
		matched = []string{}
		total   float64
	)
	for _, r := range d.rules {
		for _, p := range r.patterns {
			if p.MatchString(text) {
				matched = append(matched, r.id)
				total += r.weight
				break
			}
		}
	}
	return matched, math.Min(total, ruleScoreCap)
}

func (d *Detector) explanation(id string) string {
	for _, r := range d.rules {
		if r.id == id {
			return r.explanation
		}
	}
	return id
}

func riskFor(score float64) model.RiskLevel {
	switch {
	case score >= HighThreshold:
		return model.RiskHigh
	case score >= MediumThreshold:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// collectURLs returns the URLs in text followed by links, without duplicates.
func collectURLs(text string, links []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	for _, u := range urlPattern.FindAllString(text, -1) {
		add(u)
	}
	for _, u := range links {
		add(u)
	}
	return out
}

// analyzeURLs flags IP hosts, very long URLs, deep paths and risky TLDs.
func analyzeURLs(urls []string) ([]string, float64) {
	suspicious := []string{}
	var score float64
	for _, u := range urls {
		switch {
		case ipURL.MatchString(u):
			score += 0.15
		case len(u) > longURL:
			score += 0.10
		case strings.Count(u, "/") > maxSlashes:
			score += 0.10
		case hasRiskyTLD(u):
			score += 0.12
		default:
			continue
		}
		suspicious = append(suspicious, u)
	}
	return suspicious, math.Min(score, urlScoreCap)
}

func hasRiskyTLD(raw string) bool {
	host := strings.ToLower(raw)
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
	}
	for _, tld := range riskyTLDs {
		if strings.HasSuffix(host, tld) {
			return true
		}
	}
	return false
}

// lookalikeBrand reports the brand domain the sender's domain is a near
// miss of. An exact match is the brand itself and is not flagged.
func lookalikeBrand(sender string) (string, bool) {
	at := strings.LastIndex(sender, "@")
	if at < 0 {
		return "", false
	}
	domain := strings.ToLower(strings.TrimSpace(sender[at+1:]))
	if domain == "" {
		return "", false
	}
	for _, brand := range brandDomains {
		if domain == brand || strings.HasSuffix(domain, "."+brand) {
			return "", false
		}
	}
	for _, brand := range brandDomains {
		if d := levenshtein.ComputeDistance(domain, brand); d > 0 && d <= maxLookalikeDistance {
			return brand, true
		}
	}
	return "", false
}
