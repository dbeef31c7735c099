// Package urlfilter resolves suspended-tab URLs to their real target and
// decides whether a tab URL may be sent to the save API.
package urlfilter

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Verdict is the classification of a resolved tab URL.
type Verdict int

const (
	// Valid URLs are submitted.
	Valid Verdict = iota
	// Skipped URLs are not absolute http(s) URLs with a dotted hostname.
	Skipped
	// Blocked URLs are browser-internal pages and extension origins.
	Blocked
)

func (v Verdict) String() string {
	switch v {
	case Valid:
		return "valid"
	case Skipped:
		return "skipped"
	case Blocked:
		return "blocked"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

var internalURLPattern = regexp.MustCompile(`(?i)^(chrome|chrome-extension|chrome-search|chrome-untrusted|about|edge|brave|opera|vivaldi|devtools|view-source|moz-extension):`)

// Suspender describes a tab suspension helper whose parked pages embed the
// original URL as a parameter.
type Suspender struct {
	Name       string `yaml:"name"`
	Marker     string `yaml:"marker"`
	Param      string `yaml:"param"`
	InFragment bool   `yaml:"in_fragment,omitempty"`
}

// DefaultSuspenders are always recognised.
var DefaultSuspenders = []Suspender{
	{Name: "tab-suspender", Marker: "parked.html", Param: "url"},
	{Name: "the-great-suspender", Marker: "suspended.html", Param: "uri", InFragment: true},
}

type suspendersFile struct {
	Suspenders []Suspender `yaml:"suspenders"`
}

// LoadSuspenders reads and validates extra suspender definitions from YAML.
func LoadSuspenders(path string) ([]Suspender, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("suspenders config: %w", err)
	}
	var f suspendersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("suspenders config: %w", err)
	}
	for i, s := range f.Suspenders {
		if s.Marker == "" {
			return nil, fmt.Errorf("suspenders config: suspender[%d] (%s) missing marker", i, s.Name)
		}
		if s.Param == "" {
			return nil, fmt.Errorf("suspenders config: suspender[%d] (%s) missing param", i, s.Name)
		}
	}
	return f.Suspenders, nil
}

// Normalizer resolves parked URLs and classifies the result.
type Normalizer struct {
	suspenders []Suspender
}

// New returns a Normalizer that knows DefaultSuspenders plus extra.
func New(extra ...Suspender) *Normalizer {
	all := make([]Suspender, 0, len(DefaultSuspenders)+len(extra))
	all = append(all, DefaultSuspenders...)
	all = append(all, extra...)
	return &Normalizer{suspenders: all}
}

// Normalize resolves rawURL and classifies it.
func (n *Normalizer) Normalize(rawURL string) (string, Verdict) {
	resolved := n.Resolve(rawURL)
	return resolved, Classify(resolved)
}

// Resolve returns the target URL embedded in a suspended tab URL, or rawURL
// unchanged when it is not a suspended tab or extraction fails. Query
// parameters are decoded exactly once.
func (n *Normalizer) Resolve(rawURL string) string {
	for _, s := range n.suspenders {
		if !strings.Contains(rawURL, s.Marker) {
			continue
		}
		if target := s.extract(rawURL); target != "" {
			return target
		}
	}
	return rawURL
}

func (s Suspender) extract(rawURL string) string {
	if !s.InFragment {
		u, err := url.Parse(rawURL)
		if err != nil {
			return ""
		}
		return u.Query().Get(s.Param)
	}

	// Fragment-style suspenders append the original URL last and unencoded,
	// so everything after the key belongs to it, including any '#'.
	hash := strings.IndexByte(rawURL, '#')
	if hash < 0 {
		return ""
	}
	frag := rawURL[hash+1:]
	key := s.Param + "="
	idx := -1
	for start := 0; start < len(frag); {
		i := strings.Index(frag[start:], key)
		if i < 0 {
			break
		}
		pos := start + i
		if pos == 0 || frag[pos-1] == '&' {
			idx = pos
			break
		}
		start = pos + len(key)
	}
	if idx < 0 {
		return ""
	}
	return frag[idx+len(key):]
}

// Classify reports whether u is internal (Blocked), unusable (Skipped) or
// fit for submission (Valid).
func Classify(u string) Verdict {
	if internalURLPattern.MatchString(u) {
		return Blocked
	}
	if !IsValidURL(u) {
		return Skipped
	}
	return Valid
}

// IsValidURL requires an absolute http or https URL whose hostname contains
// at least one dot.
func IsValidURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return false
	}
	return strings.Contains(parsed.Hostname(), ".")
}
