// Package selector implements the Mercure topic selector: a compiled
// matcher that is either the wildcard, a literal IRI, or a URI
// template (RFC 6570, levels 1-4) converted to an equivalent pattern.
package selector

import (
	"net/url"
	"regexp"
	"strings"
)

// Kind tags which variant a compiled Selector is.
type Kind int

const (
	KindWildcard Kind = iota
	KindLiteral
	KindTemplate
)

// Selector is an immutable, compiled topic matcher. Once returned from
// Compile it is safe to share and match concurrently from any number
// of goroutines.
type Selector struct {
	kind    Kind
	raw     string
	literal string
	pattern *regexp.Regexp
}

// Raw returns the original selector string as supplied to Compile.
func (s *Selector) Raw() string { return s.raw }

// Kind reports which variant this selector compiled to.
func (s *Selector) Kind() Kind { return s.kind }

// Compile turns a topic string into a Selector. The exact string "*"
// compiles to the always-matching Wildcard; a string containing "{"
// is parsed as a URI template and converted to a matching pattern
// (relative templates are resolved against base, when given); any
// other string is a case-sensitive Literal.
func Compile(topic string, base *url.URL) (*Selector, error) {
	if topic == "*" {
		return &Selector{kind: KindWildcard, raw: topic}, nil
	}

	if containsTemplateExpression(topic) {
		resolved := topic
		if base != nil {
			if u, err := base.Parse(topic); err == nil {
				// net/url percent-encodes "{" and "}"; restore them so the
				// template expressions survive resolution.
				resolved = strings.NewReplacer("%7B", "{", "%7D", "}").Replace(u.String())
			}
		}
		pattern, err := compiledTemplate(resolved)
		if err != nil {
			return nil, err
		}
		return &Selector{kind: KindTemplate, raw: topic, pattern: pattern}, nil
	}

	literal := topic
	if base != nil {
		if u, err := base.Parse(topic); err == nil {
			literal = u.String()
		}
	}
	return &Selector{kind: KindLiteral, raw: topic, literal: literal}, nil
}

func containsTemplateExpression(topic string) bool {
	for i := 0; i < len(topic); i++ {
		if topic[i] == '{' {
			return true
		}
	}
	return false
}

// Match reports whether this selector matches any one of the given
// candidate topics. Matching is case-sensitive on the whole topic,
// host included: neither the compiled selector nor the candidates are
// case-normalized, so hosts that differ only in case do not match.
func (s *Selector) Match(candidates []string) bool {
	switch s.kind {
	case KindWildcard:
		return true
	case KindLiteral:
		for _, c := range candidates {
			if c == s.literal {
				return true
			}
		}
		return false
	case KindTemplate:
		for _, c := range candidates {
			if s.pattern.MatchString(c) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// MatchOne is a convenience for matching a single candidate topic.
func (s *Selector) MatchOne(topic string) bool {
	return s.Match([]string{topic})
}
