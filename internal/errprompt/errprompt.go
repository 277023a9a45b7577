package errprompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule is the error prompt matcher's own rule type.
type Rule struct {
	Pattern string
	Message string
}

type compiledRule struct {
	pattern *regexp.Regexp
	message string
}

// Matcher checks error messages against patterns and returns guidance prompts.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher creates a new Matcher. Returns an error on invalid regex patterns.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("errprompt: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, message: r.Message}
	}
	return &Matcher{rules: compiled}, nil
}

// Match checks the error message against all rules (top to bottom) and returns
// the matching prompt messages joined with newlines, plus the patterns that
// matched. Both are empty when no rule matches.
func (m *Matcher) Match(errMsg string) (string, []string) {
	var (
		messages []string
		patterns []string
	)
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			messages = append(messages, rule.message)
			patterns = append(patterns, rule.pattern.String())
		}
	}
	return strings.Join(messages, "\n"), patterns
}
