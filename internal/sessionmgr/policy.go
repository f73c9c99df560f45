package sessionmgr

import (
	"fmt"
	"regexp"
	"sync"
)

// Policy filters commands against configured allow/block regex lists.
// Grounded on the teacher's internal/security.CommandFilter, but the
// precedence is inverted: when both lists are configured, Allow's verdict
// decides outright rather than the blocklist being checked first (spec.md
// §4.4, §8's "policy precedence" scenario).
type Policy struct {
	mu    sync.RWMutex
	allow []*regexp.Regexp
	block []*regexp.Regexp
}

// NewPolicy compiles the given allow/block patterns. Either may be empty.
func NewPolicy(allowed, blocked []string) (*Policy, error) {
	p := &Policy{}
	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed-command pattern %q: %w", pattern, err)
		}
		p.allow = append(p.allow, re)
	}
	for _, pattern := range blocked {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked-command pattern %q: %w", pattern, err)
		}
		p.block = append(p.block, re)
	}
	return p, nil
}

// Allows reports whether cmd may be dispatched. When an allowlist is
// configured its verdict is final: a match allows the command even if a
// blocklist pattern would also match; a non-match denies it regardless of
// the blocklist. With no allowlist configured, a blocklist match denies.
func (p *Policy) Allows(cmd string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.allow) > 0 {
		for _, re := range p.allow {
			if re.MatchString(cmd) {
				return true
			}
		}
		return false
	}
	for _, re := range p.block {
		if re.MatchString(cmd) {
			return false
		}
	}
	return true
}
