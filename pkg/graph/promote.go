package graph

import (
	"fmt"
	"path"
)

// Promotion exposes a child's variable under a name in the parent namespace.
type Promotion struct {
	inner string
	outer string
	all   bool
}

// Promote exposes variables under their own name. Glob patterns are allowed.
func Promote(names ...string) []Promotion {
	ps := make([]Promotion, len(names))
	for i, name := range names {
		ps[i] = Promotion{inner: name}
	}
	return ps
}

// PromoteAs exposes inner under the alias outer.
func PromoteAs(inner, outer string) Promotion {
	return Promotion{inner: inner, outer: outer}
}

// PromoteAll exposes every variable of the child.
func PromoteAll() Promotion {
	return Promotion{all: true}
}

// promoter resolves child names against a promotion list and remembers which
// rules matched so unmatched ones can be reported.
type promoter struct {
	rules []Promotion
	used  []bool
}

func newPromoter(rules []Promotion) *promoter {
	return &promoter{rules: rules, used: make([]bool, len(rules))}
}

// resolve returns the parent-level name for a child name. Aliases take
// precedence over patterns.
func (p *promoter) resolve(child, name string) string {
	for i, r := range p.rules {
		if r.outer != "" && r.inner == name {
			p.used[i] = true
			return r.outer
		}
	}
	for i, r := range p.rules {
		if r.all {
			p.used[i] = true
			return name
		}
		if r.outer != "" {
			continue
		}
		if ok, _ := path.Match(r.inner, name); ok {
			p.used[i] = true
			return name
		}
	}
	return child + "." + name
}

func (p *promoter) unmatched(child string) error {
	for i, r := range p.rules {
		if !p.used[i] && !r.all {
			return fmt.Errorf("%s: promotion %q matches nothing: %w", child, r.inner, ErrUnknownVariable)
		}
	}
	return nil
}
