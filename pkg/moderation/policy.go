package moderation

import "strings"

// FailurePolicy decides what happens when the authoritative semantic
// stage cannot produce a verdict after its retry budget is exhausted.
// It is injected at pipeline construction so the gate is a pure
// function of its inputs rather than ambient configuration.
type FailurePolicy struct {
	Environment string
	FailOpen    bool
}

// IsProduction normalizes the environment name before matching so
// "Production" or "prod" cannot silently weaken the gate.
func (p FailurePolicy) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(p.Environment)) {
	case "production", "prod":
		return true
	}
	return false
}

// AllowOnFailure reports whether content is allowed when the semantic
// stage fails. Production always fails closed, regardless of the
// fail-open flag.
func (p FailurePolicy) AllowOnFailure() bool {
	if p.IsProduction() {
		return false
	}
	return p.FailOpen
}
