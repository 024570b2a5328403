// Package diagnostics runs preflight checks over the engine's asset sources.
package diagnostics

import (
	"context"

	"vidforge/internal/domain"
	"vidforge/internal/resolve"
)

// Checker probes each asset role across all configured sources.
type Checker struct {
	resolver *resolve.Resolver
}

// NewChecker creates a checker over the given resolver.
func NewChecker(resolver *resolve.Resolver) *Checker {
	return &Checker{resolver: resolver}
}

// Run probes candidates for every asset role in preference order, recording
// the first reachable source per role. The report is Ready only when every
// role has at least one reachable source.
func (c *Checker) Run(ctx context.Context) domain.DiagnosticReport {
	report := domain.DiagnosticReport{Ready: true}

	for _, role := range resolve.Roles() {
		check := domain.AssetCheck{Role: role}
		var lastErr error

		for _, candidate := range c.resolver.Candidates(role) {
			if err := c.resolver.Validate(ctx, candidate, role); err != nil {
				lastErr = err
				continue
			}
			check.Source = candidate
			check.Reachable = true
			break
		}

		if !check.Reachable {
			report.Ready = false
			if lastErr != nil {
				check.Detail = lastErr.Error()
			}
		}
		report.Assets = append(report.Assets, check)
	}

	return report
}
