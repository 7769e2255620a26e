// Package storage provides persistence for audit runs. The orchestrator only
// requires atomic save-on-completion; partial state during a run is internal
// to it and never externally visible.
package storage

import (
	"context"

	"github.com/clausewise/clausewise/pkg/domain"
)

// AuditStore exposes persistence operations for audit runs. Lookups are by
// policy id, the caller-facing key; a later run for the same policy replaces
// the earlier one.
type AuditStore interface {
	LoadAuditRun(ctx context.Context, policyID string) (*domain.AuditRun, error)
	SaveAuditRun(ctx context.Context, run *domain.AuditRun) error
	Close() error
}
