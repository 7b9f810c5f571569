package services

import (
	"context"

	"github.com/tenantcore/backend/internal/domain/models"
	apperrors "github.com/tenantcore/backend/pkg/errors"
)

// BatchError pairs one failed item with its error
type BatchError struct {
	ID    string                   `json:"id"`
	Error apperrors.ErrorResponse `json:"error"`
}

// BatchResult accumulates per-item outcomes. Each successful item committed
// in its own transaction; failures do not roll back earlier successes.
type BatchResult struct {
	Successes []models.Record `json:"successes"`
	Errors    []BatchError    `json:"errors"`
}

// Failed reports whether any item failed
func (br *BatchResult) Failed() bool {
	return len(br.Errors) > 0
}

// BatchUpdateItem is one (id, diff) pair
type BatchUpdateItem struct {
	ID   string
	Diff models.Record
}

// CreateMany creates each draft independently, accumulating per-item errors
func (m *Manager) CreateMany(ctx context.Context, drafts []models.Record) BatchResult {
	var result BatchResult
	for _, draft := range drafts {
		rec, err := m.Create(ctx, draft)
		if err != nil {
			result.Errors = append(result.Errors, BatchError{ID: draft.ID(), Error: apperrors.ToResponse(err)})
			continue
		}
		result.Successes = append(result.Successes, rec)
	}
	return result
}

// BatchUpdateItems applies per-item diffs, accumulating per-item errors
func (m *Manager) BatchUpdateItems(ctx context.Context, items []BatchUpdateItem) BatchResult {
	var result BatchResult
	for _, item := range items {
		rec, err := m.Update(ctx, item.ID, item.Diff)
		if err != nil {
			result.Errors = append(result.Errors, BatchError{ID: item.ID, Error: apperrors.ToResponse(err)})
			continue
		}
		result.Successes = append(result.Successes, rec)
	}
	return result
}

// BatchUpdate applies one shared partial to every target id
func (m *Manager) BatchUpdate(ctx context.Context, ids []string, partial models.Record) BatchResult {
	items := make([]BatchUpdateItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, BatchUpdateItem{ID: id, Diff: partial})
	}
	return m.BatchUpdateItems(ctx, items)
}

// BatchDelete deletes each target id, accumulating per-item errors
func (m *Manager) BatchDelete(ctx context.Context, ids []string) BatchResult {
	var result BatchResult
	for _, id := range ids {
		if err := m.Delete(ctx, id); err != nil {
			result.Errors = append(result.Errors, BatchError{ID: id, Error: apperrors.ToResponse(err)})
			continue
		}
		result.Successes = append(result.Successes, models.Record{"id": id})
	}
	return result
}
