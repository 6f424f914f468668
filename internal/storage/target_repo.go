package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound снимка для юнита нет в хранилище
var ErrNotFound = errors.New("target snapshot not found")

// TargetSnapshot последнее известное состояние цели юнита.
// Внешние читатели (оверлеи, боты, аналитика) опрашивают хранилище,
// не обращаясь к симуляции напрямую.
type TargetSnapshot struct {
	UnitID    uint64    `json:"unit_id"`
	TargetID  uint64    `json:"target_id,omitempty"`
	HasTarget bool      `json:"has_target"`
	State     string    `json:"state"`
	Tick      uint64    `json:"tick"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate проверяет согласованность снимка
func (s TargetSnapshot) Validate() error {
	if s.UnitID == 0 {
		return fmt.Errorf("недействительный unitID: %d", s.UnitID)
	}
	if s.HasTarget != (s.TargetID != 0) {
		return fmt.Errorf("юнит %d: has_target=%v не согласован с target_id=%d", s.UnitID, s.HasTarget, s.TargetID)
	}
	return nil
}

// TargetRepo определяет интерфейс хранилища снимков целей.
type TargetRepo interface {
	// Save сохраняет снимок юнита, перезаписывая прежний.
	Save(ctx context.Context, snap TargetSnapshot) error

	// Load загружает снимок. При false снимка нет.
	Load(ctx context.Context, unitID uint64) (TargetSnapshot, bool, error)

	// Delete удаляет снимок. Отсутствующий снимок даёт ErrNotFound.
	Delete(ctx context.Context, unitID uint64) error

	// BatchSave сохраняет снимки нескольких юнитов одним запросом.
	BatchSave(ctx context.Context, snaps []TargetSnapshot) error

	// Close освобождает соединения.
	Close() error
}

func validateBatch(snaps []TargetSnapshot) error {
	for _, s := range snaps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("batch: %w", err)
		}
	}
	return nil
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
