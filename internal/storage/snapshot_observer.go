package storage

import (
	"context"
	"errors"
	"time"

	"github.com/annel0/rts-aggro/internal/aggro"
	"github.com/annel0/rts-aggro/internal/logging"
	"github.com/annel0/rts-aggro/internal/world"
)

// SnapshotObserver держит хранилище снимков в актуальном состоянии:
// смены целей за тик записываются одним BatchSave.
type SnapshotObserver struct {
	world.NopObserver

	repo   TargetRepo
	logger *logging.Logger
	now    func() time.Time
}

// NewSnapshotObserver создаёт наблюдателя мира поверх repo
func NewSnapshotObserver(repo TargetRepo, logger *logging.Logger) *SnapshotObserver {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &SnapshotObserver{repo: repo, logger: logger, now: time.Now}
}

func (o *SnapshotObserver) UnitSpawned(ctx context.Context, u world.UnitInfo) {
	snap := TargetSnapshot{
		UnitID:    u.ID,
		TargetID:  u.TargetID,
		HasTarget: u.TargetID != 0,
		State:     u.State,
		UpdatedAt: o.now().UTC(),
	}
	if err := o.repo.Save(ctx, snap); err != nil {
		o.logger.Warn("Не удалось сохранить снимок юнита %d: %v", u.ID, err)
	}
}

func (o *SnapshotObserver) UnitRemoved(ctx context.Context, u world.UnitInfo) {
	if err := o.repo.Delete(ctx, u.ID); err != nil && !errors.Is(err, ErrNotFound) {
		o.logger.Warn("Не удалось удалить снимок юнита %d: %v", u.ID, err)
	}
}

func (o *SnapshotObserver) TickCompleted(ctx context.Context, r world.TickReport) {
	if len(r.Changes) == 0 {
		return
	}

	now := o.now().UTC()
	snaps := make([]TargetSnapshot, 0, len(r.Changes))
	for _, change := range r.Changes {
		state := aggro.StateIdle
		if change.CurrentID != 0 {
			state = aggro.StateEngaged
		}
		snaps = append(snaps, TargetSnapshot{
			UnitID:    change.UnitID,
			TargetID:  change.CurrentID,
			HasTarget: change.CurrentID != 0,
			State:     state.String(),
			Tick:      r.Tick,
			UpdatedAt: now,
		})
	}

	if err := o.repo.BatchSave(ctx, snaps); err != nil {
		o.logger.Error("❌ Не удалось сохранить %d снимков тика %d: %v", len(snaps), r.Tick, err)
	}
}
