package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryTargetRepo реализует TargetRepo в памяти.
// Используется по умолчанию и в тестах.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryTargetRepo struct {
	mu   sync.RWMutex
	data map[uint64]TargetSnapshot // unitID -> снимок
}

// NewMemoryTargetRepo создает новый репозиторий снимков в памяти.
func NewMemoryTargetRepo() *MemoryTargetRepo {
	return &MemoryTargetRepo{
		data: make(map[uint64]TargetSnapshot),
	}
}

// Save сохраняет снимок в памяти.
func (r *MemoryTargetRepo) Save(ctx context.Context, snap TargetSnapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[snap.UnitID] = snap
	return nil
}

// Load загружает снимок из памяти.
func (r *MemoryTargetRepo) Load(ctx context.Context, unitID uint64) (TargetSnapshot, bool, error) {
	if unitID == 0 {
		return TargetSnapshot{}, false, fmt.Errorf("недействительный unitID: %d", unitID)
	}
	if err := checkContext(ctx); err != nil {
		return TargetSnapshot{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, exists := r.data[unitID]
	return snap, exists, nil
}

// Delete удаляет снимок из памяти.
func (r *MemoryTargetRepo) Delete(ctx context.Context, unitID uint64) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[unitID]; !exists {
		return fmt.Errorf("%w: юнит %d", ErrNotFound, unitID)
	}

	delete(r.data, unitID)
	return nil
}

// BatchSave сохраняет снимки нескольких юнитов в памяти.
func (r *MemoryTargetRepo) BatchSave(ctx context.Context, snaps []TargetSnapshot) error {
	if len(snaps) == 0 {
		return nil // Нечего сохранять
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	// Валидация всех записей перед сохранением
	if err := validateBatch(snaps); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, snap := range snaps {
		r.data[snap.UnitID] = snap
	}
	return nil
}

// Close ничего не делает: соединений нет.
func (r *MemoryTargetRepo) Close() error {
	return nil
}

// All возвращает копию всех снимков по возрастанию unitID (для отладки).
func (r *MemoryTargetRepo) All() []TargetSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]TargetSnapshot, 0, len(r.data))
	for _, snap := range r.data {
		result = append(result, snap)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UnitID < result[j].UnitID })
	return result
}

// Count возвращает количество сохраненных снимков.
func (r *MemoryTargetRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
