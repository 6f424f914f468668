package world

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/annel0/rts-aggro/internal/physics"
)

// DefaultCellSize размер ячейки сетки по умолчанию
const DefaultCellSize = 16.0

// maxCellsPerCollider предел ячеек на один коллайдер. Более крупные
// коллайдеры хранятся отдельно и проверяются в каждом запросе.
const maxCellsPerCollider = 1024

// SpatialIndex представляет пространственный индекс коллайдеров.
// Сетка строится по плоскости земли (X/Z), высота в ячейках не учитывается.
type SpatialIndex struct {
	cellSize  float64
	mu        sync.RWMutex
	cells     map[cellKey]map[physics.Handle]*indexedCollider
	colliders map[physics.Handle]*indexedCollider
	oversized map[physics.Handle]*indexedCollider
}

// cellKey представляет ключ ячейки в пространственной сетке
type cellKey struct {
	x, z int
}

// indexedCollider представляет индексированный коллайдер
type indexedCollider struct {
	handle   physics.Handle
	collider physics.SphereCollider
	cells    []cellKey
}

// bounds представляет горизонтальные границы
type bounds struct {
	minX, minZ float64
	maxX, maxZ float64
}

// NewSpatialIndex создаёт новый пространственный индекс
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}

	return &SpatialIndex{
		cellSize:  cellSize,
		cells:     make(map[cellKey]map[physics.Handle]*indexedCollider),
		colliders: make(map[physics.Handle]*indexedCollider),
		oversized: make(map[physics.Handle]*indexedCollider),
	}
}

func sphereBounds(c physics.SphereCollider) bounds {
	return bounds{
		minX: c.Center.X - c.Radius,
		minZ: c.Center.Z - c.Radius,
		maxX: c.Center.X + c.Radius,
		maxZ: c.Center.Z + c.Radius,
	}
}

// Insert добавляет коллайдер в индекс. Повторная вставка обновляет позицию.
func (si *SpatialIndex) Insert(h physics.Handle, c physics.SphereCollider) {
	si.mu.Lock()
	defer si.mu.Unlock()

	if _, exists := si.colliders[h]; exists {
		si.removeLocked(h)
	}

	indexed := &indexedCollider{
		handle:   h,
		collider: c,
		cells:    si.cellsFor(c),
	}
	if indexed.cells == nil {
		si.oversized[h] = indexed
	}

	for _, key := range indexed.cells {
		cell, ok := si.cells[key]
		if !ok {
			cell = make(map[physics.Handle]*indexedCollider)
			si.cells[key] = cell
		}
		cell[h] = indexed
	}

	si.colliders[h] = indexed
}

// Update обновляет позицию коллайдера в индексе
func (si *SpatialIndex) Update(h physics.Handle, c physics.SphereCollider) {
	si.mu.Lock()
	indexed, exists := si.colliders[h]
	if exists && indexed.cells != nil && sameCells(indexed.cells, si.cellsFor(c)) {
		// Ячейки не изменились — достаточно обновить сам коллайдер
		indexed.collider = c
		si.mu.Unlock()
		return
	}
	si.mu.Unlock()

	si.Insert(h, c)
}

// Remove удаляет коллайдер из индекса
func (si *SpatialIndex) Remove(h physics.Handle) bool {
	si.mu.Lock()
	defer si.mu.Unlock()
	return si.removeLocked(h)
}

func (si *SpatialIndex) removeLocked(h physics.Handle) bool {
	indexed, exists := si.colliders[h]
	if !exists {
		return false
	}
	delete(si.colliders, h)
	delete(si.oversized, h)

	for _, key := range indexed.cells {
		if cell, ok := si.cells[key]; ok {
			delete(cell, h)
			if len(cell) == 0 {
				delete(si.cells, key)
			}
		}
	}
	return true
}

// OverlapCapsule возвращает дескрипторы коллайдеров, пересекающих капсулу.
// Результат отсортирован по возрастанию дескриптора.
func (si *SpatialIndex) OverlapCapsule(c physics.Capsule, mask physics.LayerMask) []physics.Handle {
	minX, minZ, maxX, maxZ := c.Bounds()
	return si.collect(bounds{minX: minX, minZ: minZ, maxX: maxX, maxZ: maxZ}, func(col physics.SphereCollider) bool {
		return mask.Has(col.Layer) && c.OverlapsSphere(col)
	})
}

func (si *SpatialIndex) collect(b bounds, match func(physics.SphereCollider) bool) []physics.Handle {
	result := make([]physics.Handle, 0)

	si.mu.RLock()
	if si.cellSpan(b) > float64(len(si.cells)) {
		// Запрос шире занятой части сетки: перебираем коллайдеры напрямую
		for h, indexed := range si.colliders {
			if match(indexed.collider) {
				result = append(result, h)
			}
		}
	} else {
		seen := make(map[physics.Handle]struct{})
		for _, key := range si.getCellsForBounds(b) {
			for h, indexed := range si.cells[key] {
				if _, wasSeen := seen[h]; wasSeen {
					continue
				}
				seen[h] = struct{}{}
				if match(indexed.collider) {
					result = append(result, h)
				}
			}
		}
		for h, indexed := range si.oversized {
			if match(indexed.collider) {
				result = append(result, h)
			}
		}
	}
	si.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// GetCellCount возвращает количество активных ячеек
func (si *SpatialIndex) GetCellCount() int {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return len(si.cells)
}

// GetColliderCount возвращает количество индексированных коллайдеров
func (si *SpatialIndex) GetColliderCount() int {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return len(si.colliders)
}

// GetStats возвращает статистику индекса
func (si *SpatialIndex) GetStats() string {
	si.mu.RLock()
	defer si.mu.RUnlock()

	cellCount := len(si.cells)
	total := 0
	maxPerCell := 0
	for _, cell := range si.cells {
		total += len(cell)
		if len(cell) > maxPerCell {
			maxPerCell = len(cell)
		}
	}

	avg := 0.0
	if cellCount > 0 {
		avg = float64(total) / float64(cellCount)
	}

	return fmt.Sprintf("SpatialIndex Stats: %d colliders (%d oversized), %d cells, avg %.2f colliders/cell, max %d colliders/cell",
		len(si.colliders), len(si.oversized), cellCount, avg, maxPerCell)
}

// cellSpan возвращает число ячеек, покрываемых границами.
// Для бесконечных и NaN границ возвращает +Inf.
func (si *SpatialIndex) cellSpan(b bounds) float64 {
	spanX := math.Floor(b.maxX/si.cellSize) - math.Floor(b.minX/si.cellSize) + 1
	spanZ := math.Floor(b.maxZ/si.cellSize) - math.Floor(b.minZ/si.cellSize) + 1
	span := spanX * spanZ
	if math.IsNaN(span) || math.IsInf(span, 0) {
		return math.Inf(1)
	}
	if spanX <= 0 || spanZ <= 0 {
		return 0
	}
	return span
}

// cellsFor возвращает ячейки коллайдера или nil, если он слишком велик для сетки
func (si *SpatialIndex) cellsFor(c physics.SphereCollider) []cellKey {
	b := sphereBounds(c)
	if si.cellSpan(b) > maxCellsPerCollider {
		return nil
	}
	return si.getCellsForBounds(b)
}

// getCellsForBounds возвращает ключи ячеек, которые пересекаются с границами
func (si *SpatialIndex) getCellsForBounds(b bounds) []cellKey {
	minCellX := int(math.Floor(b.minX / si.cellSize))
	minCellZ := int(math.Floor(b.minZ / si.cellSize))
	maxCellX := int(math.Floor(b.maxX / si.cellSize))
	maxCellZ := int(math.Floor(b.maxZ / si.cellSize))
	if maxCellX < minCellX || maxCellZ < minCellZ {
		return nil
	}

	cells := make([]cellKey, 0, (maxCellX-minCellX+1)*(maxCellZ-minCellZ+1))
	for x := minCellX; x <= maxCellX; x++ {
		for z := minCellZ; z <= maxCellZ; z++ {
			cells = append(cells, cellKey{x: x, z: z})
		}
	}
	return cells
}

func sameCells(a, b []cellKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
