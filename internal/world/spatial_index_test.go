package world

import (
	"math"
	"testing"

	"github.com/annel0/rts-aggro/internal/physics"
	"github.com/annel0/rts-aggro/internal/vec"
	"github.com/stretchr/testify/assert"
)

func sphere(x, y, z, r float64, layer physics.Layer) physics.SphereCollider {
	return physics.NewSphereCollider(vec.Vec3Float{X: x, Y: y, Z: z}, r, layer)
}

func TestSpatialIndex_InsertAndOverlap(t *testing.T) {
	si := NewSpatialIndex(4)

	si.Insert(1, sphere(0, 0, 0, 0.5, physics.LayerEntity))
	si.Insert(2, sphere(3, 50, 0, 0.5, physics.LayerEntity))
	si.Insert(3, sphere(-9, 0, -9, 0.5, physics.LayerEntity))
	si.Insert(4, sphere(2, 0, 2, 1, physics.LayerTerrain))

	capsule := physics.VerticalCapsule(vec.Vec3Float{}, 5, 100)

	assert.Equal(t, []physics.Handle{1, 2, 4}, si.OverlapCapsule(capsule, physics.LayerAll))
	assert.Equal(t, []physics.Handle{1, 2}, si.OverlapCapsule(capsule, physics.MaskOf(physics.LayerEntity)))
	assert.Equal(t, 4, si.GetColliderCount())
}

func TestSpatialIndex_NegativeCoordinates(t *testing.T) {
	si := NewSpatialIndex(16)
	si.Insert(1, sphere(-0.5, 0, -0.5, 0.2, physics.LayerEntity))
	si.Insert(2, sphere(-17, 0, 0, 0.2, physics.LayerEntity))

	capsule := physics.VerticalCapsule(vec.Vec3Float{X: -1, Z: -1}, 1, 100)
	assert.Equal(t, []physics.Handle{1}, si.OverlapCapsule(capsule, physics.LayerAll))

	capsule = physics.VerticalCapsule(vec.Vec3Float{X: -16}, 1.5, 100)
	assert.Equal(t, []physics.Handle{2}, si.OverlapCapsule(capsule, physics.LayerAll))
}

func TestSpatialIndex_UpdateAcrossCells(t *testing.T) {
	si := NewSpatialIndex(4)
	si.Insert(1, sphere(0.5, 0, 0.5, 0.2, physics.LayerEntity))

	// Внутри той же ячейки
	si.Update(1, sphere(1, 0, 1, 0.2, physics.LayerEntity))
	assert.Equal(t, []physics.Handle{1}, si.OverlapCapsule(physics.VerticalCapsule(vec.Vec3Float{X: 1, Z: 1}, 0.1, 100), physics.LayerAll))
	assert.Empty(t, si.OverlapCapsule(physics.VerticalCapsule(vec.Vec3Float{X: 0.5, Z: 0.5}, 0.05, 100), physics.LayerAll))

	// В другую ячейку
	si.Update(1, sphere(40, 0, 40, 0.2, physics.LayerEntity))
	assert.Empty(t, si.OverlapCapsule(physics.VerticalCapsule(vec.Vec3Float{}, 3, 100), physics.LayerAll))
	assert.Equal(t, []physics.Handle{1}, si.OverlapCapsule(physics.VerticalCapsule(vec.Vec3Float{X: 40, Z: 40}, 1, 100), physics.LayerAll))
	assert.Equal(t, 1, si.GetCellCount(), "старая ячейка должна быть удалена")

	// Update для неизвестного коллайдера добавляет его
	si.Update(2, sphere(0, 0, 0, 0.2, physics.LayerEntity))
	assert.Equal(t, 2, si.GetColliderCount())
}

func TestSpatialIndex_Remove(t *testing.T) {
	si := NewSpatialIndex(0)
	si.Insert(1, sphere(0, 0, 0, 30, physics.LayerEntity))
	assert.Greater(t, si.GetCellCount(), 1, "большой коллайдер занимает несколько ячеек")

	assert.True(t, si.Remove(1))
	assert.False(t, si.Remove(1))
	assert.Zero(t, si.GetCellCount())
	assert.Zero(t, si.GetColliderCount())
}

func TestSpatialIndex_LargeRadiusScansColliders(t *testing.T) {
	si := NewSpatialIndex(16)
	si.Insert(1, sphere(3, 0, 4, 0.5, physics.LayerEntity))
	si.Insert(2, sphere(5000, 0, -5000, 0.5, physics.LayerEntity))
	si.Insert(3, sphere(6, 0, 6, 0.5, physics.LayerTerrain))

	for _, radius := range []float64{1e4, 5e4, 1e12, 1e300, math.Inf(1)} {
		capsule := physics.VerticalCapsule(vec.Vec3Float{}, radius, 100)
		assert.Equal(t, []physics.Handle{1, 2}, si.OverlapCapsule(capsule, physics.MaskOf(physics.LayerEntity)), "radius %g", radius)
	}

	// Полный перебор и обход ячеек дают одинаковый результат
	assert.Equal(t, []physics.Handle{1, 3}, si.OverlapCapsule(physics.VerticalCapsule(vec.Vec3Float{}, 8, 100), physics.LayerAll))
	assert.Equal(t, []physics.Handle{1}, si.OverlapCapsule(physics.VerticalCapsule(vec.Vec3Float{X: 3, Z: 4}, 2, 100), physics.LayerAll))

	assert.Empty(t, si.OverlapCapsule(physics.VerticalCapsule(vec.Vec3Float{}, math.NaN(), 100), physics.LayerAll))
	assert.Empty(t, si.OverlapCapsule(physics.VerticalCapsule(vec.Vec3Float{}, -5, 100), physics.LayerAll))
	assert.Contains(t, si.GetStats(), "3 colliders")
}

func TestSpatialIndex_OversizedCollider(t *testing.T) {
	si := NewSpatialIndex(1)
	si.Insert(1, sphere(0, 0, 0, 1e9, physics.LayerTerrain))
	si.Insert(2, sphere(2.5, 0, 0.5, 0.2, physics.LayerEntity))

	assert.Equal(t, 1, si.GetCellCount(), "огромный коллайдер не раскладывается по ячейкам")
	assert.Contains(t, si.GetStats(), "(1 oversized)")

	capsule := physics.VerticalCapsule(vec.Vec3Float{X: 2.5, Z: 0.5}, 0.4, 100)
	assert.Equal(t, []physics.Handle{1, 2}, si.OverlapCapsule(capsule, physics.LayerAll))

	// Сжатие возвращает коллайдер в сетку
	si.Update(1, sphere(0, 0, 0, 0.2, physics.LayerTerrain))
	assert.Contains(t, si.GetStats(), "(0 oversized)")
	assert.Equal(t, []physics.Handle{2}, si.OverlapCapsule(capsule, physics.LayerAll))

	assert.True(t, si.Remove(1))
	assert.Equal(t, 1, si.GetColliderCount())
}
