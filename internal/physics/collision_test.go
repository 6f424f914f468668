package physics

import (
	"testing"

	"github.com/annel0/rts-aggro/internal/vec"
	"github.com/stretchr/testify/assert"
)

func TestVerticalCapsule_Default(t *testing.T) {
	c := VerticalCapsule(vec.Vec3Float{X: 1, Y: 2, Z: 3}, 10, 0)

	assert.Equal(t, vec.Vec3Float{X: 1, Y: -98, Z: 3}, c.A)
	assert.Equal(t, vec.Vec3Float{X: 1, Y: 102, Z: 3}, c.B)
	assert.Equal(t, 10.0, c.Radius)
}

func TestClosestPointOnSegment(t *testing.T) {
	a := vec.Vec3Float{Y: -1}
	b := vec.Vec3Float{Y: 1}

	tests := []struct {
		name string
		p    vec.Vec3Float
		want vec.Vec3Float
	}{
		{"Проекция внутрь", vec.Vec3Float{X: 5, Y: 0.5}, vec.Vec3Float{Y: 0.5}},
		{"Ниже отрезка", vec.Vec3Float{X: 5, Y: -10}, a},
		{"Выше отрезка", vec.Vec3Float{X: 5, Y: 10}, b},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClosestPointOnSegment(a, b, tt.p))
		})
	}

	// Вырожденный отрезок
	assert.Equal(t, a, ClosestPointOnSegment(a, a, vec.Vec3Float{X: 3}))
}

func TestCapsule_OverlapsSphere(t *testing.T) {
	c := VerticalCapsule(vec.Vec3Float{}, 5, 100)

	assert.True(t, c.OverlapsSphere(NewSphereCollider(vec.Vec3Float{X: 4}, 0.5, LayerEntity)))
	assert.True(t, c.OverlapsSphere(NewSphereCollider(vec.Vec3Float{X: 5.5}, 0.5, LayerEntity)), "касание считается пересечением")
	assert.False(t, c.OverlapsSphere(NewSphereCollider(vec.Vec3Float{X: 6}, 0.5, LayerEntity)))

	// Высота в пределах капсулы не важна
	assert.True(t, c.OverlapsSphere(NewSphereCollider(vec.Vec3Float{X: 4, Y: 80}, 0.5, LayerEntity)))
}

func TestLayerMask(t *testing.T) {
	m := MaskOf(LayerEntity, LayerTerrain)

	assert.True(t, m.Has(LayerEntity))
	assert.True(t, m.Has(LayerTerrain))
	assert.False(t, m.Has(LayerProjectile))
	assert.True(t, LayerAll.Has(LayerProjectile))
	assert.Equal(t, LayerDefault, NewSphereCollider(vec.Vec3Float{}, 1, 0).Layer)
}

func TestCapsule_Bounds(t *testing.T) {
	c := VerticalCapsule(vec.Vec3Float{X: 10, Z: -4}, 3, 100)
	minX, minZ, maxX, maxZ := c.Bounds()

	assert.Equal(t, 7.0, minX)
	assert.Equal(t, -7.0, minZ)
	assert.Equal(t, 13.0, maxX)
	assert.Equal(t, -1.0, maxZ)
}
