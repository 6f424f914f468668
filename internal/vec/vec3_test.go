package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVec3Float_Normalized(t *testing.T) {
	v := Vec3Float{X: 3, Y: 0, Z: 4}.Normalized()
	assert.InDelta(t, 1.0, v.Length(), 1e-9, "длина нормализованного вектора должна быть 1")
	assert.InDelta(t, 0.6, v.X, 1e-9)
	assert.InDelta(t, 0.8, v.Z, 1e-9)

	zero := Vec3Float{}.Normalized()
	assert.Equal(t, Vec3Float{}, zero, "нулевой вектор должен остаться нулевым")
}

func TestVec3Float_Dot(t *testing.T) {
	a := Vec3Float{X: 1, Y: 2, Z: 3}
	b := Vec3Float{X: 4, Y: -5, Z: 6}
	assert.Equal(t, 12.0, a.Dot(b))
	assert.Equal(t, 1.0, Forward.Dot(Forward))
	assert.Equal(t, 0.0, Forward.Dot(Up))
}

func TestVec3Float_HorizontalDistanceIgnoresAltitude(t *testing.T) {
	origin := Vec3Float{}
	ground := Vec3Float{X: 3, Y: 0, Z: 4}
	air := Vec3Float{X: 3, Y: 50, Z: 4}

	assert.InDelta(t, 5.0, origin.HorizontalDistanceTo(ground), 1e-9)
	assert.InDelta(t, 5.0, origin.HorizontalDistanceTo(air), 1e-9, "высота не должна влиять на расстояние")
	assert.Greater(t, origin.DistanceTo(air), 50.0)
}

func TestVec3Float_FlattenAndWithY(t *testing.T) {
	v := Vec3Float{X: 1, Y: 7, Z: -2}
	assert.Equal(t, Vec3Float{X: 1, Y: 0, Z: -2}, v.Flatten())
	assert.Equal(t, Vec3Float{X: 1, Y: 3, Z: -2}, v.WithY(3))
	assert.Equal(t, 7.0, v.Y, "исходный вектор не должен меняться")
}
