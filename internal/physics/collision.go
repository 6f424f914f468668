package physics

import (
	"github.com/annel0/rts-aggro/internal/vec"
)

// DefaultCapsuleHalfHeight насколько капсула поиска уходит вверх и вниз от центра.
// Значение заведомо больше любой высоты в мире, так что важен только горизонтальный радиус.
const DefaultCapsuleHalfHeight = 100.0

// Handle непрозрачный идентификатор коллайдера, возвращаемый запросами перекрытия
type Handle uint64

// Layer категория коллайдера для фильтрации запросов
type Layer uint32

const (
	LayerDefault Layer = 1 << iota
	LayerEntity
	LayerTerrain
	LayerProjectile
)

// LayerMask набор категорий
type LayerMask uint32

// LayerAll пропускает коллайдеры любой категории
const LayerAll LayerMask = ^LayerMask(0)

// MaskOf собирает маску из списка категорий
func MaskOf(layers ...Layer) LayerMask {
	var m LayerMask
	for _, l := range layers {
		m |= LayerMask(l)
	}
	return m
}

// Has проверяет, входит ли категория в маску
func (m LayerMask) Has(l Layer) bool {
	return m&LayerMask(l) != 0
}

// SphereCollider сферический коллайдер
type SphereCollider struct {
	Center vec.Vec3Float
	Radius float64
	Layer  Layer
}

// NewSphereCollider создаёт коллайдер с указанными параметрами
func NewSphereCollider(center vec.Vec3Float, radius float64, layer Layer) SphereCollider {
	if layer == 0 {
		layer = LayerDefault
	}
	return SphereCollider{Center: center, Radius: radius, Layer: layer}
}

// Capsule отрезок AB с радиусом
type Capsule struct {
	A      vec.Vec3Float
	B      vec.Vec3Float
	Radius float64
}

// VerticalCapsule строит вертикальную капсулу вокруг точки.
// При halfHeight <= 0 используется DefaultCapsuleHalfHeight.
func VerticalCapsule(center vec.Vec3Float, radius, halfHeight float64) Capsule {
	if halfHeight <= 0 {
		halfHeight = DefaultCapsuleHalfHeight
	}
	return Capsule{
		A:      center.Add(vec.Up.Mul(-halfHeight)),
		B:      center.Add(vec.Up.Mul(halfHeight)),
		Radius: radius,
	}
}

// ClosestPointOnSegment возвращает ближайшую к p точку отрезка ab
func ClosestPointOnSegment(a, b, p vec.Vec3Float) vec.Vec3Float {
	ab := b.Sub(a)
	lenSq := ab.Dot(ab)
	if lenSq == 0 {
		return a
	}

	t := p.Sub(a).Dot(ab) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return a.Add(ab.Mul(t))
}

// DistanceToPoint возвращает расстояние от оси капсулы до точки
func (c Capsule) DistanceToPoint(p vec.Vec3Float) float64 {
	return ClosestPointOnSegment(c.A, c.B, p).DistanceTo(p)
}

// OverlapsSphere проверяет пересечение капсулы со сферой (касание считается пересечением)
func (c Capsule) OverlapsSphere(s SphereCollider) bool {
	return c.DistanceToPoint(s.Center) <= c.Radius+s.Radius
}

// Bounds возвращает горизонтальные границы капсулы (minX, minZ, maxX, maxZ)
func (c Capsule) Bounds() (minX, minZ, maxX, maxZ float64) {
	minX, maxX = c.A.X, c.B.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minZ, maxZ = c.A.Z, c.B.Z
	if minZ > maxZ {
		minZ, maxZ = maxZ, minZ
	}
	return minX - c.Radius, minZ - c.Radius, maxX + c.Radius, maxZ + c.Radius
}
