package vec

import "math"

// Vec3Float представляет трехмерный вектор с плавающими координатами.
// Ось Y вертикальна (высота), плоскость земли задаётся осями X и Z.
type Vec3Float struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Up единичный вектор вверх
var Up = Vec3Float{X: 0, Y: 1, Z: 0}

// Forward направление "вперёд" по умолчанию (ось +Z)
var Forward = Vec3Float{X: 0, Y: 0, Z: 1}

// Add складывает два вектора
func (v Vec3Float) Add(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub вычитает вектор
func (v Vec3Float) Sub(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Mul умножает вектор на скаляр
func (v Vec3Float) Mul(scalar float64) Vec3Float {
	return Vec3Float{X: v.X * scalar, Y: v.Y * scalar, Z: v.Z * scalar}
}

// Dot возвращает скалярное произведение
func (v Vec3Float) Dot(other Vec3Float) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Length возвращает длину вектора
func (v Vec3Float) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalized возвращает нормализованный вектор.
// Нулевой вектор остаётся нулевым.
func (v Vec3Float) Normalized() Vec3Float {
	length := v.Length()
	if length == 0 {
		return Vec3Float{}
	}
	return Vec3Float{X: v.X / length, Y: v.Y / length, Z: v.Z / length}
}

// DistanceTo вычисляет полное 3D расстояние до другой точки
func (v Vec3Float) DistanceTo(other Vec3Float) float64 {
	return v.Sub(other).Length()
}

// WithY возвращает копию вектора с заменённой высотой
func (v Vec3Float) WithY(y float64) Vec3Float {
	v.Y = y
	return v
}

// Flatten обнуляет вертикальную составляющую
func (v Vec3Float) Flatten() Vec3Float {
	return v.WithY(0)
}

// XZ проецирует вектор на плоскость земли
func (v Vec3Float) XZ() Vec2Float {
	return Vec2Float{X: v.X, Y: v.Z}
}

// HorizontalDistanceTo вычисляет расстояние по плоскости земли, высота игнорируется
func (v Vec3Float) HorizontalDistanceTo(other Vec3Float) float64 {
	return v.XZ().DistanceTo(other.XZ())
}
