package aggro

import (
	"math"

	"github.com/annel0/rts-aggro/internal/vec"
	"github.com/annel0/rts-aggro/internal/world/entity"
)

// IsInSights проверяет, можно ли стрелять по цели.
// Ненаправленному оружию целиться не нужно, поэтому всегда true, даже для nil.
func (c *Controller) IsInSights(target *entity.Entity, directional bool) bool {
	if !directional {
		return true
	}
	return c.IsInSightsDirectional(target)
}

// IsInSightsDirectional проверяет, попадает ли цель в конус обзора юнита
func (c *Controller) IsInSightsDirectional(target *entity.Entity) bool {
	if target == nil {
		return false
	}
	return c.IsPositionInSights(target.Position)
}

// IsPositionInSights сравнивает направление взгляда с горизонтальным пеленгом на точку.
// Берётся модуль скалярного произведения, поэтому цель строго позади тоже считается "в прицеле".
func (c *Controller) IsPositionInSights(position vec.Vec3Float) bool {
	if c.owner == nil {
		return false
	}

	ourDirection := c.owner.Forward.Flatten().Normalized()
	targetDirection := position.WithY(c.owner.Position.Y).Sub(c.owner.Position).Normalized()

	dot := ourDirection.Dot(targetDirection)
	return math.Abs(dot) > 1-c.opts.DirectionThreshold
}
