package aggro

import (
	"github.com/annel0/rts-aggro/internal/physics"
	"github.com/annel0/rts-aggro/internal/world/entity"
)

// GetEnemiesInRange возвращает все сущности указанной фракции в радиусе.
// Здоровье не проверяется: отбор и урон остаются на вызывающей стороне.
func (c *Controller) GetEnemiesInRange(opponent entity.Faction, radius float64) []*entity.Entity {
	if c.owner == nil {
		return nil
	}

	var entities []*entity.Entity
	c.overlap(radius, physics.MaskOf(physics.LayerEntity), func(e *entity.Entity) {
		if e.Owner == opponent {
			entities = append(entities, e)
		}
	})
	return entities
}
