package app

import (
	"context"
	"fmt"
	"os"

	"github.com/annel0/rts-aggro/internal/vec"
	"github.com/annel0/rts-aggro/internal/world"
	"github.com/annel0/rts-aggro/internal/world/entity"
	"gopkg.in/yaml.v3"
)

// ScenarioUnit юнит начальной расстановки
type ScenarioUnit struct {
	Definition string         `yaml:"definition"`
	Owner      entity.Faction `yaml:"owner"`
	Position   vec.Vec3Float  `yaml:"position"`
	Forward    vec.Vec3Float  `yaml:"forward"`
	Count      int            `yaml:"count"`   // > 1 — ряд одинаковых юнитов
	Spacing    float64        `yaml:"spacing"` // Шаг ряда по оси X
}

// ScenarioObstacle препятствие рельефа
type ScenarioObstacle struct {
	Position vec.Vec3Float `yaml:"position"`
	Radius   float64       `yaml:"radius"`
}

// Scenario описывает начальное состояние мира
type Scenario struct {
	Name      string             `yaml:"name"`
	Obstacles []ScenarioObstacle `yaml:"obstacles"`
	Units     []ScenarioUnit     `yaml:"units"`
}

// ParseScenario разбирает сценарий из YAML
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	for i, u := range sc.Units {
		if u.Definition == "" {
			return nil, fmt.Errorf("scenario: unit #%d has no definition", i)
		}
		owner, err := entity.ParseFaction(string(u.Owner))
		if err != nil {
			return nil, fmt.Errorf("scenario: unit #%d: %w", i, err)
		}
		sc.Units[i].Owner = owner
		if u.Count < 0 {
			return nil, fmt.Errorf("scenario: unit #%d has negative count", i)
		}
	}
	for i, o := range sc.Obstacles {
		if o.Radius <= 0 {
			return nil, fmt.Errorf("scenario: obstacle #%d must have positive radius", i)
		}
	}
	return &sc, nil
}

// LoadScenario читает сценарий из файла
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

// Apply расставляет препятствия и юнитов. Возвращает созданных юнитов по порядку.
func (sc *Scenario) Apply(ctx context.Context, w *world.World) ([]world.UnitInfo, error) {
	for _, o := range sc.Obstacles {
		w.AddObstacle(o.Position, o.Radius)
	}

	var spawned []world.UnitInfo
	for i, u := range sc.Units {
		count := u.Count
		if count == 0 {
			count = 1
		}
		for n := 0; n < count; n++ {
			pos := u.Position.Add(vec.Vec3Float{X: float64(n) * u.Spacing})
			info, err := w.SpawnByName(ctx, u.Definition, u.Owner, pos, u.Forward)
			if err != nil {
				return spawned, fmt.Errorf("scenario unit #%d: %w", i, err)
			}
			spawned = append(spawned, info)
		}
	}
	return spawned, nil
}
