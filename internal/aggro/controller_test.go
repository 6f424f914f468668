package aggro

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/annel0/rts-aggro/internal/logging"
	"github.com/annel0/rts-aggro/internal/physics"
	"github.com/annel0/rts-aggro/internal/vec"
	"github.com/annel0/rts-aggro/internal/world/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSpace простой физический мир для тестов: перебор всех коллайдеров
type fakeSpace struct {
	colliders map[physics.Handle]physics.SphereCollider
	entities  map[physics.Handle]*entity.Entity
	next      physics.Handle
	queries   int
}

func newFakeSpace() *fakeSpace {
	return &fakeSpace{
		colliders: make(map[physics.Handle]physics.SphereCollider),
		entities:  make(map[physics.Handle]*entity.Entity),
		next:      1,
	}
}

func (s *fakeSpace) add(e *entity.Entity) *entity.Entity {
	h := s.next
	s.next++
	s.colliders[h] = e.Collider()
	s.entities[h] = e
	return e
}

func (s *fakeSpace) addObstacle(pos vec.Vec3Float) {
	h := s.next
	s.next++
	s.colliders[h] = physics.NewSphereCollider(pos, 1, physics.LayerTerrain)
}

func (s *fakeSpace) OverlapCapsule(c physics.Capsule, mask physics.LayerMask) []physics.Handle {
	s.queries++
	var out []physics.Handle
	for h, col := range s.colliders {
		if mask.Has(col.Layer) && c.OverlapsSphere(col) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *fakeSpace) Resolve(h physics.Handle) (*entity.Entity, bool) {
	e, ok := s.entities[h]
	return e, ok
}

var (
	groundOnly = &entity.Definition{Name: "rifleman", MaxHP: 50, AggroRange: 10, AttacksGroundUnits: true}
	airOnly    = &entity.Definition{Name: "flak", MaxHP: 80, AggroRange: 10, AttacksAirUnits: true}
	allRound   = &entity.Definition{Name: "marine", MaxHP: 60, AggroRange: 10, AttacksGroundUnits: true, AttacksAirUnits: true}
	passive    = &entity.Definition{Name: "worker", MaxHP: 20, AggroRange: 10}
	groundUnit = &entity.Definition{Name: "grunt", MaxHP: 5, AggroRange: 5, AttacksGroundUnits: true}
	airUnit    = &entity.Definition{Name: "drone", MaxHP: 5, AggroRange: 5, IsAirUnit: true}
	building   = &entity.Definition{Name: "barracks", MaxHP: 10, AggroRange: 1, IsBuilding: true}
	airBase    = &entity.Definition{Name: "skyport", MaxHP: 10, AggroRange: 1, IsBuilding: true, IsAirUnit: true}
)

func unit(id uint64, def *entity.Definition, owner entity.Faction, x, y, z float64) *entity.Entity {
	return entity.NewEntity(id, def, owner, vec.Vec3Float{X: x, Y: y, Z: z})
}

func spawnedController(t *testing.T, space *fakeSpace, owner *entity.Entity) *Controller {
	t.Helper()
	c := New(owner, space, space, Options{})
	owner.Spawn()
	require.True(t, c.Active())
	return c
}

func TestController_InactiveUntilSpawned(t *testing.T) {
	space := newFakeSpace()
	owner := space.add(unit(1, allRound, "red", 0, 0, 0))
	space.add(unit(2, groundUnit, "blue", 3, 0, 0))

	c := New(owner, space, space, Options{})
	assert.Equal(t, StateInactive, c.State())

	res := c.Update()
	assert.Nil(t, c.Target(), "до появления поиск не выполняется")
	assert.False(t, res.Queried)
	assert.Zero(t, space.queries)

	owner.Spawn()
	c.Update()
	require.NotNil(t, c.Target())
	assert.Equal(t, uint64(2), c.Target().ID)
	assert.Equal(t, StateEngaged, c.State())
}

func TestController_ExplicitActivationIsMonotonic(t *testing.T) {
	space := newFakeSpace()
	owner := space.add(unit(1, allRound, "red", 0, 0, 0))

	c := New(owner, space, space, Options{})
	c.OnSpawned()
	c.OnSpawned()
	assert.True(t, c.Active())

	owner.Spawn()
	assert.True(t, c.Active())
	assert.Equal(t, StateIdle, c.State())
}

func TestController_NilOwnerStaysInert(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriterLogger("aggro", &buf, logging.INFO)

	space := newFakeSpace()
	c := New(nil, space, space, Options{Logger: logger})
	c.OnSpawned()

	assert.False(t, c.Active())
	assert.Equal(t, StateInactive, c.State())
	assert.Nil(t, c.Update().Current)
	assert.Contains(t, buf.String(), "warn", "отсутствие сущности должно давать предупреждение")

	assert.True(t, c.IsInSights(nil, false))
	assert.False(t, c.IsInSights(unit(2, groundUnit, "blue", 0, 0, 1), true))
	assert.Nil(t, c.GetEnemiesInRange("blue", 100))
	assert.False(t, c.CanAttack(unit(2, building, "blue", 0, 0, 0)))
}

func TestController_Invalidation(t *testing.T) {
	space := newFakeSpace()
	owner := space.add(unit(1, allRound, "red", 0, 0, 0))
	enemy := space.add(unit(2, groundUnit, "blue", 3, 0, 0))

	c := spawnedController(t, space, owner)
	c.Update()
	require.Same(t, enemy, c.Target())

	enemy.HP = 0
	res := c.Update()
	assert.True(t, res.Invalidated)
	assert.True(t, res.Queried)
	assert.Nil(t, c.Target(), "мёртвая цель должна сбрасываться за один тик")
	assert.Equal(t, StateIdle, c.State())
	assert.True(t, res.Changed())

	enemy.HP = -5
	c.Update()
	assert.Nil(t, c.Target(), "мёртвые кандидаты не захватываются")
}

func TestController_ForgetRemovedTarget(t *testing.T) {
	space := newFakeSpace()
	owner := space.add(unit(1, allRound, "red", 0, 0, 0))
	enemy := space.add(unit(2, groundUnit, "blue", 3, 0, 0))
	other := space.add(unit(3, groundUnit, "blue", 5, 0, 0))

	c := spawnedController(t, space, owner)
	c.Update()
	require.Same(t, enemy, c.Target())

	assert.False(t, c.Forget(other), "чужая сущность не трогает цель")
	assert.False(t, c.Forget(nil))
	require.Same(t, enemy, c.Target())

	// Цель удалена из мира живой
	delete(space.entities, 2)
	delete(space.colliders, 2)
	require.True(t, c.Forget(enemy))
	assert.Nil(t, c.Target(), "удалённая цель сбрасывается сразу")
	assert.True(t, enemy.IsAlive())

	res := c.Update()
	assert.Same(t, enemy, res.Previous)
	assert.True(t, res.Invalidated)
	assert.True(t, res.Queried)
	assert.Same(t, other, c.Target(), "после удаления цели выбирается новая")
	assert.True(t, res.Changed())

	res = c.Update()
	assert.False(t, res.Invalidated)
	assert.False(t, res.Changed())
}

func TestController_KeepsLiveTarget(t *testing.T) {
	space := newFakeSpace()
	owner := space.add(unit(1, allRound, "red", 0, 0, 0))
	far := space.add(unit(2, groundUnit, "blue", 8, 0, 0))

	c := spawnedController(t, space, owner)
	c.Update()
	require.Same(t, far, c.Target())

	// Более близкий враг не перехватывает агрессию, пока текущая цель жива
	space.add(unit(3, groundUnit, "blue", 1, 0, 0))
	res := c.Update()
	assert.Same(t, far, c.Target())
	assert.False(t, res.Queried)
	assert.False(t, res.Changed())

	// Смена владельца цели между тиками допускается
	far.Owner = "red"
	c.Update()
	assert.Same(t, far, c.Target())
}

func TestController_AttackTypeFiltering(t *testing.T) {
	t.Run("Наземный атакующий игнорирует ближнюю авиацию", func(t *testing.T) {
		space := newFakeSpace()
		owner := space.add(unit(1, groundOnly, "red", 0, 0, 0))
		space.add(unit(2, airUnit, "blue", 1, 20, 0))
		ground := space.add(unit(3, groundUnit, "blue", 7, 0, 0))

		c := spawnedController(t, space, owner)
		c.Update()
		assert.Same(t, ground, c.Target())
	})

	t.Run("ПВО игнорирует ближнюю пехоту", func(t *testing.T) {
		space := newFakeSpace()
		owner := space.add(unit(1, airOnly, "red", 0, 0, 0))
		space.add(unit(2, groundUnit, "blue", 1, 0, 0))
		air := space.add(unit(3, airUnit, "blue", 7, 15, 0))

		c := spawnedController(t, space, owner)
		c.Update()
		assert.Same(t, air, c.Target())
	})

	t.Run("Наземный атакующий без наземных целей", func(t *testing.T) {
		space := newFakeSpace()
		owner := space.add(unit(1, groundOnly, "red", 0, 0, 0))
		space.add(unit(2, airUnit, "blue", 2, 10, 0))

		c := spawnedController(t, space, owner)
		res := c.Update()
		assert.Nil(t, c.Target())
		assert.Equal(t, 1, res.Candidates)
	})
}

func TestController_BuildingException(t *testing.T) {
	tests := []struct {
		name     string
		attacker *entity.Definition
		target   *entity.Definition
	}{
		{"Мирный юнит и здание", passive, building},
		{"ПВО и наземное здание", airOnly, building},
		{"Наземный и воздушное здание", groundOnly, airBase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			space := newFakeSpace()
			owner := space.add(unit(1, tt.attacker, "red", 0, 0, 0))
			target := space.add(unit(2, tt.target, "blue", 4, 0, 0))

			c := spawnedController(t, space, owner)
			assert.True(t, c.CanAttack(target))
			c.Update()
			assert.Same(t, target, c.Target())
		})
	}
}

func TestController_CanAttackMatrix(t *testing.T) {
	owner := unit(1, groundOnly, "red", 0, 0, 0)
	c := New(owner, nil, nil, Options{})

	assert.True(t, c.CanAttack(unit(2, groundUnit, "blue", 0, 0, 0)))
	assert.False(t, c.CanAttack(unit(3, airUnit, "blue", 0, 0, 0)))
	assert.True(t, c.CanAttack(unit(4, building, "blue", 0, 0, 0)))
	assert.False(t, c.CanAttack(nil))
	assert.False(t, c.CanAttack(&entity.Entity{ID: 5, HP: 1}), "сущность без описания не атакуется")
}

func TestController_OwnershipExclusion(t *testing.T) {
	space := newFakeSpace()
	owner := space.add(unit(1, allRound, "red", 0, 0, 0))
	space.add(unit(2, groundUnit, "red", 1, 0, 0))
	space.add(unit(3, building, "red", 2, 0, 0))

	c := spawnedController(t, space, owner)
	res := c.Update()
	assert.Nil(t, c.Target(), "свои и сам юнит не становятся целью")
	assert.Zero(t, res.Candidates)

	enemy := space.add(unit(4, groundUnit, "blue", 9, 0, 0))
	c.Update()
	assert.Same(t, enemy, c.Target())
}

func TestController_NearestSelection(t *testing.T) {
	space := newFakeSpace()
	owner := space.add(unit(1, allRound, "red", 0, 0, 0))
	space.add(unit(2, groundUnit, "blue", 9, 0, 0))
	nearest := space.add(unit(3, groundUnit, "blue", 0, 0, -2))
	space.add(unit(4, groundUnit, "green", 5, 0, 5))
	space.add(unit(5, airUnit, "blue", 3, 40, 0))

	c := spawnedController(t, space, owner)
	res := c.Update()
	assert.Same(t, nearest, c.Target())
	assert.Equal(t, 4, res.Candidates)
}

func TestController_TieGoesToFirstEncountered(t *testing.T) {
	space := newFakeSpace()
	owner := space.add(unit(1, allRound, "red", 0, 0, 0))
	first := space.add(unit(2, groundUnit, "blue", 3, 0, 0))
	space.add(unit(3, groundUnit, "blue", -3, 0, 0))

	c := spawnedController(t, space, owner)
	c.Update()
	assert.Same(t, first, c.Target())
}

func TestController_AltitudeIndependence(t *testing.T) {
	for _, altitude := range []float64{0, 25, 90, -40} {
		space := newFakeSpace()
		owner := space.add(unit(1, allRound, "red", 0, 0, 0))
		near := space.add(unit(2, airUnit, "blue", 0, altitude, 4))
		space.add(unit(3, groundUnit, "blue", 0, 0, 4.5))

		c := spawnedController(t, space, owner)
		c.Update()
		assert.Same(t, near, c.Target(), "высота %v не должна влиять на выбор", altitude)
		assert.True(t, c.IsInSights(near, true), "высота %v не должна влиять на прицел", altitude)
	}
}

func TestController_OutOfRange(t *testing.T) {
	space := newFakeSpace()
	owner := space.add(unit(1, allRound, "red", 0, 0, 0))
	space.add(unit(2, groundUnit, "blue", 20, 0, 0))

	c := spawnedController(t, space, owner)
	c.Update()
	assert.Nil(t, c.Target())
}

func TestController_SkipsNonEntityColliders(t *testing.T) {
	space := newFakeSpace()
	owner := space.add(unit(1, allRound, "red", 0, 0, 0))
	space.addObstacle(vec.Vec3Float{X: 1})
	enemy := space.add(unit(2, groundUnit, "blue", 5, 0, 0))

	c := spawnedController(t, space, owner)
	res := c.Update()
	assert.Same(t, enemy, c.Target())
	assert.Equal(t, 1, res.Candidates)
}

func TestController_ScenarioBuildingCloserThanInfantry(t *testing.T) {
	space := newFakeSpace()
	a := space.add(unit(1, allRound, "red", 0, 0, 0))
	b := space.add(unit(2, groundUnit, "blue", 6, 0, 0))
	b.HP = 5
	cBuilding := space.add(unit(3, building, "blue", 0, 0, 3))
	cBuilding.HP = 10

	ctrl := spawnedController(t, space, a)
	ctrl.Update()
	assert.Same(t, cBuilding, ctrl.Target())
}

func TestController_ScenarioGroundOnlyVsAir(t *testing.T) {
	space := newFakeSpace()
	d := space.add(unit(1, groundOnly, "red", 0, 0, 0))
	space.add(unit(2, airUnit, "blue", 4, 12, 0))

	ctrl := spawnedController(t, space, d)
	ctrl.Update()
	assert.Nil(t, ctrl.Target())
	assert.Equal(t, StateIdle, ctrl.State())
}

func TestController_NoSpatialIndex(t *testing.T) {
	owner := unit(1, allRound, "red", 0, 0, 0)
	c := New(owner, nil, nil, Options{})
	owner.Spawn()

	res := c.Update()
	assert.True(t, res.Queried)
	assert.Nil(t, c.Target())
	assert.Empty(t, c.GetEnemiesInRange("blue", 10))
}

func TestIsInSights_NonDirectional(t *testing.T) {
	space := newFakeSpace()
	owner := space.add(unit(1, allRound, "red", 0, 0, 0))
	c := spawnedController(t, space, owner)

	assert.True(t, c.IsInSights(nil, false))
	assert.True(t, c.IsInSights(unit(2, groundUnit, "blue", 10, 0, 0), false))
	assert.True(t, c.IsInSights(unit(3, groundUnit, "blue", 0, 0, -10), false))
}

func TestIsInSights_Directional(t *testing.T) {
	space := newFakeSpace()
	owner := space.add(unit(1, allRound, "red", 0, 0, 0))
	owner.Forward = vec.Forward
	c := spawnedController(t, space, owner)

	at := func(angleDeg float64) *entity.Entity {
		rad := angleDeg * math.Pi / 180
		return unit(9, groundUnit, "blue", 10*math.Sin(rad), 0, 10*math.Cos(rad))
	}

	tests := []struct {
		name   string
		target *entity.Entity
		want   bool
	}{
		{"Прямо по курсу", at(0), true},
		{"20 градусов", at(20), true},
		{"30 градусов", at(30), false},
		{"Сбоку", at(90), false},
		{"Прямо позади (модуль скалярного произведения)", at(180), true},
		{"Нет цели", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsInSights(tt.target, true))
		})
	}
}

func TestIsInSights_ThresholdAndForwardPitch(t *testing.T) {
	space := newFakeSpace()
	owner := space.add(unit(1, allRound, "red", 0, 0, 0))
	// Наклон взгляда не учитывается: используется горизонтальная проекция
	owner.Forward = vec.Vec3Float{X: 0, Y: 5, Z: 1}

	c := New(owner, space, space, Options{DirectionThreshold: 0.5})
	owner.Spawn()

	// cos(50°) ≈ 0.64 > 0.5
	rad := 50 * math.Pi / 180
	assert.True(t, c.IsPositionInSights(vec.Vec3Float{X: math.Sin(rad), Z: math.Cos(rad)}))
	// cos(70°) ≈ 0.34 < 0.5
	rad = 70 * math.Pi / 180
	assert.False(t, c.IsPositionInSights(vec.Vec3Float{X: math.Sin(rad), Z: math.Cos(rad)}))
	// Точка в той же горизонтальной позиции: пеленг нулевой
	assert.False(t, c.IsPositionInSights(vec.Vec3Float{Y: 30}))
}

func TestGetEnemiesInRange(t *testing.T) {
	space := newFakeSpace()
	owner := space.add(unit(1, allRound, "red", 0, 0, 0))
	blue1 := space.add(unit(2, groundUnit, "blue", 3, 0, 0))
	blueDead := space.add(unit(3, airUnit, "blue", 0, 30, 4))
	blueDead.HP = 0
	blueBuilding := space.add(unit(4, building, "blue", -2, 0, -2))
	space.add(unit(5, groundUnit, "blue", 30, 0, 0))
	space.add(unit(6, groundUnit, "green", 1, 0, 1))
	space.add(unit(7, groundUnit, "red", 2, 0, 0))
	space.addObstacle(vec.Vec3Float{X: 1, Z: 1})

	c := spawnedController(t, space, owner)

	got := c.GetEnemiesInRange("blue", 6)
	assert.ElementsMatch(t, []*entity.Entity{blue1, blueDead, blueBuilding}, got, "ровно фракция blue в радиусе, включая мёртвых")

	assert.Empty(t, c.GetEnemiesInRange("yellow", 50))

	self := c.GetEnemiesInRange("red", 3)
	assert.Len(t, self, 2, "запрос по своей фракции возвращает и самого юнита")

	assert.Nil(t, c.Target(), "площадной запрос не меняет цель")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "inactive", StateInactive.String())
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "engaged", StateEngaged.String())
	assert.Equal(t, "unknown", State(42).String())
}
