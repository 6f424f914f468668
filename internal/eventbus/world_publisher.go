package eventbus

import (
	"context"
	"strconv"

	"github.com/annel0/rts-aggro/internal/logging"
	"github.com/annel0/rts-aggro/internal/world"
)

// Типы событий мира
const (
	TypeTargetAcquired = "aggro.target_acquired"
	TypeTargetLost     = "aggro.target_lost"
	TypeUnitSpawned    = "unit.spawned"
	TypeUnitDied       = "unit.died"
	TypeUnitRemoved    = "unit.removed"
)

// WorldPublisher публикует события мира в шину.
// Смена цели за тик превращается в target_lost и/или target_acquired.
type WorldPublisher struct {
	world.NopObserver

	bus    EventBus
	source string
	logger *logging.Logger
}

// NewWorldPublisher создаёт наблюдателя мира, пишущего в bus
func NewWorldPublisher(bus EventBus, source string, logger *logging.Logger) *WorldPublisher {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &WorldPublisher{bus: bus, source: source, logger: logger}
}

func (p *WorldPublisher) UnitSpawned(ctx context.Context, u world.UnitInfo) {
	p.publish(ctx, TypeUnitSpawned, 3, "", u)
}

func (p *WorldPublisher) UnitDied(ctx context.Context, u world.UnitInfo) {
	p.publish(ctx, TypeUnitDied, 7, "", u)
}

func (p *WorldPublisher) UnitRemoved(ctx context.Context, u world.UnitInfo) {
	p.publish(ctx, TypeUnitRemoved, 3, "", u)
}

func (p *WorldPublisher) TickCompleted(ctx context.Context, r world.TickReport) {
	tick := strconv.FormatUint(r.Tick, 10)
	for _, change := range r.Changes {
		if change.Lost() {
			p.publish(ctx, TypeTargetLost, 5, tick, change)
		}
		if change.Acquired() {
			p.publish(ctx, TypeTargetAcquired, 5, tick, change)
		}
	}
}

func (p *WorldPublisher) publish(ctx context.Context, eventType string, priority int, correlation string, payload interface{}) {
	ev, err := NewEnvelope(p.source, eventType, priority, payload)
	if err != nil {
		p.logger.Warn("Не удалось сериализовать событие %s: %v", eventType, err)
		return
	}
	ev.CorrelationID = correlation

	if err := p.bus.Publish(ctx, ev); err != nil {
		p.logger.Warn("Не удалось опубликовать событие %s: %v", eventType, err)
	}
}
