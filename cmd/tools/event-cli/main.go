package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/annel0/rts-aggro/internal/auth"
	"github.com/annel0/rts-aggro/internal/eventbus"
	"github.com/annel0/rts-aggro/internal/world"
	"github.com/nats-io/nats.go"
)

const (
	defaultNatsURL = nats.DefaultURL
	defaultStream  = "AGGRO_EVENTS"
)

// eventTypes описания событий для команды types
var eventTypes = []struct {
	Type        string
	Description string
}{
	{eventbus.TypeTargetAcquired, "юнит захватил цель (payload: TargetChange)"},
	{eventbus.TypeTargetLost, "юнит потерял цель (payload: TargetChange)"},
	{eventbus.TypeUnitSpawned, "юнит появился в мире (payload: UnitInfo)"},
	{eventbus.TypeUnitDied, "здоровье юнита упало до нуля (payload: UnitInfo)"},
	{eventbus.TypeUnitRemoved, "юнит удалён из мира (payload: UnitInfo)"},
}

func main() {
	var (
		natsURL   = flag.String("nats", defaultNatsURL, "NATS server URL")
		stream    = flag.String("stream", defaultStream, "JetStream stream name")
		command   = flag.String("cmd", "tail", "Command: tail, types, token, secret")
		typesFlag = flag.String("types", "", "Event types filter (comma-separated)")
		sources   = flag.String("sources", "", "Event sources filter (comma-separated)")
		limit     = flag.Int("limit", 100, "Maximum number of events")
		follow    = flag.Bool("follow", false, "Follow new events (like tail -f)")
		compress  = flag.Bool("compress", false, "Frames are zstd-compressed")
		secret    = flag.String("secret", os.Getenv("AGGRO_ADMIN_SECRET"), "Base64 admin secret for token")
		operator  = flag.String("operator", "cli", "Operator name for token")
		admin     = flag.Bool("admin", true, "Issue admin token")
		ttl       = flag.Duration("ttl", time.Hour, "Token lifetime")
		issuer    = flag.String("issuer", "rts-aggro", "Token issuer (must match telemetry.service_name)")
	)
	flag.Parse()

	switch *command {
	case "tail":
		if err := tailEvents(&TailOptions{
			URL:     *natsURL,
			Stream:  *stream,
			Filter:  eventbus.Filter{Types: parseStringList(*typesFlag), Sources: parseStringList(*sources)},
			Limit:   *limit,
			Follow:  *follow,
			Codec:   eventbus.NewCodec(*compress),
			Timeout: 5 * time.Second,
		}); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "types":
		showTypes()

	case "token":
		iss, err := auth.NewIssuer(*secret, *issuer)
		if err != nil {
			log.Fatalf("❌ Token failed: %v", err)
		}
		token, err := iss.Generate(*operator, *admin, *ttl)
		if err != nil {
			log.Fatalf("❌ Token failed: %v", err)
		}
		fmt.Println(token)

	case "secret":
		s, err := auth.GenerateSecureSecret()
		if err != nil {
			log.Fatalf("❌ Secret failed: %v", err)
		}
		fmt.Println(s)

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, types, token, secret")
		os.Exit(1)
	}
}

type TailOptions struct {
	URL     string
	Stream  string
	Filter  eventbus.Filter
	Limit   int
	Follow  bool
	Codec   *eventbus.Codec
	Timeout time.Duration // Без follow: выход, если событий нет так долго
}

// tailEvents читает события из JetStream и печатает их
func tailEvents(opts *TailOptions) error {
	fmt.Printf("🎬 Tailing events from %s/%s (limit: %d, follow: %v)\n", opts.URL, opts.Stream, opts.Limit, opts.Follow)

	bus, err := eventbus.NewJetStreamBus(opts.URL, opts.Stream, 0, opts.Codec)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var count atomic.Int64
	received := make(chan struct{}, 1)

	sub, err := bus.Subscribe(ctx, opts.Filter, func(_ context.Context, ev *eventbus.Envelope) {
		n := count.Add(1)
		if !opts.Follow && n > int64(opts.Limit) {
			return
		}
		fmt.Println(formatEvent(ev))
		select {
		case received <- struct{}{}:
		default:
		}
		if !opts.Follow && n == int64(opts.Limit) {
			stop()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	if opts.Follow {
		<-ctx.Done()
	} else {
		idle := time.NewTimer(opts.Timeout)
		defer idle.Stop()
	wait:
		for {
			select {
			case <-ctx.Done():
				break wait
			case <-received:
				idle.Reset(opts.Timeout)
			case <-idle.C:
				break wait
			}
		}
	}

	total := count.Load()
	if !opts.Follow && total > int64(opts.Limit) {
		total = int64(opts.Limit)
	}
	fmt.Printf("\n📊 Total events: %d\n", total)
	return nil
}

// showTypes выводит известные типы событий
func showTypes() {
	fmt.Println("📋 Available event types")
	for _, t := range eventTypes {
		fmt.Printf("Type: %s\n", t.Type)
		fmt.Printf("  Subject: %s\n", eventbus.Subject(t.Type))
		fmt.Printf("  Description: %s\n", t.Description)
	}
}

// formatEvent выводит событие в читаемом формате
func formatEvent(ev *eventbus.Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s [%s] %s",
		ev.Timestamp.Format("15:04:05.000"),
		ev.Source,
		ev.EventType,
		ev.ID)
	if ev.CorrelationID != "" {
		fmt.Fprintf(&b, " tick=%s", ev.CorrelationID)
	}

	// Добавляем детали в зависимости от типа события
	switch ev.EventType {
	case eventbus.TypeTargetAcquired, eventbus.TypeTargetLost:
		var change world.TargetChange
		if err := ev.Decode(&change); err != nil {
			fmt.Fprintf(&b, "\n  ⚠️ payload: %v", err)
			break
		}
		fmt.Fprintf(&b, "\n  Unit: %d (%s) %d → %d", change.UnitID, change.Owner, change.PreviousID, change.CurrentID)
		if change.Invalidated {
			b.WriteString(" [цель выбыла]")
		}
	case eventbus.TypeUnitSpawned, eventbus.TypeUnitDied, eventbus.TypeUnitRemoved:
		var unit world.UnitInfo
		if err := ev.Decode(&unit); err != nil {
			fmt.Fprintf(&b, "\n  ⚠️ payload: %v", err)
			break
		}
		fmt.Fprintf(&b, "\n  Unit: %d %s (%s) HP: %.1f at (%.1f, %.1f, %.1f)",
			unit.ID, unit.Definition, unit.Owner, unit.HP,
			unit.Position.X, unit.Position.Y, unit.Position.Z)
	}
	return b.String()
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
