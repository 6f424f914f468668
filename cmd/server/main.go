package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/rts-aggro/internal/api"
	"github.com/annel0/rts-aggro/internal/app"
	"github.com/annel0/rts-aggro/internal/auth"
	"github.com/annel0/rts-aggro/internal/config"
	"github.com/annel0/rts-aggro/internal/eventbus"
	"github.com/annel0/rts-aggro/internal/logging"
	"github.com/annel0/rts-aggro/internal/observability"
	"github.com/annel0/rts-aggro/internal/storage"
	"github.com/annel0/rts-aggro/internal/world"
	"github.com/annel0/rts-aggro/internal/world/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или ENV AGGRO_CONFIG)")
	flag.Parse()

	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🎯 Запуск сервиса выбора целей (aggro)...")

	// === КОНФИГУРАЦИЯ ===
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if cfg == nil {
		logging.Info("⚙️ Конфигурация не задана, используются значения по умолчанию")
		cfg = config.Default()
	}
	if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
		logging.DefaultLogger().SetLevel(level)
	} else {
		logging.Warn("⚠️ %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(ctx context.Context, cfg *config.Config) error {
	// === ТЕЛЕМЕТРИЯ ===
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, observability.Options{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("телеметрия: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logging.Warn("⚠️ Ошибка остановки телеметрии: %v", err)
			}
		}()
	}

	// === ШИНА СОБЫТИЙ ===
	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	if _, err := eventbus.StartLoggingListener(bus, logging.GetComponentLogger("events")); err != nil {
		return fmt.Errorf("логирующий подписчик: %w", err)
	}

	exporter, err := eventbus.NewMetricsExporter(bus, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("метрики шины: %w", err)
	}
	exporter.Start()
	defer exporter.Stop()

	// === ХРАНИЛИЩЕ СНИМКОВ ===
	repo, err := app.OpenTargetRepo(ctx, cfg)
	if err != nil {
		return fmt.Errorf("хранилище снимков: %w", err)
	}
	defer repo.Close()

	// === МИР ===
	w, err := world.New(world.Config{
		CellSize:           cfg.Simulation.CellSize,
		DirectionThreshold: cfg.Simulation.DirectionThreshold,
		CapsuleHalfHeight:  cfg.Simulation.CapsuleHalfHeight,
		Workers:            cfg.Simulation.Workers,
		Logger:             logging.GetAggroLogger(),
	})
	if err != nil {
		return fmt.Errorf("мир: %w", err)
	}
	defer w.Close()

	metricsObserver, err := app.NewMetricsObserver(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("метрики мира: %w", err)
	}
	w.AddObserver(metricsObserver)
	w.AddObserver(eventbus.NewWorldPublisher(bus, cfg.Telemetry.ServiceName, logging.GetComponentLogger("events")))
	w.AddObserver(storage.NewSnapshotObserver(repo, logging.GetComponentLogger("storage")))

	if cfg.Simulation.Catalog != "" {
		catalog, err := entity.LoadCatalog(cfg.Simulation.Catalog)
		if err != nil {
			return fmt.Errorf("каталог юнитов: %w", err)
		}
		w.SetCatalog(catalog)
		logging.Info("📚 Загружено описаний юнитов: %d", catalog.Len())
	}

	if cfg.Simulation.Scenario != "" {
		scenario, err := app.LoadScenario(cfg.Simulation.Scenario)
		if err != nil {
			return fmt.Errorf("сценарий: %w", err)
		}
		spawned, err := scenario.Apply(ctx, w)
		if err != nil {
			return err
		}
		logging.Info("🗺️ Сценарий %q: расставлено юнитов %d", scenario.Name, len(spawned))
	}

	// === СИМУЛЯЦИЯ ===
	sim := app.NewSimulation(w, cfg.Simulation.TickInterval(), logging.GetSimLogger())
	go sim.Run(ctx)
	defer sim.Stop()

	// === REST API ===
	var issuer *auth.Issuer
	if secret := cfg.Server.GetAdminSecret(); secret != "" {
		issuer, err = auth.NewIssuer(secret, cfg.Telemetry.ServiceName)
		if err != nil {
			return fmt.Errorf("секрет администратора: %w", err)
		}
	}

	restServer, err := api.NewRestServer(api.Config{
		Port:   fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		World:  w,
		Issuer: issuer,
		Stats:  func() interface{} { return sim.Stats() },
		Logger: logging.GetAPILogger(),
	})
	if err != nil {
		return err
	}

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() { errCh <- restServer.Start() }()
	go func() {
		logging.Info("📊 Prometheus метрики: http://localhost%s/metrics", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost:%d", cfg.Server.GetRESTPort())
	logging.Info("   ❤️  Health check: http://localhost:%d/health", cfg.Server.GetRESTPort())

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, остановка...")
	case runErr = <-errCh:
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := restServer.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки сервера метрик: %v", err)
	}
	return runErr
}

// openBus выбирает JetStream, если задан URL, иначе шину в памяти
func openBus(cfg *config.Config) (eventbus.EventBus, error) {
	if cfg.EventBus.URL == "" {
		logging.Info("📨 Шина событий в памяти (буфер %d)", cfg.EventBus.Buffer)
		return eventbus.NewMemoryBus(cfg.EventBus.Buffer), nil
	}

	bus, err := eventbus.NewJetStreamBus(
		cfg.EventBus.URL,
		cfg.EventBus.Stream,
		time.Duration(cfg.EventBus.Retention)*time.Hour,
		eventbus.NewCodec(cfg.EventBus.Compress),
	)
	if err != nil {
		return nil, fmt.Errorf("JetStream %s: %w", cfg.EventBus.URL, err)
	}
	logging.Info("📨 Шина событий JetStream: %s (stream %s)", cfg.EventBus.URL, cfg.EventBus.Stream)
	return bus, nil
}
