package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/annel0/rts-aggro/internal/auth"
	"github.com/annel0/rts-aggro/internal/logging"
	"github.com/annel0/rts-aggro/internal/middleware"
	"github.com/annel0/rts-aggro/internal/vec"
	"github.com/annel0/rts-aggro/internal/world"
	"github.com/annel0/rts-aggro/internal/world/entity"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// WorldService часть мира, которую отдаёт REST API
type WorldService interface {
	Units() []world.UnitInfo
	Unit(id uint64) (world.UnitInfo, error)
	Target(id uint64) (world.UnitInfo, bool, error)
	EnemiesInRange(id uint64, opponent entity.Faction, radius float64) ([]world.UnitInfo, error)
	InSights(id, targetID uint64, directional *bool) (bool, error)
	TickCount() uint64
	IndexStats() string

	SpawnByName(ctx context.Context, name string, owner entity.Faction, pos, forward vec.Vec3Float) (world.UnitInfo, error)
	ApplyDamage(ctx context.Context, id uint64, amount float64) (world.UnitInfo, error)
	Move(id uint64, pos, forward vec.Vec3Float) error
	SetOwner(id uint64, owner entity.Faction) error
	Despawn(ctx context.Context, id uint64) error
}

// RestServer представляет REST API сервер симуляции
type RestServer struct {
	router  *gin.Engine
	server  *http.Server
	world   WorldService
	issuer  *auth.Issuer
	stats   func() interface{}
	metrics *ServerMetrics
	logger  *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port     string                // порт для запуска сервера, например ":8088"
	World    WorldService          // мир симуляции
	Issuer   *auth.Issuer          // nil — админские маршруты не регистрируются
	Stats    func() interface{}    // статистика цикла симуляции для /api/server
	Registry prometheus.Registerer // nil — prometheus.DefaultRegisterer
	Gatherer prometheus.Gatherer   // nil — prometheus.DefaultGatherer
	Logger   *logging.Logger
}

// GenericResponse общий конверт ответов API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.World == nil {
		return nil, errors.New("api: world is required")
	}
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Logger == nil {
		config.Logger = logging.DefaultLogger()
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	loggerMw := middleware.NewRequestLogger(config.Logger)
	router.Use(loggerMw.Handler())

	router.Use(otelgin.Middleware("rest_api"))

	promMw, err := middleware.NewPrometheusMiddleware("rest_api", config.Registry)
	if err != nil {
		return nil, fmt.Errorf("api: prometheus middleware: %w", err)
	}
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Gatherer)

	router.Use(corsMiddleware())

	rs := &RestServer{
		router:  router,
		world:   config.World,
		issuer:  config.Issuer,
		stats:   config.Stats,
		metrics: NewServerMetrics(),
		logger:  config.Logger,
	}
	rs.server = &http.Server{
		Addr:              config.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	rs.setupRoutes()
	return rs, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	{
		api.GET("/server", rs.handleServerInfo)
		api.GET("/units", rs.handleListUnits)
		api.GET("/units/:id", rs.handleGetUnit)
		api.GET("/units/:id/target", rs.handleGetTarget)
		api.GET("/units/:id/enemies", rs.handleEnemiesInRange)
		api.GET("/units/:id/sights/:target", rs.handleInSights)
	}

	if rs.issuer == nil {
		rs.logger.Warn("⚠️ Секрет администратора не задан, админские маршруты отключены")
		return
	}

	// Административные эндпоинты (JWT + права администратора)
	admin := api.Group("/admin")
	admin.Use(rs.jwtMiddleware(), rs.adminMiddleware())
	{
		admin.POST("/units", rs.handleSpawnUnit)
		admin.DELETE("/units/:id", rs.handleDespawnUnit)
		admin.POST("/units/:id/damage", rs.handleDamageUnit)
		admin.PUT("/units/:id/position", rs.handleMoveUnit)
		admin.PUT("/units/:id/owner", rs.handleSetOwner)
	}
}

// Handler возвращает http.Handler сервера (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start запускает REST сервер. Блокирует до остановки.
func (rs *RestServer) Start() error {
	rs.logger.Info("🌐 REST API слушает %s", rs.server.Addr)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop останавливает REST сервер, дожидаясь текущих запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.server.Shutdown(ctx)
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
		"tick":   rs.world.TickCount(),
		"uptime": rs.metrics.GetUptime(),
	})
}

// handleServerInfo возвращает состояние процесса и цикла симуляции
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	data := gin.H{
		"process": rs.metrics.Snapshot(),
		"tick":    rs.world.TickCount(),
		"index":   rs.world.IndexStats(),
	}
	if rs.stats != nil {
		data["simulation"] = rs.stats()
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Информация о сервере получена",
		Data:    data,
	})
}

func (rs *RestServer) handleListUnits(c *gin.Context) {
	units := rs.world.Units()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список юнитов получен",
		Data: gin.H{
			"units": units,
			"total": len(units),
		},
	})
}

func (rs *RestServer) handleGetUnit(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	unit, err := rs.world.Unit(id)
	if err != nil {
		rs.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Юнит найден", Data: unit})
}

func (rs *RestServer) handleGetTarget(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	target, found, err := rs.world.Target(id)
	if err != nil {
		rs.respondError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Цели нет"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Цель найдена", Data: target})
}

// handleEnemiesInRange: GET /api/units/:id/enemies?faction=red&radius=10
func (rs *RestServer) handleEnemiesInRange(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	radius, err := strconv.ParseFloat(c.Query("radius"), 64)
	if err != nil || radius < 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Параметр radius должен быть неотрицательным конечным числом",
		})
		return
	}

	opponent, err := entity.ParseFaction(c.Query("faction"))
	if err != nil {
		rs.respondError(c, err)
		return
	}

	enemies, err := rs.world.EnemiesInRange(id, opponent, radius)
	if err != nil {
		rs.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Запрос по площади выполнен",
		Data: gin.H{
			"units": enemies,
			"total": len(enemies),
		},
	})
}

// handleInSights: GET /api/units/:id/sights/:target?directional=true
func (rs *RestServer) handleInSights(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	targetID, ok := parseID(c, "target")
	if !ok {
		return
	}

	var directional *bool
	if raw, present := c.GetQuery("directional"); present {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{
				Success: false,
				Message: "Параметр directional должен быть true или false",
			})
			return
		}
		directional = &value
	}

	inSights, err := rs.world.InSights(id, targetID, directional)
	if err != nil {
		rs.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Проверка прицела выполнена",
		Data:    gin.H{"in_sights": inSights},
	})
}

// SpawnRequest тело POST /api/admin/units
type SpawnRequest struct {
	Definition string        `json:"definition" binding:"required"`
	Owner      string        `json:"owner"`
	Position   vec.Vec3Float `json:"position"`
	Forward    vec.Vec3Float `json:"forward"`
}

func (rs *RestServer) handleSpawnUnit(c *gin.Context) {
	var req SpawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}

	owner, err := entity.ParseFaction(req.Owner)
	if err != nil {
		rs.respondError(c, err)
		return
	}

	unit, err := rs.world.SpawnByName(c.Request.Context(), req.Definition, owner, req.Position, req.Forward)
	if err != nil {
		rs.respondError(c, err)
		return
	}

	rs.logger.Info("🛠️ Оператор %s создал юнит %d (%s)", c.GetString(ctxOperator), unit.ID, unit.Definition)
	c.JSON(http.StatusCreated, GenericResponse{Success: true, Message: "Юнит создан", Data: unit})
}

func (rs *RestServer) handleDespawnUnit(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := rs.world.Despawn(c.Request.Context(), id); err != nil {
		rs.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Юнит удалён"})
}

// DamageRequest тело POST /api/admin/units/:id/damage. Лечение не поддерживается.
type DamageRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

func (rs *RestServer) handleDamageUnit(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req DamageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}

	unit, err := rs.world.ApplyDamage(c.Request.Context(), id, req.Amount)
	if err != nil {
		rs.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Урон нанесён", Data: unit})
}

// MoveRequest тело PUT /api/admin/units/:id/position
type MoveRequest struct {
	Position vec.Vec3Float `json:"position"`
	Forward  vec.Vec3Float `json:"forward"`
}

func (rs *RestServer) handleMoveUnit(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}

	if err := rs.world.Move(id, req.Position, req.Forward); err != nil {
		rs.respondError(c, err)
		return
	}
	rs.respondUnit(c, id, "Юнит перемещён")
}

// OwnerRequest тело PUT /api/admin/units/:id/owner
type OwnerRequest struct {
	Owner string `json:"owner"`
}

func (rs *RestServer) handleSetOwner(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req OwnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}

	owner, err := entity.ParseFaction(req.Owner)
	if err != nil {
		rs.respondError(c, err)
		return
	}

	if err := rs.world.SetOwner(id, owner); err != nil {
		rs.respondError(c, err)
		return
	}
	rs.respondUnit(c, id, "Владелец изменён")
}

func (rs *RestServer) respondUnit(c *gin.Context, id uint64, message string) {
	unit, err := rs.world.Unit(id)
	if err != nil {
		rs.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: message, Data: unit})
}

// respondError переводит ошибки мира в HTTP статусы
func (rs *RestServer) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, world.ErrEntityNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entity.ErrUnknownDefinition), errors.Is(err, entity.ErrInvalidDefinition),
		errors.Is(err, entity.ErrInvalidFaction), errors.Is(err, world.ErrInvalidDamage):
		status = http.StatusBadRequest
	default:
		rs.logger.Error("❌ Ошибка обработки %s %s: %v", c.Request.Method, c.FullPath(), err)
	}

	c.JSON(status, GenericResponse{Success: false, Message: err.Error()})
}

func parseID(c *gin.Context, param string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный ID: " + c.Param(param),
		})
		return 0, false
	}
	return id, true
}
