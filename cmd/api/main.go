package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jhoicas/branch-ledger/internal/application/inventory"
	"github.com/jhoicas/branch-ledger/internal/application/usecase"
	dominv "github.com/jhoicas/branch-ledger/internal/domain/inventory"
	"github.com/jhoicas/branch-ledger/internal/infrastructure/pubsub"
	ledgerredis "github.com/jhoicas/branch-ledger/internal/infrastructure/redis"
	"github.com/jhoicas/branch-ledger/internal/infrastructure/store"
	httpRouter "github.com/jhoicas/branch-ledger/internal/interfaces/http"
	"github.com/jhoicas/branch-ledger/pkg/config"
	"github.com/jhoicas/branch-ledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("store", cfg.App.Store).
		Str("strategy", cfg.Ledger.AllocationStrategy).
		Msg("iniciando aplicación")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT_SECRET es requerido")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	backend, err := store.Open(ctx, cfg, log.Component("store"))
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar persistencia")
	}
	defer backend.Close()

	strategy, err := dominv.NewStrategy(cfg.Ledger.AllocationStrategy)
	if err != nil {
		log.Fatal().Err(err).Msg("estrategia de asignación")
	}
	allocator := inventory.NewBatchAllocator(strategy, inventory.AllocatorConfig{
		CostFallbackToPrice: cfg.Ledger.CostFallbackToPrice,
		MaxConsumeRetries:   cfg.Ledger.MaxConsumeRetries,
	}, log.Component("allocator"))

	// Eventos: Redis Pub/Sub si está configurado; si no, quedan en el log.
	var publisher inventory.EventPublisher = inventory.LogPublisher{Log: log.Component("events")}
	if backend.Redis != nil {
		publisher = ledgerredis.NewPublisher(backend.Redis, cfg.Redis.EventsChannel)
	}
	dispatcher := inventory.NewDispatcher(publisher, cfg.Ledger.EventBuffer, cfg.Ledger.EventWorkers, log.Component("dispatcher"))
	dispatcher.Start(ctx)

	effects := inventory.SideEffectsConfig{
		Events:         dispatcher,
		VoucherReasons: cfg.Ledger.VoucherReasons,
		VoucherTimeout: cfg.Ledger.VoucherTimeout,
	}
	if cfg.PubSub.Enabled() {
		voucher, err := pubsub.NewVoucherTrigger(ctx, cfg.PubSub)
		if err != nil {
			log.Fatal().Err(err).Msg("cliente Pub/Sub de comprobantes")
		}
		defer voucher.Close()
		effects.Voucher = voucher
	} else {
		log.Warn().Msg("PUBSUB no configurado: las salidas no generan comprobante contable")
	}

	ledgerLog := log.Component("ledger")
	recordUC := inventory.NewRecordMovementUseCase(backend.TxRunner, backend.Movements, backend.Branches, backend.Products, allocator, backend.Sequencer, effects, ledgerLog)
	reverseUC := inventory.NewReverseMovementUseCase(backend.TxRunner, backend.Movements, backend.Sequencer, effects, ledgerLog)
	transferUC := inventory.NewTransferUseCase(backend.TxRunner, backend.Branches, backend.Products, allocator, backend.Sequencer, effects, ledgerLog)
	snapshotSvc := inventory.NewSnapshotService(backend.TxRunner, backend.Movements, backend.Snapshots, backend.Locker, log.Component("snapshots"))
	queries := inventory.NewLedgerQueries(backend.Movements, backend.Batches)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Branch Ledger API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":         "ok",
			"service":        cfg.App.Name,
			"store":          cfg.App.Store,
			"dropped_events": dispatcher.Dropped(),
		})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		BranchUC:       usecase.NewBranchUseCase(backend.Branches),
		ProductUC:      usecase.NewProductUseCase(backend.Products),
		RecordMovement: recordUC,
		Reverse:        reverseUC,
		Transfer:       transferUC,
		Snapshots:      snapshotSvc,
		Queries:        queries,
		JWTSecret:      cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	// Cancelar el contexto hace que el dispatcher drene lo pendiente antes de salir.
	stop()
	dispatcher.Wait()
	log.Info().Int64("dropped_events", dispatcher.Dropped()).Msg("aplicación detenida")
}
