// ledger-rebuild recalcula los snapshots de saldo reproduciendo el kardex.
//
// Uso:
//
//	go run ./cmd/ledger-rebuild                       # todos los pares (sucursal, producto)
//	go run ./cmd/ledger-rebuild -branch SUC1 -product <id>
//	go run ./cmd/ledger-rebuild -concurrency 8
//
// Usa la misma configuración que la API (APP_STORE, DB_*, REDIS_*).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jhoicas/branch-ledger/internal/application/inventory"
	"github.com/jhoicas/branch-ledger/internal/infrastructure/store"
	"github.com/jhoicas/branch-ledger/pkg/config"
	"github.com/jhoicas/branch-ledger/pkg/logger"
)

func main() {
	branch := flag.String("branch", "", "código de sucursal (requiere -product)")
	product := flag.String("product", "", "ID de producto (requiere -branch)")
	concurrency := flag.Int("concurrency", 4, "reconstrucciones en paralelo")
	flag.Parse()

	if (*branch == "") != (*product == "") {
		fmt.Fprintln(os.Stderr, "-branch y -product van juntos")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargar configuración: %v\n", err)
		os.Exit(1)
	}
	if cfg.App.Store == "memory" {
		fmt.Fprintln(os.Stderr, "APP_STORE=memory no tiene datos que reconstruir")
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Service: "ledger-rebuild", Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, cfg, log.Component("store"))
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar persistencia")
	}
	defer backend.Close()

	svc := inventory.NewSnapshotService(backend.TxRunner, backend.Movements, backend.Snapshots, backend.Locker, log.Component("snapshots"))

	if *branch != "" {
		snap, err := svc.Rebuild(ctx, *branch, *product)
		if err != nil {
			log.Error().Err(err).Str("branch", *branch).Str("product", *product).Msg("rebuild falló")
			os.Exit(1)
		}
		log.Info().
			Str("branch", snap.BranchCode).
			Str("product", snap.ProductID).
			Str("on_hand", snap.OnHand.String()).
			Msg("snapshot reconstruido")
		return
	}

	n, err := svc.RebuildAll(ctx, *concurrency)
	if err != nil {
		log.Error().Err(err).Int("rebuilt", n).Msg("rebuild incompleto")
		os.Exit(1)
	}
	log.Info().Int("rebuilt", n).Msg("snapshots reconstruidos")
}
