package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/branch-ledger/internal/application/inventory"
	"github.com/jhoicas/branch-ledger/internal/application/usecase"
	"github.com/jhoicas/branch-ledger/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	BranchUC       *usecase.BranchUseCase
	ProductUC      *usecase.ProductUseCase
	RecordMovement *inventory.RecordMovementUseCase
	Reverse        *inventory.ReverseMovementUseCase
	Transfer       *inventory.TransferUseCase
	Snapshots      *inventory.SnapshotService
	Queries        *inventory.LedgerQueries
	JWTSecret      string
}

// Router registra las rutas de la API. Todas requieren Bearer Token.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))
	adminOnly := RequireRole(jwt.RoleAdmin)
	writers := RequireRole(jwt.RoleAdmin, jwt.RoleOperator)

	// Branches
	branches := api.Group("/branches")
	branchHandler := NewBranchHandler(deps.BranchUC)
	branches.Post("/", adminOnly, branchHandler.Create)
	branches.Get("/", branchHandler.List)
	branches.Get("/:code", branchHandler.GetByCode)

	// Products
	products := api.Group("/products")
	productHandler := NewProductHandler(deps.ProductUC)
	products.Post("/", adminOnly, productHandler.Create)
	products.Get("/", productHandler.List)
	products.Get("/:id", productHandler.GetByID)

	// Kardex
	ledger := api.Group("/ledger")
	h := NewLedgerHandler(deps.RecordMovement, deps.Reverse, deps.Transfer, deps.Snapshots, deps.Queries)
	ledger.Post("/movements", writers, h.RecordMovement)
	ledger.Get("/movements/:id", h.GetMovement)
	ledger.Post("/movements/:id/reversal", adminOnly, h.Reverse)
	ledger.Post("/transfers", writers, h.Transfer)
	ledger.Post("/rebuild", adminOnly, h.RebuildAll)

	branch := ledger.Group("/branches/:branch", RequireBranchAccess("branch"))
	branch.Get("/movements", h.ListMovements)
	branch.Get("/export.xlsx", h.ExportXLSX)
	branch.Get("/products/:product/snapshot", h.GetSnapshot)
	branch.Get("/products/:product/batches", h.ListBatches)
	branch.Get("/products/:product/batches/:batch/audit", h.VerifyBatch)
	branch.Post("/products/:product/rebuild", adminOnly, h.Rebuild)
}
