package http

import (
	"bytes"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/branch-ledger/internal/application/dto"
	"github.com/jhoicas/branch-ledger/internal/application/inventory"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
	"github.com/jhoicas/branch-ledger/internal/infrastructure/report"
)

// LedgerHandler maneja las peticiones HTTP del kardex por sucursal (protegido).
type LedgerHandler struct {
	record    *inventory.RecordMovementUseCase
	reverse   *inventory.ReverseMovementUseCase
	transfer  *inventory.TransferUseCase
	snapshots *inventory.SnapshotService
	queries   *inventory.LedgerQueries
}

// NewLedgerHandler construye el handler.
func NewLedgerHandler(
	record *inventory.RecordMovementUseCase,
	reverse *inventory.ReverseMovementUseCase,
	transfer *inventory.TransferUseCase,
	snapshots *inventory.SnapshotService,
	queries *inventory.LedgerQueries,
) *LedgerHandler {
	return &LedgerHandler{record: record, reverse: reverse, transfer: transfer, snapshots: snapshots, queries: queries}
}

// RecordMovement godoc
// @Summary      Registrar movimiento del kardex
// @Description  Entradas crean lotes; salidas consumen lotes en orden FIFO. Todo o nada.
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string                     false  "Clave de idempotencia (alternativa al campo del cuerpo)"
// @Param        body             body    dto.RecordMovementRequest  true   "branch_code, direction, reason, lines"
// @Success      201  {object}  dto.RecordMovementResponse
// @Success      200  {object}  dto.RecordMovementResponse  "reintento idempotente"
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/ledger/movements [post]
func (h *LedgerHandler) RecordMovement(c *fiber.Ctx) error {
	var in dto.RecordMovementRequest
	if ok, err := parseBody(c, &in); !ok {
		return err
	}
	if !canAccessBranch(c, in.BranchCode) {
		return forbiddenBranch(c, in.BranchCode)
	}
	if in.IdempotencyKey == "" {
		in.IdempotencyKey = c.Get("Idempotency-Key")
	}
	res, err := h.record.Record(c.UserContext(), in.ToInput(GetUserID(c)))
	if err != nil {
		return writeError(c, err)
	}
	status := fiber.StatusCreated
	if res.Replayed {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(dto.NewRecordMovementResponse(res))
}

// GetMovement godoc
// @Summary      Obtener movimiento
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del movimiento"
// @Success      200  {object}  dto.MovementResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/ledger/movements/{id} [get]
func (h *LedgerHandler) GetMovement(c *fiber.Ctx) error {
	m, err := h.queries.GetMovement(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	if !canAccessBranch(c, m.BranchCode) {
		return forbiddenBranch(c, m.BranchCode)
	}
	return c.JSON(dto.NewMovementResponse(m))
}

// ListMovements godoc
// @Summary      Listar movimientos de una sucursal
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        branch      path   string  true   "Código de sucursal"
// @Param        product_id  query  string  false  "Filtrar por producto"
// @Param        from        query  string  false  "Desde (RFC3339)"
// @Param        to          query  string  false  "Hasta (RFC3339)"
// @Param        limit       query  int     false  "Límite (default 20, máx 100)"
// @Param        offset      query  int     false  "Offset"
// @Success      200  {object}  dto.MovementListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/ledger/branches/{branch}/movements [get]
func (h *LedgerHandler) ListMovements(c *fiber.Ctx) error {
	page := dto.PageRequest{Limit: c.QueryInt("limit", 20), Offset: c.QueryInt("offset", 0)}
	page.DefaultPage()
	f := repository.MovementFilter{ProductID: c.Query("product_id"), Limit: page.Limit, Offset: page.Offset}
	for _, q := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: q.name + " debe ser RFC3339"})
		}
		*q.dst = &t
	}
	list, err := h.queries.ListMovements(c.UserContext(), c.Params("branch"), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewMovementListResponse(list, page.Limit, page.Offset))
}

// GetSnapshot godoc
// @Summary      Saldo de un producto en una sucursal
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        branch   path  string  true  "Código de sucursal"
// @Param        product  path  string  true  "ID del producto"
// @Success      200  {object}  dto.SnapshotResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/ledger/branches/{branch}/products/{product}/snapshot [get]
func (h *LedgerHandler) GetSnapshot(c *fiber.Ctx) error {
	snap, err := h.snapshots.GetSnapshot(c.UserContext(), c.Params("branch"), c.Params("product"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewSnapshotResponse(snap))
}

// ListBatches godoc
// @Summary      Lotes de un producto en una sucursal (orden FIFO)
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        branch             path   string  true   "Código de sucursal"
// @Param        product            path   string  true   "ID del producto"
// @Param        include_exhausted  query  bool    false  "Incluir lotes agotados"
// @Success      200  {object}  dto.BatchListResponse
// @Router       /api/ledger/branches/{branch}/products/{product}/batches [get]
func (h *LedgerHandler) ListBatches(c *fiber.Ctx) error {
	branch, product := c.Params("branch"), c.Params("product")
	list, err := h.queries.ListBatches(c.UserContext(), branch, product, c.QueryBool("include_exhausted", false))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewBatchListResponse(branch, product, list))
}

// VerifyBatch godoc
// @Summary      Conciliar un lote contra el registro de asignaciones
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        branch   path  string  true  "Código de sucursal"
// @Param        product  path  string  true  "ID del producto"
// @Param        batch    path  string  true  "Clave del lote"
// @Success      200  {object}  dto.BatchAuditResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/ledger/branches/{branch}/products/{product}/batches/{batch}/audit [get]
func (h *LedgerHandler) VerifyBatch(c *fiber.Ctx) error {
	// las claves de lotes trasladados contienen "/" y llegan codificadas
	batchKey, err := url.PathUnescape(c.Params("batch"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "clave de lote inválida"})
	}
	audit, err := h.queries.VerifyBatch(c.UserContext(), c.Params("branch"), c.Params("product"), batchKey)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewBatchAuditResponse(audit))
}

// Reverse godoc
// @Summary      Reversar movimiento (admin)
// @Description  Registra un movimiento compensatorio; el original no se modifica.
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                      true   "ID del movimiento"
// @Param        body  body  dto.ReverseMovementRequest  false  "Nota"
// @Success      201  {object}  dto.RecordMovementResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/ledger/movements/{id}/reversal [post]
func (h *LedgerHandler) Reverse(c *fiber.Ctx) error {
	var in dto.ReverseMovementRequest
	if len(c.Body()) > 0 {
		if ok, err := parseBody(c, &in); !ok {
			return err
		}
	}
	res, err := h.reverse.Reverse(c.UserContext(), inventory.ReverseInput{
		MovementID:  c.Params("id"),
		PerformedBy: GetUserID(c),
		Note:        in.Note,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewRecordMovementResponse(res))
}

// Transfer godoc
// @Summary      Traslado entre sucursales
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.TransferRequest  true  "from_branch, to_branch, lines"
// @Success      201  {object}  dto.TransferResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/ledger/transfers [post]
func (h *LedgerHandler) Transfer(c *fiber.Ctx) error {
	var in dto.TransferRequest
	if ok, err := parseBody(c, &in); !ok {
		return err
	}
	if !canAccessBranch(c, in.FromBranch) {
		return forbiddenBranch(c, in.FromBranch)
	}
	res, err := h.transfer.Transfer(c.UserContext(), in.ToInput(GetUserID(c)))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewTransferResponse(res))
}

// Rebuild godoc
// @Summary      Reconstruir snapshot desde el kardex (admin)
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        branch   path  string  true  "Código de sucursal"
// @Param        product  path  string  true  "ID del producto"
// @Success      200  {object}  dto.SnapshotResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/ledger/branches/{branch}/products/{product}/rebuild [post]
func (h *LedgerHandler) Rebuild(c *fiber.Ctx) error {
	snap, err := h.snapshots.Rebuild(c.UserContext(), c.Params("branch"), c.Params("product"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewSnapshotResponse(snap))
}

// RebuildAll godoc
// @Summary      Reconstruir todos los snapshots (admin)
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        concurrency  query  int  false  "Reconstrucciones en paralelo (default 4)"
// @Success      200  {object}  dto.RebuildAllResponse
// @Router       /api/ledger/rebuild [post]
func (h *LedgerHandler) RebuildAll(c *fiber.Ctx) error {
	n, err := h.snapshots.RebuildAll(c.UserContext(), c.QueryInt("concurrency", 4))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.RebuildAllResponse{Rebuilt: n})
}

// ExportXLSX godoc
// @Summary      Exportar saldos y lotes de la sucursal a Excel
// @Tags         ledger
// @Security     Bearer
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        branch  path  string  true  "Código de sucursal"
// @Success      200  {file}  binary
// @Router       /api/ledger/branches/{branch}/export.xlsx [get]
func (h *LedgerHandler) ExportXLSX(c *fiber.Ctx) error {
	ctx := c.UserContext()
	branch := c.Params("branch")
	snaps, err := h.snapshots.ListByBranch(ctx, branch)
	if err != nil {
		return writeError(c, err)
	}
	rep := report.BranchReport{BranchCode: branch, Snapshots: snaps}
	for _, s := range snaps {
		batches, err := h.queries.ListBatches(ctx, branch, s.ProductID, true)
		if err != nil {
			return writeError(c, err)
		}
		rep.Batches = append(rep.Batches, batches...)
	}
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, rep); err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="kardex-`+branch+`-`+time.Now().Format("20060102")+`.xlsx"`)
	return c.Send(buf.Bytes())
}
