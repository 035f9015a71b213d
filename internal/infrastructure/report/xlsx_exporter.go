// Package report exporta el estado del kardex de una sucursal a Excel.
package report

import (
	"fmt"
	"io"

	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/xuri/excelize/v2"
)

const (
	sheetSnapshots = "Saldos"
	sheetBatches   = "Lotes"
)

// BranchReport datos de la exportación.
type BranchReport struct {
	BranchCode string
	Snapshots  []*entity.Snapshot
	Batches    []*entity.Batch
}

// WriteXLSX escribe el libro con una hoja de saldos y otra de lotes.
func WriteXLSX(w io.Writer, r BranchReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSnapshots); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetBatches); err != nil {
		return err
	}

	rows := [][]any{{"Sucursal", "Producto", "Existencia", "Último costo", "Último precio", "Actualizado"}}
	for _, s := range r.Snapshots {
		rows = append(rows, []any{
			s.BranchCode, s.ProductID, s.OnHand.InexactFloat64(),
			s.LastUnitCost.InexactFloat64(), s.LastUnitPrice.InexactFloat64(), s.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	if err := writeRows(f, sheetSnapshots, rows); err != nil {
		return err
	}

	rows = [][]any{{"Producto", "Lote", "Estado", "Original", "Saldo", "Costo unitario", "Fecha"}}
	for _, b := range r.Batches {
		rows = append(rows, []any{
			b.ProductID, b.BatchKey, b.State(), b.OriginalQuantity.InexactFloat64(),
			b.RemainingQuantity.InexactFloat64(), b.UnitCost.InexactFloat64(), b.OccurredAt.Format("2006-01-02"),
		})
	}
	if err := writeRows(f, sheetBatches, rows); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
