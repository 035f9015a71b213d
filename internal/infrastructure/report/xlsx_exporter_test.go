package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	err := WriteXLSX(&buf, BranchReport{
		BranchCode: "SUC1",
		Snapshots: []*entity.Snapshot{
			{BranchCode: "SUC1", ProductID: "P1", OnHand: decimal.NewFromInt(3), LastUnitCost: decimal.NewFromInt(10), UpdatedAt: time.Now()},
		},
		Batches: []*entity.Batch{
			{ProductID: "P1", BatchKey: "B1", OriginalQuantity: decimal.NewFromInt(5), RemainingQuantity: decimal.Zero, UnitCost: decimal.NewFromInt(10)},
			{ProductID: "P1", BatchKey: "B2", OriginalQuantity: decimal.NewFromInt(5), RemainingQuantity: decimal.NewFromInt(3), UnitCost: decimal.NewFromInt(20)},
		},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetSnapshots, sheetBatches}, f.GetSheetList())
	rows, err := f.GetRows(sheetBatches)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "B1", rows[1][1])
	assert.Equal(t, entity.BatchStateExhausted, rows[1][2])
	assert.Equal(t, entity.BatchStatePartiallyConsumed, rows[2][2])

	v, err := f.GetCellValue(sheetSnapshots, "C2")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
}
