// Package export renders ledger data as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	appledger "github.com/labelops/backend/internal/application/ledger"
	"github.com/xuri/excelize/v2"
)

// ContentTypeXLSX is the media type of the workbooks written here
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	summarySheet   = "Summary"
	movementsSheet = "Movements"
)

var movementHeaders = []any{
	"Position", "Occurred At", "Movement Type", "Quantity Delta", "Net Change",
	"Distributor", "Allocation", "Reference", "Sequence", "Note",
}

// MovementWorkbook is the XLSX export of one production run's ledger
type MovementWorkbook struct {
	Run          *appledger.ProductionRunResponse
	Availability *appledger.AvailableQuantityResponse
	Movements    []appledger.MovementResponse
}

// NewMovementWorkbook creates the workbook of a run ledger
func NewMovementWorkbook(l *appledger.RunLedgerResponse) *MovementWorkbook {
	return &MovementWorkbook{Run: &l.Run, Availability: &l.Availability, Movements: l.Movements}
}

// WriteTo renders the workbook to w
func (wb *MovementWorkbook) WriteTo(w io.Writer) (int64, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return 0, err
	}
	if _, err := f.NewSheet(movementsSheet); err != nil {
		return 0, err
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, err
	}

	if err := wb.writeSummary(f, header); err != nil {
		return 0, err
	}
	if err := wb.writeMovements(f, header); err != nil {
		return 0, err
	}
	return f.WriteTo(w)
}

func (wb *MovementWorkbook) writeSummary(f *excelize.File, header int) error {
	run := wb.Run
	rows := [][]any{
		{"Production Run", run.ID.String()},
		{"Release", run.ReleaseID.String()},
		{"Format", string(run.Format)},
		{"Manufacturer", run.Manufacturer},
		{"Manufacturing Date", run.ManufacturingDate.Format("2006-01-02")},
		{"Quantity", run.Quantity},
		{"Direct Units Sold", run.DirectUnitsSold},
		{"Adjustment", run.Adjustment},
		{"Unallocated", run.Unallocated},
	}
	if wb.Availability != nil {
		rows = append(rows, []any{"Available", wb.Availability.Available})
	}
	for i, row := range rows {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}
	return f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(rows)), header)
}

func (wb *MovementWorkbook) writeMovements(f *excelize.File, header int) error {
	if err := setRow(f, movementsSheet, 1, movementHeaders); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(movementHeaders), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(movementsSheet, "A1", last, header); err != nil {
		return err
	}

	var running int64
	for i, mv := range wb.Movements {
		running += mv.QuantityDelta
		row := []any{
			i + 1,
			mv.OccurredAt.UTC().Format("2006-01-02 15:04:05"),
			string(mv.MovementType),
			mv.QuantityDelta,
			running,
			optionalID(mv.DistributorID),
			optionalID(mv.AllocationID),
			mv.ReferenceID.String(),
			mv.Sequence,
			mv.Note,
		}
		if err := setRow(f, movementsSheet, i+2, row); err != nil {
			return err
		}
	}
	return f.SetPanes(movementsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
