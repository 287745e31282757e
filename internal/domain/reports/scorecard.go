package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"pms/internal/domain/core"
	"pms/internal/domain/kpi"
	"pms/internal/domain/scoring"
	"pms/internal/domain/workflow"
)

// MeritScorecard renders one merit record with its component scores and approval history.
func (s *Service) MeritScorecard(ctx context.Context, tenantID, recordID string) ([]byte, error) {
	rec, err := s.merit.GetMeritRecord(ctx, tenantID, recordID)
	if err != nil {
		return nil, err
	}
	history, err := s.merit.History(ctx, tenantID, workflow.RecordKPIMerit, recordID)
	if err != nil {
		return nil, err
	}
	employee, err := s.employees.GetEmployee(ctx, tenantID, rec.EmployeeID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	return renderScorecard(rec, employee, history)
}

func renderScorecard(rec kpi.MeritRecord, employee core.Employee, history []workflow.HistoryEntry) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "KPI Merit Scorecard")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	name := employee.FullName()
	if name == "" {
		name = rec.EmployeeID
	}
	pdf.Cell(0, 8, fmt.Sprintf("Employee: %s", name))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s", rec.Period))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Status: %s", rec.StatusLabel))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(70, 8, "Component", "1", 0, "", false, 0, "")
	pdf.CellFormat(40, 8, "Score", "1", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, "Weighted", "1", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	rows := []struct {
		label    string
		raw      float64
		weighted float64
	}{
		{"KPI achievement (40%)", rec.KPIScore.TotalScore, rec.Merit.KPIAchievementScore},
		{"Competency (30%)", rec.CompetencyScore.TotalScore, rec.Merit.CompetencyScore},
		{"Culture (30%)", rec.CultureScore.TotalScore, rec.Merit.CultureScore},
	}
	for _, row := range rows {
		pdf.CellFormat(70, 8, row.label, "1", 0, "", false, 0, "")
		pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", row.raw), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", row.weighted), "1", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(110, 8, "Total merit score", "1", 0, "", false, 0, "")
	pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", rec.Merit.TotalScore), "1", 1, "R", false, 0, "")
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("Merit level: %d", scoring.ConvertPercentageToLevel(rec.Merit.TotalScore)))
	pdf.Ln(7)
	if !rec.IsWeightValid {
		pdf.Cell(0, 8, "Warning: criteria weights do not add up to 100.")
		pdf.Ln(7)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "History")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	for _, entry := range history {
		line := fmt.Sprintf("%s  %s by %s (%s): %s -> %s",
			entry.CreatedAt.Format("2006-01-02 15:04"), entry.Action, entry.ActorName, entry.ActorRole,
			entry.FromStatus.Label(), entry.ToStatus.Label())
		if entry.Comment != "" {
			line += "  \"" + entry.Comment + "\""
		}
		pdf.MultiCell(0, 6, line, "", "", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
