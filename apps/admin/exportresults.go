package main

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/trezcool/academia/core/assessment"
)

var exportHeaders = []string{
	"Session ID", "Test Taker", "Email", "Submitted At",
	"Correct", "Total", "Overall Score (%)", "Level", "Rationale",
}

func (cli *commandLine) exportResults(path string, level assessment.Level) error {
	results, err := cli.resultRepo.FilterResults(assessment.ResultFilter{Level: level})
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for col, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}

	for i, res := range results {
		var submittedAt string
		if res.Session.SubmittedAt.Valid {
			submittedAt = res.Session.SubmittedAt.Time.Format(time.RFC3339)
		}
		values := []interface{}{
			res.Score.SessionID,
			res.Session.Intake.Name,
			res.Session.Intake.Email,
			submittedAt,
			res.Score.Correct,
			res.Score.Total,
			res.Score.Overall,
			string(res.Recommendation.Level),
			res.Recommendation.Rationale,
		}
		for col, val := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %v", path, err)
	}
	logger.Printf("exported %d results to %s", len(results), path)
	return nil
}
