package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/assessment"
)

// expected sheet layout:
//   A: content | B: type | C: category | D: difficulty | E: options ("|"-separated)
//   F: correct answer | G: explanation (optional)
const (
	importSheetName = "Sheet1"
	optionSeparator = "|"
)

func (cli *commandLine) importQuestions(path string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("opening %s: %v", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(importSheetName)
	if err != nil {
		return fmt.Errorf("reading rows: %v", err)
	}

	var created int
	var errs []string
	for i, row := range rows {
		if i == 0 { // header
			continue
		}
		if err := cli.importQuestionRow(row); err != nil {
			errs = append(errs, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		created++
	}

	logger.Printf("imported %d questions (%d errors)", created, len(errs))
	for _, e := range errs {
		logger.Print(e)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d rows failed to import", len(errs))
	}
	return nil
}

func (cli *commandLine) importQuestionRow(row []string) error {
	cell := func(i int) string {
		if i < len(row) {
			return core.CleanString(row[i])
		}
		return ""
	}

	difficulty, err := strconv.Atoi(cell(3))
	if err != nil {
		return fmt.Errorf("difficulty must be a number (got %q)", cell(3))
	}

	var options []string
	if raw := cell(4); raw != "" {
		for _, opt := range strings.Split(raw, optionSeparator) {
			options = append(options, core.CleanString(opt))
		}
	}

	nq := assessment.NewQuestion{
		Content:       cell(0),
		Type:          assessment.QuestionType(cell(1)),
		Category:      assessment.Category(cell(2)),
		Difficulty:    difficulty,
		Options:       options,
		CorrectAnswer: cell(5),
		Explanation:   cell(6),
	}
	if err := nq.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	q := assessment.Question{
		ID:            uuid.New().String(),
		Content:       nq.Content,
		Type:          nq.Type,
		Category:      nq.Category,
		Difficulty:    nq.Difficulty,
		Options:       nq.Options,
		CorrectAnswer: nq.CorrectAnswer,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if nq.Explanation != "" {
		q.Explanation.SetValid(nq.Explanation)
	}
	_, err = cli.questionRepo.CreateQuestion(q)
	return err
}
