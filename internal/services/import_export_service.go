package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"
	"gorm.io/datatypes"

	"github.com/SAP-F-2025/leveltest-service/internal/models"
	"github.com/SAP-F-2025/leveltest-service/internal/repositories"
	"github.com/SAP-F-2025/leveltest-service/internal/validator"
)

const questionSheet = "Questions"

// questionColumns is the workbook column layout for both import and
// export, in order.
var questionColumns = []string{
	"type", "level", "text", "options", "correct_answer", "explanation", "audio_url",
}

type importExportService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
}

func NewImportExportService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator) ImportExportService {
	return &importExportService{
		repo:      repo,
		logger:    logger,
		validator: validator,
	}
}

// ImportQuestions reads an xlsx workbook and bulk-inserts its questions.
// Invalid rows are skipped and reported; one bad row never aborts the
// whole import.
func (s *importExportService) ImportQuestions(ctx context.Context, r io.Reader, creatorID string) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := questionSheet
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, NewBusinessRuleError("empty_import",
			"workbook has no question rows", map[string]any{"sheet": sheet})
	}

	result := &ImportResult{TotalRows: len(rows) - 1}
	var questions []*models.LevelQuestion

	// Row 0 is the header.
	for i, row := range rows[1:] {
		rowNum := i + 2
		question, err := s.parseQuestionRow(row, creatorID)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		questions = append(questions, question)
	}

	if len(questions) > 0 {
		if err := s.repo.Question().CreateBatch(ctx, nil, questions); err != nil {
			return nil, fmt.Errorf("failed to import questions: %w", err)
		}
	}
	result.Imported = len(questions)

	s.logger.Info("Questions imported",
		"creator_id", creatorID,
		"imported", result.Imported,
		"skipped", result.Skipped)

	return result, nil
}

func (s *importExportService) parseQuestionRow(row []string, creatorID string) (*models.LevelQuestion, error) {
	cell := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}

	req := &CreateQuestionRequest{
		Type:          cell(0),
		Level:         cell(1),
		Text:          cell(2),
		CorrectAnswer: cell(4),
	}
	if explanation := cell(5); explanation != "" {
		req.Explanation = &explanation
	}
	if audioURL := cell(6); audioURL != "" {
		req.AudioURL = &audioURL
	}

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	level, err := models.ParseCEFRLevel(req.Level)
	if err != nil {
		return nil, err
	}

	var options datatypes.JSON
	if raw := cell(3); raw != "" {
		if !json.Valid([]byte(raw)) {
			return nil, fmt.Errorf("options column is not valid JSON")
		}
		options = datatypes.JSON(raw)
	}

	return &models.LevelQuestion{
		Type:          models.QuestionType(req.Type),
		Level:         level,
		Text:          req.Text,
		Options:       options,
		CorrectAnswer: req.CorrectAnswer,
		Explanation:   req.Explanation,
		AudioURL:      req.AudioURL,
		CreatedBy:     creatorID,
		IsActive:      true,
	}, nil
}

// ExportQuestions writes the filtered question bank into a new workbook.
// The caller owns the returned file and is responsible for closing it.
func (s *importExportService) ExportQuestions(ctx context.Context, filters repositories.QuestionFilters) (*excelize.File, error) {
	// Export is unpaginated by design; neutralize any pagination the
	// caller left in the filters.
	filters.Limit = 0
	filters.Offset = 0

	questions, _, err := s.repo.Question().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions for export: %w", err)
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(questionSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	for col, name := range questionColumns {
		cellRef, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to build cell reference: %w", err)
		}
		if err := f.SetCellValue(questionSheet, cellRef, name); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, q := range questions {
		values := []any{
			string(q.Type),
			string(q.Level),
			q.Text,
			string(q.Options),
			q.CorrectAnswer,
			deref(q.Explanation),
			deref(q.AudioURL),
		}
		for col, value := range values {
			cellRef, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("failed to build cell reference: %w", err)
			}
			if err := f.SetCellValue(questionSheet, cellRef, value); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
			}
		}
	}

	s.logger.Info("Questions exported", "count", len(questions))
	return f, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
