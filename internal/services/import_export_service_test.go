package services

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/leveltest-service/internal/models"
	"github.com/SAP-F-2025/leveltest-service/internal/repositories"
	"github.com/SAP-F-2025/leveltest-service/internal/validator"
)

func newTestImportExportService(repo *mockRepository) ImportExportService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewImportExportService(repo, logger, validator.New())
}

// buildWorkbook writes a Questions sheet with a header row followed by the
// given rows.
func buildWorkbook(t *testing.T, rows [][]any) *bytes.Reader {
	t.Helper()

	f := excelize.NewFile()
	index, err := f.NewSheet("Questions")
	require.NoError(t, err)
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	header := []any{"type", "level", "text", "options", "correct_answer", "explanation", "audio_url"}
	all := append([][]any{header}, rows...)
	for r, row := range all {
		for c, value := range row {
			cellRef, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Questions", cellRef, value))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())
	return bytes.NewReader(buf.Bytes())
}

func TestImportQuestions(t *testing.T) {
	repo := newMockRepository()
	svc := newTestImportExportService(repo)

	workbook := buildWorkbook(t, [][]any{
		{"multiple_choice", "A1_1", "Pick the article: ___ apple", `{"choices":[{"id":"a","text":"an"},{"id":"b","text":"a"}]}`, "a", "Vowel sound takes 'an'.", ""},
		{"fill_blank", "B2_1", "She ___ been waiting for an hour.", "", "has", "", ""},
	})

	result, err := svc.ImportQuestions(context.Background(), workbook, "teacher-1")
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalRows)
	assert.Equal(t, 2, result.Imported)
	assert.Zero(t, result.Skipped)
	assert.Empty(t, result.Errors)

	questions, total, err := repo.question.List(context.Background(), nil, repositories.QuestionFilters{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, "teacher-1", questions[0].CreatedBy)
	assert.True(t, questions[0].IsActive)
}

func TestImportQuestions_SkipsInvalidRows(t *testing.T) {
	repo := newMockRepository()
	svc := newTestImportExportService(repo)

	workbook := buildWorkbook(t, [][]any{
		{"multiple_choice", "A1_1", "A valid question text here", "", "a", "", ""},
		{"multiple_choice", "Z9_9", "Bad level row", "", "a", "", ""},
		{"multiple_choice", "A1_2", "Bad options row", "{not json", "a", "", ""},
	})

	result, err := svc.ImportQuestions(context.Background(), workbook, "teacher-1")
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalRows)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "row 3")
	assert.Contains(t, result.Errors[1], "row 4")
}

func TestImportQuestions_EmptyWorkbook(t *testing.T) {
	repo := newMockRepository()
	svc := newTestImportExportService(repo)

	workbook := buildWorkbook(t, nil)

	_, err := svc.ImportQuestions(context.Background(), workbook, "teacher-1")
	require.Error(t, err)

	var ruleErr *BusinessRuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, "empty_import", ruleErr.Rule)
}

func TestImportQuestions_NotAWorkbook(t *testing.T) {
	repo := newMockRepository()
	svc := newTestImportExportService(repo)

	_, err := svc.ImportQuestions(context.Background(), bytes.NewReader([]byte("plain text")), "teacher-1")
	require.Error(t, err)
}

func TestExportQuestions_RoundTrip(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "A1_1", 2)
	seedQuestions(repo, "C1_2", 1)
	svc := newTestImportExportService(repo)

	f, err := svc.ExportQuestions(context.Background(), repositories.QuestionFilters{})
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Questions")
	require.NoError(t, err)
	require.Len(t, rows, 4, "header plus three questions")
	assert.Equal(t, "type", rows[0][0])
	assert.Equal(t, "A1_1", rows[1][1])
	assert.Equal(t, "C1_2", rows[3][1])

	// An exported workbook imports cleanly into an empty bank.
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	target := newMockRepository()
	targetSvc := newTestImportExportService(target)
	result, err := targetSvc.ImportQuestions(context.Background(), bytes.NewReader(buf.Bytes()), "teacher-2")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
}

func TestExportQuestions_FilterByLevel(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "A1_1", 2)
	seedQuestions(repo, "C1_2", 3)
	svc := newTestImportExportService(repo)

	level := models.CEFRLevel("C1_2")
	f, err := svc.ExportQuestions(context.Background(), repositories.QuestionFilters{Level: &level})
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Questions")
	require.NoError(t, err)
	assert.Len(t, rows, 4, "header plus the three C1_2 questions")
}
