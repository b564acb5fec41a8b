// Package export produces XLSX reports over an owner's analyzed jobs.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/resumeiq/pipeline/internal/repository"
)

// Service is a tiny façade over the job store that produces XLSX bytes.
type Service struct {
	jobs   repository.JobRepository
	logger *slog.Logger
}

// NewService wires the export service.
func NewService(jobs repository.JobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

// ExportOwnerXLSX returns a workbook with one sheet summarizing the owner's
// analyzed resumes and one listing every suggestion.
func (s *Service) ExportOwnerXLSX(ctx context.Context, ownerID string) ([]byte, error) {
	start := time.Now()

	jobs, err := s.jobs.ListAnalyzedByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query analyzed jobs: %w", err)
	}

	f := excelize.NewFile()
	const resumesSheet = "Resumes"
	const suggestionsSheet = "Suggestions"

	if err := f.SetSheetName("Sheet1", resumesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(suggestionsSheet); err != nil {
		return nil, err
	}

	write := func(sheet string, col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	resumeHeaders := []string{"Job ID", "File Name", "Score", "Candidate", "Suggestions", "Analyzed At"}
	for i, h := range resumeHeaders {
		write(resumesSheet, i+1, 1, h)
	}
	suggestionHeaders := []string{"Job ID", "Category", "Description", "Priority"}
	for i, h := range suggestionHeaders {
		write(suggestionsSheet, i+1, 1, h)
	}

	resumeRow := 2
	suggestionRow := 2
	for _, job := range jobs {
		candidate := ""
		if job.Profile != nil {
			candidate = job.Profile.FullName
		}
		score := 0
		if job.Score != nil {
			score = *job.Score
		}

		write(resumesSheet, 1, resumeRow, job.ID.String())
		write(resumesSheet, 2, resumeRow, job.FileName)
		write(resumesSheet, 3, resumeRow, score)
		write(resumesSheet, 4, resumeRow, candidate)
		write(resumesSheet, 5, resumeRow, len(job.Suggestions))
		write(resumesSheet, 6, resumeRow, job.UpdatedAt.UTC().Format("2006-01-02 15:04"))
		resumeRow++

		for _, sug := range job.Suggestions {
			write(suggestionsSheet, 1, suggestionRow, job.ID.String())
			write(suggestionsSheet, 2, suggestionRow, sug.Category)
			write(suggestionsSheet, 3, suggestionRow, sug.Description)
			write(suggestionsSheet, 4, suggestionRow, sug.Priority)
			suggestionRow++
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("export built",
		"owner_id", ownerID,
		"jobs", len(jobs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
