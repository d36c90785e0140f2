package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/merchant-validator/internal/compliance"
	"github.com/zombor/merchant-validator/internal/report"
	"github.com/zombor/merchant-validator/internal/sheet"
	"github.com/zombor/merchant-validator/internal/validation"
)

var (
	// ErrInvalidUpload is returned for uploads that are neither a dataset nor an image
	ErrInvalidUpload = errors.New("invalid file type")

	// ErrUnreadableDataset wraps dataset decoding failures
	ErrUnreadableDataset = errors.New("unreadable dataset")
)

// IDGenerator generates unique IDs for runs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Validator runs the validation pipeline
type Validator interface {
	Validate(ctx context.Context, ds sheet.Dataset) (*validation.BatchReport, error)
	ValidateImage(ctx context.Context, filename string, image []byte, contentType string) (*validation.BatchReport, error)
}

// Service handles validation runs
type Service struct {
	db          DB
	validator   Validator
	storage     Storage
	loadOpts    sheet.LoadOptions
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, validator Validator, storage Storage, loadOpts sheet.LoadOptions) *Service {
	return &Service{
		db:          db,
		validator:   validator,
		storage:     storage,
		loadOpts:    loadOpts,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, validator Validator, storage Storage, loadOpts sheet.LoadOptions, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		validator:   validator,
		storage:     storage,
		loadOpts:    loadOpts,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters and truncates long names
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)

	base = unsafeChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(spaceRuns.ReplaceAllString(base, " "))

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "upload"
	}

	return base + strings.ToLower(unsafeChars.ReplaceAllString(ext, ""))
}

// ResultFilename is the name of a run's xlsx report
func ResultFilename(id string, t time.Time) string {
	return fmt.Sprintf("validation_results_%s_%s.xlsx", t.UTC().Format("20060102_150405"), id)
}

// IsImageUpload reports whether an upload should be validated as a single image
func IsImageUpload(contentType string, data []byte) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return true
	}
	return strings.HasPrefix(http.DetectContentType(data), "image/")
}

// ProcessUpload validates an uploaded dataset or image, stores the reports and
// records the run
func (s *Service) ProcessUpload(ctx context.Context, filename string, data []byte, contentType string) (*Run, *report.Document, error) {
	id := s.idGenerator.Generate()
	started := s.timeSource.Now()

	run := &Run{
		ID:             id,
		SourceFilename: filename,
		CreatedAt:      started,
	}

	var (
		br  *validation.BatchReport
		err error
	)
	switch {
	case sheet.IsDatasetFile(filename, contentType):
		run.Kind = KindDataset
		br, err = s.validateDataset(ctx, filename, data)
	case IsImageUpload(contentType, data):
		run.Kind = KindImage
		br, err = s.validator.ValidateImage(ctx, filename, data, contentType)
		if err != nil {
			err = fmt.Errorf("validating image: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidUpload, filename)
	}
	if err != nil {
		slog.Error("Failed to validate upload", "filename", filename, "content_type", contentType, "error", err)
		return nil, nil, err
	}

	doc := report.NewDocument(br)
	run.Total = br.Total
	run.Skipped = len(br.Skipped)
	run.Counts = doc.Summary.StatusBreakdown
	run.Duration = s.timeSource.Now().Sub(started)

	var saved []string
	cleanup := func() {
		for _, name := range saved {
			if err := s.storage.Delete(name); err != nil {
				slog.Warn("Failed to delete file", "filename", name, "error", err)
			}
		}
	}

	var xlsx bytes.Buffer
	if err := report.WriteXLSX(&xlsx, br); err != nil {
		return nil, nil, fmt.Errorf("writing xlsx report: %w", err)
	}
	run.ResultFile, err = s.storage.Save(ResultFilename(id, started), xlsx.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("saving result file: %w", err)
	}
	saved = append(saved, run.ResultFile)

	js, err := json.Marshal(doc)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("marshaling report: %w", err)
	}
	run.ReportFile, err = s.storage.Save(fmt.Sprintf("%s_report.json", id), js)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("saving report file: %w", err)
	}
	saved = append(saved, run.ReportFile)

	if run.Kind == KindImage {
		run.ImageFile, err = s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("saving image: %w", err)
		}
		run.ImageType = contentType
		saved = append(saved, run.ImageFile)
	}

	if err := s.db.SaveRun(run); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("saving run to database: %w", err)
	}

	slog.Info("Validation run complete",
		"id", id,
		"kind", run.Kind,
		"total", run.Total,
		"accepted", br.Count(compliance.StatusAccepted),
		"rejected", br.Count(compliance.StatusRejected),
		"review_required", br.Count(compliance.StatusReviewRequired),
		"errors", br.Count(compliance.StatusError),
		"skipped", run.Skipped,
	)

	return run, &doc, nil
}

func (s *Service) validateDataset(ctx context.Context, filename string, data []byte) (*validation.BatchReport, error) {
	ds, err := sheet.Load(filename, data, s.loadOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableDataset, err)
	}

	br, err := s.validator.Validate(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("validating dataset: %w", err)
	}
	return br, nil
}

// GetRun retrieves a run by ID
func (s *Service) GetRun(id string) (*Run, error) {
	run, err := s.db.GetRun(id)
	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs, newest first
func (s *Service) ListRuns() ([]*Run, error) {
	runs, err := s.db.ListRuns()
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// GetReport loads the stored JSON report for a run
func (s *Service) GetReport(id string) (*report.Document, error) {
	run, err := s.db.GetRun(id)
	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}

	data, err := s.storage.Get(run.ReportFile)
	if err != nil {
		return nil, fmt.Errorf("getting report file: %w", err)
	}

	var doc report.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling report: %w", err)
	}
	return &doc, nil
}

// GetResultFile returns the xlsx report and its file name
func (s *Service) GetResultFile(id string) ([]byte, string, error) {
	run, err := s.db.GetRun(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting run: %w", err)
	}

	data, err := s.storage.Get(run.ResultFile)
	if err != nil {
		return nil, "", fmt.Errorf("getting result file: %w", err)
	}
	return data, run.ResultFile, nil
}

// GetImageFile returns the uploaded image of a single image run
func (s *Service) GetImageFile(id string) ([]byte, string, error) {
	run, err := s.db.GetRun(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting run: %w", err)
	}
	if run.ImageFile == "" {
		return nil, "", fmt.Errorf("%w: run %s has no image", ErrRunNotFound, id)
	}

	data, err := s.storage.Get(run.ImageFile)
	if err != nil {
		return nil, "", fmt.Errorf("getting image file: %w", err)
	}
	return data, run.ImageType, nil
}

// DeleteRun removes a run and its files
func (s *Service) DeleteRun(id string) error {
	run, err := s.db.GetRun(id)
	if err != nil {
		return fmt.Errorf("getting run for deletion: %w", err)
	}

	for _, name := range []string{run.ResultFile, run.ReportFile, run.ImageFile} {
		if name == "" {
			continue
		}
		if err := s.storage.Delete(name); err != nil {
			slog.Warn("Failed to delete file", "filename", name, "error", err)
		}
	}

	if err := s.db.DeleteRun(id); err != nil {
		return fmt.Errorf("deleting run from database: %w", err)
	}
	return nil
}
