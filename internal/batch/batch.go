package batch

import (
	"time"

	"github.com/zombor/merchant-validator/internal/compliance"
)

// Kind is what was uploaded for a run
type Kind string

const (
	KindDataset Kind = "dataset"
	KindImage   Kind = "image"
)

// Run is the stored record of one validation batch
type Run struct {
	ID             string                    `json:"id"`
	Kind           Kind                      `json:"kind"`
	SourceFilename string                    `json:"source_filename"`
	Total          int                       `json:"total"`
	Skipped        int                       `json:"skipped"`
	Counts         map[compliance.Status]int `json:"counts"`
	ResultFile     string                    `json:"result_file"`
	ReportFile     string                    `json:"report_file"`
	ImageFile      string                    `json:"image_file,omitempty"` // set for single image runs
	ImageType      string                    `json:"image_type,omitempty"`
	Duration       time.Duration             `json:"duration"`
	CreatedAt      time.Time                 `json:"created_at"`
}
