package validation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/merchant-validator/internal/compliance"
	"github.com/zombor/merchant-validator/internal/fetch"
	"github.com/zombor/merchant-validator/internal/sheet"
)

// SingleImageName is the merchant name given to a directly uploaded image
const SingleImageName = "Single Image Upload"

// ImageFetcher downloads image bytes for a URL
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) fetch.Outcome
}

// Classifier judges image bytes
type Classifier interface {
	Classify(ctx context.Context, image []byte, contentType, merchantName string) (compliance.Verdict, error)
}

// Stage is where a record is in its pipeline
type Stage int

const (
	StagePending Stage = iota
	StageFetching
	StageFetchFailed
	StageFetched
	StageClassifying
	StageClassified
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageFetching:
		return "fetching"
	case StageFetchFailed:
		return "fetch_failed"
	case StageFetched:
		return "fetched"
	case StageClassifying:
		return "classifying"
	case StageClassified:
		return "classified"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Options configures an Orchestrator
type Options struct {
	// Concurrency is the number of records processed at once (1..MaxConcurrency)
	Concurrency int
	// Limiter caps classifier calls; nil uses NewLimiter(DefaultAIConcurrency, 0)
	Limiter *Limiter
}

// Orchestrator drives every record through fetch and classify
type Orchestrator struct {
	fetcher     ImageFetcher
	classifier  Classifier
	limiter     *Limiter
	concurrency int
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(fetcher ImageFetcher, classifier Classifier, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Concurrency > MaxConcurrency {
		opts.Concurrency = MaxConcurrency
	}
	if opts.Limiter == nil {
		opts.Limiter = NewLimiter(DefaultAIConcurrency, 0)
	}
	return &Orchestrator{
		fetcher:     fetcher,
		classifier:  classifier,
		limiter:     opts.Limiter,
		concurrency: opts.Concurrency,
	}
}

// Validate resolves columns, extracts records and runs the batch. Only a
// schema error fails the call; everything else is reported per row.
func (o *Orchestrator) Validate(ctx context.Context, ds sheet.Dataset) (*BatchReport, error) {
	cols, err := sheet.ResolveColumns(ds.Header)
	if err != nil {
		return nil, fmt.Errorf("resolving columns: %w", err)
	}

	records, skipped := sheet.ExtractRecords(cols, ds.Rows)
	slog.Info("Extracted merchant records",
		"name_column", cols.NameHeader,
		"url_column", cols.URLHeader,
		"records", len(records),
		"skipped", len(skipped),
	)

	verdicts := o.Run(ctx, records)
	return Aggregate(ds.Header, cols, records, verdicts, skipped)
}

// ValidateImage judges a directly uploaded image as a one-row batch
func (o *Orchestrator) ValidateImage(ctx context.Context, filename string, image []byte, contentType string) (*BatchReport, error) {
	rec := sheet.MerchantRecord{
		RowIndex:     1,
		MerchantName: SingleImageName,
		ImageURL:     "upload:" + filename,
		Original:     []string{SingleImageName, filename},
	}
	verdict := o.guard(rec, func() compliance.Verdict {
		return o.classify(ctx, rec, image, contentType)
	})

	header := []string{"Merchant_Name", "Merchant_Image"}
	cols := sheet.Columns{Name: 0, URL: 1, NameHeader: header[0], URLHeader: header[1]}
	return Aggregate(header, cols, []sheet.MerchantRecord{rec}, []compliance.Verdict{verdict}, nil)
}

// Run processes records concurrently and returns one verdict per record, in
// input order. It never fails: cancellation turns unfinished records into ERROR.
func (o *Orchestrator) Run(ctx context.Context, records []sheet.MerchantRecord) []compliance.Verdict {
	verdicts := make([]compliance.Verdict, len(records))
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i := range records {
		g.Go(func() error {
			rec := records[i]
			verdicts[i] = o.guard(rec, func() compliance.Verdict {
				return o.process(ctx, rec)
			})
			return nil
		})
	}
	// Workers never return errors
	_ = g.Wait()

	slog.Info("Batch processed", "records", len(records), "duration", time.Since(start))
	return verdicts
}

// guard turns a panic in one record's pipeline into an ERROR verdict
func (o *Orchestrator) guard(rec sheet.MerchantRecord, fn func() compliance.Verdict) (v compliance.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Record pipeline panicked", "row", rec.RowIndex, "panic", r, "stack", string(debug.Stack()))
			v = compliance.ErrorVerdict(fmt.Sprintf("internal error: %v", r))
		}
	}()
	return fn()
}

func (o *Orchestrator) process(ctx context.Context, rec sheet.MerchantRecord) compliance.Verdict {
	stage := StagePending
	advance := func(next Stage) {
		slog.Debug("Record stage", "row", rec.RowIndex, "from", stage, "to", next)
		stage = next
	}

	if err := ctx.Err(); err != nil {
		return compliance.ErrorVerdict(fmt.Sprintf("batch canceled: %v", err))
	}

	advance(StageFetching)
	outcome := o.fetcher.Fetch(ctx, rec.ImageURL)
	if outcome.Failed() {
		advance(StageFetchFailed)
		slog.Warn("Image fetch failed", "row", rec.RowIndex, "url", rec.ImageURL, "error", outcome.Err)
		return compliance.ErrorVerdict(outcome.Err.Error())
	}
	advance(StageFetched)

	advance(StageClassifying)
	v := o.classify(ctx, rec, outcome.Bytes, outcome.ContentType)
	advance(StageClassified)
	return v
}

// classify runs the classifier inside an AI slot
func (o *Orchestrator) classify(ctx context.Context, rec sheet.MerchantRecord, image []byte, contentType string) compliance.Verdict {
	release, err := o.limiter.Acquire(ctx)
	if err != nil {
		return compliance.ErrorVerdict(err.Error())
	}
	defer release()

	v, err := o.classifier.Classify(ctx, image, contentType, rec.MerchantName)
	if err != nil {
		slog.Warn("Classification failed", "row", rec.RowIndex, "merchant", rec.MerchantName, "error", err)
		return compliance.ErrorVerdict(err.Error())
	}
	return v
}
