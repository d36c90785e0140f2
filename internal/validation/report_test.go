package validation

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/merchant-validator/internal/compliance"
	"github.com/zombor/merchant-validator/internal/sheet"
)

var _ = Describe("Aggregate", func() {
	var (
		records  []sheet.MerchantRecord
		verdicts []compliance.Verdict
		skipped  []sheet.SkippedRow
		report   *BatchReport
		err      error
	)

	BeforeEach(func() {
		records = []sheet.MerchantRecord{
			{RowIndex: 3, MerchantName: "C"},
			{RowIndex: 1, MerchantName: "A"},
			{RowIndex: 2, MerchantName: "B"},
		}
		verdicts = []compliance.Verdict{
			{Status: compliance.StatusRejected, Confidence: compliance.ConfidenceHigh},
			{Status: compliance.StatusAccepted, Confidence: compliance.ConfidenceHigh},
			compliance.ErrorVerdict("timeout: slow"),
		}
		skipped = []sheet.SkippedRow{{RowIndex: 5, Reason: sheet.ReasonEmptyURL}, {RowIndex: 4, Reason: sheet.ReasonEmptyName}}
	})

	JustBeforeEach(func() {
		report, err = Aggregate([]string{"Name", "Image"}, sheet.Columns{URL: 1}, records, verdicts, skipped)
	})

	It("should not return an error", func() {
		Expect(err).NotTo(HaveOccurred())
	})

	It("should satisfy total == len(rows) == sum(counts)", func() {
		sum := 0
		for _, c := range report.Counts {
			sum += c
		}
		Expect(report.Total).To(Equal(3))
		Expect(report.Rows).To(HaveLen(report.Total))
		Expect(sum).To(Equal(report.Total))
	})

	It("should include every status in the counts", func() {
		Expect(report.Counts).To(HaveLen(len(compliance.AllStatuses)))
		Expect(report.Count(compliance.StatusReviewRequired)).To(Equal(0))
		Expect(report.Count(compliance.StatusError)).To(Equal(1))
	})

	It("should order rows by row index and keep the pairing", func() {
		Expect(report.Rows[0].Record.MerchantName).To(Equal("A"))
		Expect(report.Rows[0].Verdict.Status).To(Equal(compliance.StatusAccepted))
		Expect(report.Rows[2].Record.MerchantName).To(Equal("C"))
		Expect(report.Rows[2].Verdict.Status).To(Equal(compliance.StatusRejected))
	})

	It("should order skipped rows", func() {
		Expect(report.Skipped[0].RowIndex).To(Equal(4))
	})

	It("should not reorder the caller's slices", func() {
		Expect(records[0].MerchantName).To(Equal("C"))
		Expect(skipped[0].RowIndex).To(Equal(5))
	})

	When("the lengths differ", func() {
		BeforeEach(func() {
			verdicts = verdicts[:2]
		})

		It("should return ErrLengthMismatch", func() {
			Expect(errors.Is(err, ErrLengthMismatch)).To(BeTrue())
		})
	})

	When("there are no records", func() {
		BeforeEach(func() {
			records = nil
			verdicts = nil
			skipped = nil
		})

		It("should produce an empty report", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Total).To(BeZero())
			Expect(report.Rows).To(BeEmpty())
			Expect(report.Skipped).NotTo(BeNil())
		})
	})
})

var _ = Describe("Limiter", func() {
	It("should block a second acquire until release", func() {
		l := NewLimiter(1, 0)
		release, err := l.Acquire(context.Background())
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = l.Acquire(ctx)
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())

		release()
		release2, err := l.Acquire(context.Background())
		Expect(err).NotTo(HaveOccurred())
		release2()
	})

	It("should space calls by the rate", func() {
		l := NewLimiter(4, 50)
		start := time.Now()
		for i := 0; i < 3; i++ {
			release, err := l.Acquire(context.Background())
			Expect(err).NotTo(HaveOccurred())
			release()
		}
		Expect(time.Since(start)).To(BeNumerically(">=", 30*time.Millisecond))
	})

	It("should return the slot when the rate wait is canceled", func() {
		l := NewLimiter(1, 0.001)
		release, err := l.Acquire(context.Background())
		Expect(err).NotTo(HaveOccurred())
		release()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = l.Acquire(ctx)
		Expect(err).To(HaveOccurred())

		Expect(l.sem.TryAcquire(1)).To(BeTrue())
	})
})
