package batch

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/merchant-validator/internal/compliance"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	newRun := func(id string, created time.Time) *Run {
		return &Run{
			ID:             id,
			Kind:           KindDataset,
			SourceFilename: "merchants.xlsx",
			Total:          3,
			Skipped:        1,
			Counts: map[compliance.Status]int{
				compliance.StatusAccepted: 2,
				compliance.StatusRejected: 1,
			},
			ResultFile: "validation_results_" + id + ".xlsx",
			ReportFile: id + "_report.json",
			CreatedAt:  created,
		}
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveRun", func() {
		It("should save the run to the database", func() {
			Expect(db.SaveRun(newRun("run-1", time.Now()))).To(Succeed())

			saved, err := db.GetRun("run-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.ID).To(Equal("run-1"))
			Expect(saved.Counts[compliance.StatusAccepted]).To(Equal(2))
			Expect(saved.Kind).To(Equal(KindDataset))
		})

		It("should overwrite an existing run", func() {
			run := newRun("run-1", time.Now())
			Expect(db.SaveRun(run)).To(Succeed())
			run.Total = 10
			Expect(db.SaveRun(run)).To(Succeed())

			saved, err := db.GetRun("run-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Total).To(Equal(10))
		})
	})

	Describe("GetRun", func() {
		When("run does not exist", func() {
			It("should return ErrRunNotFound", func() {
				_, err := db.GetRun("nonexistent")
				Expect(errors.Is(err, ErrRunNotFound)).To(BeTrue())
				Expect(err.Error()).To(ContainSubstring("nonexistent"))
			})
		})
	})

	Describe("ListRuns", func() {
		When("no runs exist", func() {
			It("should return an empty list", func() {
				runs, err := db.ListRuns()
				Expect(err).NotTo(HaveOccurred())
				Expect(runs).To(BeEmpty())
			})
		})

		When("several runs exist", func() {
			BeforeEach(func() {
				base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
				Expect(db.SaveRun(newRun("a", base))).To(Succeed())
				Expect(db.SaveRun(newRun("b", base.Add(2*time.Hour)))).To(Succeed())
				Expect(db.SaveRun(newRun("c", base.Add(time.Hour)))).To(Succeed())
			})

			It("should return them newest first", func() {
				runs, err := db.ListRuns()
				Expect(err).NotTo(HaveOccurred())
				Expect(runs).To(HaveLen(3))
				Expect([]string{runs[0].ID, runs[1].ID, runs[2].ID}).To(Equal([]string{"b", "c", "a"}))
			})
		})
	})

	Describe("DeleteRun", func() {
		It("should remove the run", func() {
			Expect(db.SaveRun(newRun("run-1", time.Now()))).To(Succeed())
			Expect(db.DeleteRun("run-1")).To(Succeed())

			_, err := db.GetRun("run-1")
			Expect(errors.Is(err, ErrRunNotFound)).To(BeTrue())
		})

		It("should return ErrRunNotFound for an unknown run", func() {
			Expect(errors.Is(db.DeleteRun("missing"), ErrRunNotFound)).To(BeTrue())
		})
	})

	Describe("reopening", func() {
		It("should keep saved runs", func() {
			Expect(db.SaveRun(newRun("run-1", time.Now()))).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())

			saved, err := db.GetRun("run-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.SourceFilename).To(Equal("merchants.xlsx"))
		})
	})
})
