package batch

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(tmpDir, "results"))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			filename  string
			savedName string
			err       error
		)

		BeforeEach(func() {
			filename = "report.xlsx"
		})

		JustBeforeEach(func() {
			savedName, err = storage.Save(filename, []byte("test file content"))
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the file name", func() {
				Expect(savedName).To(Equal(filename))
			})

			It("should save the file to disk", func() {
				Expect(filepath.Join(tmpDir, "results", filename)).To(BeAnExistingFile())
			})
		})

		When("the name tries to escape the directory", func() {
			BeforeEach(func() {
				filename = "../../escape.xlsx"
			})

			It("should keep the file inside the storage directory", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(savedName).To(Equal("escape.xlsx"))
				Expect(filepath.Join(tmpDir, "results", "escape.xlsx")).To(BeAnExistingFile())
				Expect(filepath.Join(tmpDir, "escape.xlsx")).NotTo(BeAnExistingFile())
			})
		})

		When("the name is empty", func() {
			BeforeEach(func() {
				filename = ""
			})

			It("should return an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Get", func() {
		When("file exists", func() {
			BeforeEach(func() {
				_, err := storage.Save("report.json", []byte(`{"total":1}`))
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the file data", func() {
				data, err := storage.Get("report.json")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal(`{"total":1}`))
			})

			It("should only use the base name", func() {
				data, err := storage.Get("../results/report.json")
				Expect(err).NotTo(HaveOccurred())
				Expect(data).NotTo(BeEmpty())
			})
		})

		When("file does not exist", func() {
			It("should return an error", func() {
				_, err := storage.Get("missing.xlsx")
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Delete", func() {
		It("should remove the file", func() {
			_, err := storage.Save("report.xlsx", []byte("x"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete("report.xlsx")).To(Succeed())
			_, statErr := os.Stat(filepath.Join(tmpDir, "results", "report.xlsx"))
			Expect(os.IsNotExist(statErr)).To(BeTrue())
		})

		It("should return an error for a missing file", func() {
			Expect(storage.Delete("missing.xlsx")).NotTo(Succeed())
		})
	})
})
