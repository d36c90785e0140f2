package sheet

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ExtractRecords", func() {
	var (
		cols    Columns
		rows    [][]string
		records []MerchantRecord
		skipped []SkippedRow
	)

	BeforeEach(func() {
		cols = Columns{Name: 0, URL: 1}
	})

	JustBeforeEach(func() {
		records, skipped = ExtractRecords(cols, rows)
	})

	When("a single valid row is given", func() {
		BeforeEach(func() {
			rows = [][]string{{"Acme Bakery", "https://x/1.jpg"}}
		})

		It("should yield one record", func() {
			Expect(records).To(HaveLen(1))
			Expect(skipped).To(BeEmpty())
		})

		It("should carry the row index and values", func() {
			Expect(records[0].RowIndex).To(Equal(1))
			Expect(records[0].MerchantName).To(Equal("Acme Bakery"))
			Expect(records[0].ImageURL).To(Equal("https://x/1.jpg"))
		})

		It("should keep the original row", func() {
			Expect(records[0].Original).To(Equal([]string{"Acme Bakery", "https://x/1.jpg"}))
		})
	})

	When("rows are malformed", func() {
		BeforeEach(func() {
			rows = [][]string{
				{"Good One", "https://example.com/a.png"},
				{"", "https://example.com/b.png"},
				{"No URL", ""},
				{"Bad URL", "not a url"},
				{"FTP", "ftp://example.com/c.png"},
				{"Short"},
				{"", "  "},
				{"  Padded  ", "  http://localhost:8080/d.jpg  "},
			}
		})

		It("should partition every row exactly once", func() {
			Expect(len(records) + len(skipped)).To(Equal(len(rows)))
		})

		It("should keep valid rows in order", func() {
			Expect(records).To(HaveLen(2))
			Expect(records[0].RowIndex).To(Equal(1))
			Expect(records[1].RowIndex).To(Equal(8))
		})

		It("should trim cell values", func() {
			Expect(records[1].MerchantName).To(Equal("Padded"))
			Expect(records[1].ImageURL).To(Equal("http://localhost:8080/d.jpg"))
		})

		It("should report the reason for each skipped row", func() {
			reasons := map[int]string{}
			for _, s := range skipped {
				reasons[s.RowIndex] = s.Reason
			}
			Expect(reasons).To(Equal(map[int]string{
				2: ReasonEmptyName,
				3: ReasonEmptyURL,
				4: ReasonInvalidURL,
				5: ReasonInvalidURL,
				6: ReasonEmptyURL,
				7: ReasonEmptyRow,
			}))
		})
	})

	When("the columns are not adjacent", func() {
		BeforeEach(func() {
			cols = Columns{Name: 2, URL: 0}
			rows = [][]string{{"https://cdn.example.com/p.webp", "ignored", "Cafe"}}
		})

		It("should read the resolved indices", func() {
			Expect(records).To(HaveLen(1))
			Expect(records[0].MerchantName).To(Equal("Cafe"))
			Expect(records[0].ImageURL).To(Equal("https://cdn.example.com/p.webp"))
		})
	})
})

var _ = Describe("ValidURL", func() {
	DescribeTable("url syntax",
		func(raw string, valid bool) {
			Expect(ValidURL(raw)).To(Equal(valid))
		},
		Entry("https", "https://example.com/a.jpg", true),
		Entry("http with port", "http://127.0.0.1:9000/a.jpg", true),
		Entry("query string", "https://cdn.example.com/img?id=4&w=200", true),
		Entry("relative", "/images/a.jpg", false),
		Entry("no host", "https:///a.jpg", false),
		Entry("data url", "data:image/png;base64,AAAA", false),
		Entry("embedded space", "https://example.com/a b.jpg", false),
		Entry("empty", "", false),
	)
})
