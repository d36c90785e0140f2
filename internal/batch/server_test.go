package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/merchant-validator/internal/compliance"
	"github.com/zombor/merchant-validator/internal/sheet"
)

// multipartUpload builds a form body with one file part
func multipartUpload(filename, contentType string, data []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(h)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		validator   *mockValidator
		service     *Service
		server      *Server
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		validator = newMockValidator()
	})

	JustBeforeEach(func() {
		service = NewServiceWithDeps(db, validator, storage, sheet.LoadOptions{},
			&mockIDGenerator{id: "run-1"},
			&mockTimeSource{now: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		)
		server = NewServerWithMux(service, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	upload := func(filename, contentType string, data []byte) *http.Response {
		body, formType := multipartUpload(filename, contentType, data)
		resp, err := http.Post(ghttpServer.URL()+"/api/validate", formType, body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decodeError := func(resp *http.Response) string {
		defer resp.Body.Close()
		var body map[string]string
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		return body["error"]
	}

	Describe("handleHealth", func() {
		It("should report healthy", func() {
			resp, err := http.Get(ghttpServer.URL() + "/health")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(MatchJSON(`{"status":"healthy"}`))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/validate", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("handleValidate", func() {
		When("a dataset is uploaded", func() {
			var resp *http.Response

			JustBeforeEach(func() {
				resp = upload("merchants.csv", "text/csv", []byte(datasetCSV))
			})

			AfterEach(func() {
				resp.Body.Close()
			})

			It("should return status Created", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			})

			It("should return the summary and results", func() {
				var body struct {
					Success     bool   `json:"success"`
					DownloadURL string `json:"download_url"`
					Batch       Run    `json:"batch"`
					Summary     struct {
						Total           int                       `json:"total"`
						StatusBreakdown map[compliance.Status]int `json:"status_breakdown"`
						Skipped         int                       `json:"skipped"`
					} `json:"summary"`
					Results []map[string]any `json:"results"`
				}
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body.Success).To(BeTrue())
				Expect(body.Batch.ID).To(Equal("run-1"))
				Expect(body.DownloadURL).To(Equal("/api/batches/run-1/download"))
				Expect(body.Summary.Total).To(Equal(2))
				Expect(body.Summary.Skipped).To(Equal(1))
				Expect(body.Summary.StatusBreakdown).To(HaveKeyWithValue(compliance.StatusAccepted, 2))
				Expect(body.Summary.StatusBreakdown).To(HaveKeyWithValue(compliance.StatusError, 0))
				Expect(body.Results).To(HaveLen(2))
			})

			It("should set CORS headers", func() {
				Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			})
		})

		When("an image is uploaded without a content type", func() {
			It("should validate it as a single image", func() {
				resp := upload("storefront.png", "", pngBytes())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(validator.gotImageType).To(Equal("image/png"))
			})
		})

		When("the file type is not supported", func() {
			It("should return status Bad Request", func() {
				resp := upload("notes.txt", "text/plain", []byte("hello there"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp)).To(ContainSubstring("Invalid file type"))
			})
		})

		When("the dataset has no usable columns", func() {
			It("should return status Bad Request with the schema error", func() {
				resp := upload("merchants.csv", "text/csv", []byte("Amount,City\n1,Dubai\n"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp)).To(ContainSubstring("missing column"))
			})
		})

		When("storage fails", func() {
			BeforeEach(func() {
				storage.saveErr = errors.New("disk full")
			})

			It("should return status Internal Server Error", func() {
				resp := upload("merchants.csv", "text/csv", []byte(datasetCSV))
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(decodeError(resp)).To(Equal("Internal server error"))
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.WriteField("other", "value")).To(Succeed())
				Expect(writer.Close()).To(Succeed())

				resp, err := http.Post(ghttpServer.URL()+"/api/validate", writer.FormDataContentType(), body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp)).To(ContainSubstring("No file was selected"))
			})
		})

		When("the body is not a multipart form", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/validate", "application/json", bytes.NewBufferString("{}"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp)).To(Equal("Error parsing form"))
			})
		})

		When("the upload exceeds the size cap", func() {
			var resp *http.Response

			JustBeforeEach(func() {
				server.WithMaxUploadSize(1024)
				resp = upload("merchants.csv", "text/csv", bytes.Repeat([]byte("a,b\n"), 1024))
			})

			It("should return status Bad Request", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp)).To(Equal("File is too large. Maximum size is 1024 bytes."))
			})

			It("should not create a run", func() {
				resp.Body.Close()
				Expect(db.runs).To(BeEmpty())
				Expect(validator.gotDataset).To(BeZero())
			})
		})
	})

	Describe("batch endpoints", func() {
		BeforeEach(func() {
			db.runs["run-1"] = &Run{
				ID:         "run-1",
				Kind:       KindImage,
				ResultFile: "validation_results_run-1.xlsx",
				ReportFile: "run-1_report.json",
				ImageFile:  "run-1_photo.png",
				ImageType:  "image/png",
			}
			storage.files["validation_results_run-1.xlsx"] = []byte("xlsx-bytes")
			storage.files["run-1_report.json"] = []byte(`{"summary":{"total":1},"results":[],"skipped_rows":[]}`)
			storage.files["run-1_photo.png"] = []byte("png-bytes")
		})

		It("should list batches", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/batches")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			var runs []*Run
			Expect(json.NewDecoder(resp.Body).Decode(&runs)).To(Succeed())
			Expect(runs).To(HaveLen(1))
		})

		It("should return a batch with its report", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/batches/run-1")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var body struct {
				Batch   Run `json:"batch"`
				Summary struct {
					Total int `json:"total"`
				} `json:"summary"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body.Batch.ID).To(Equal("run-1"))
			Expect(body.Summary.Total).To(Equal(1))
		})

		It("should return 404 for an unknown batch", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/batches/nope")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should download the xlsx report", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/batches/run-1/download")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal(xlsxContentType))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("validation_results_run-1.xlsx"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("xlsx-bytes"))
		})

		It("should serve the uploaded image", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/batches/run-1/image")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
		})

		It("should delete a batch", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/batches/run-1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.runs).To(BeEmpty())
			Expect(storage.files).To(BeEmpty())
		})

		It("should return 404 when deleting an unknown batch", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/batches/nope", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})

var _ = Describe("Server.Start", func() {
	var (
		server *Server
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		server = NewServerWithMux(nil, http.NewServeMux())
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
	})

	When("the context is cancelled", func() {
		It("should shut down cleanly", func() {
			done := make(chan error, 1)
			go func() { done <- server.Start(ctx, "127.0.0.1:0") }()

			Consistently(done, 100*time.Millisecond).ShouldNot(Receive())
			cancel()

			var err error
			Eventually(done, 5*time.Second).Should(Receive(&err))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	When("the address cannot be bound", func() {
		It("should return an error", func() {
			err := server.Start(ctx, "127.0.0.1:-1")
			Expect(err).To(MatchError(ContainSubstring("serving http")))
		})
	})
})
