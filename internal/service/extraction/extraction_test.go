package extraction_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"

	"docvision-service/internal/model"
	"docvision-service/internal/service/extraction"
	"docvision-service/internal/testutil"
	"docvision-service/pkg/queue"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

type mockConsumer struct {
	acked       []queue.Message
	requeued    []queue.Message
	deadLetters []queue.Message
	maxAttempts int
}

func (m *mockConsumer) Read(context.Context) ([]queue.Message, error) { return nil, nil }

func (m *mockConsumer) Ack(_ context.Context, msg queue.Message) error {
	m.acked = append(m.acked, msg)
	return nil
}

func (m *mockConsumer) Requeue(_ context.Context, msg queue.Message, _ string) error {
	m.requeued = append(m.requeued, msg)
	return nil
}

func (m *mockConsumer) SendDLQ(_ context.Context, msg queue.Message, _ string) error {
	m.deadLetters = append(m.deadLetters, msg)
	return nil
}

func (m *mockConsumer) MaxAttempts() int { return m.maxAttempts }

var _ = Describe("Extraction", func() {
	var (
		db        *gorm.DB
		store     *testutil.MemoryStore
		server    *httptest.Server
		status    int
		gotAuth   string
		gotURL    string
		file      model.File
		extractor *extraction.Extractor
	)

	BeforeEach(func() {
		var err error
		db, err = testutil.OpenInMemoryDB()
		Expect(err).NotTo(HaveOccurred())
		store = testutil.NewMemoryStore()
		status = http.StatusOK

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			var body map[string]string
			data, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(data, &body)
			gotURL = body["document_url"]
			w.WriteHeader(status)
			_, _ = w.Write([]byte("# Extracted\nhello"))
		}))
		DeferCleanup(server.Close)

		org := model.Organization{Name: "Acme"}
		Expect(db.Create(&org).Error).To(Succeed())
		project := model.Project{Name: "P", OrganizationID: org.ID}
		Expect(db.Create(&project).Error).To(Succeed())
		file = model.File{Path: "projects/p/doc.pdf", Size: 3, MimeType: "application/pdf", OriginalFilename: "doc.pdf", ProjectID: project.ID}
		Expect(db.Create(&file).Error).To(Succeed())

		extractor = extraction.NewExtractor(db, store, extraction.Config{
			ProcessorURL: server.URL,
			AuthToken:    "token",
		}, nil)
	})

	Describe("Extractor", func() {
		It("stores the processor output and the processing time", func() {
			Expect(extractor.Extract(context.Background(), file.ID)).To(Succeed())

			Expect(gotAuth).To(Equal("Bearer token"))
			Expect(gotURL).To(HavePrefix("https://storage.test/projects/p/doc.pdf"))

			var reloaded model.File
			Expect(db.First(&reloaded, "id = ?", file.ID).Error).To(Succeed())
			Expect(reloaded.Contents).NotTo(BeNil())
			Expect(*reloaded.Contents).To(Equal("# Extracted\nhello"))
			Expect(reloaded.ProcessedAt).NotTo(BeNil())
		})

		It("reports processor failures", func() {
			status = http.StatusBadGateway
			err := extractor.Extract(context.Background(), file.ID)
			Expect(err).To(MatchError(ContainSubstring("status 502")))

			var reloaded model.File
			Expect(db.First(&reloaded, "id = ?", file.ID).Error).To(Succeed())
			Expect(reloaded.Contents).To(BeNil())
		})

		It("returns ErrFileGone for unknown files", func() {
			err := extractor.Extract(context.Background(), uuid.New())
			Expect(errors.Is(err, extraction.ErrFileGone)).To(BeTrue())
		})
	})

	Describe("Worker.Handle", func() {
		var (
			consumer *mockConsumer
			worker   *extraction.Worker
		)

		BeforeEach(func() {
			consumer = &mockConsumer{maxAttempts: 3}
			worker = extraction.NewWorker(consumer, extractor, nil)
		})

		It("acks processed jobs", func() {
			worker.Handle(context.Background(), queue.Message{ID: "1-0", Job: queue.ExtractionJob{FileID: file.ID, Attempt: 1}})
			Expect(consumer.acked).To(HaveLen(1))
		})

		It("acks jobs whose file is gone", func() {
			worker.Handle(context.Background(), queue.Message{ID: "1-0", Job: queue.ExtractionJob{FileID: uuid.New(), Attempt: 1}})
			Expect(consumer.acked).To(HaveLen(1))
			Expect(consumer.requeued).To(BeEmpty())
		})

		It("requeues failures while attempts remain", func() {
			status = http.StatusInternalServerError
			worker.Handle(context.Background(), queue.Message{ID: "1-0", Job: queue.ExtractionJob{FileID: file.ID, Attempt: 2}})
			Expect(consumer.requeued).To(HaveLen(1))
			Expect(consumer.deadLetters).To(BeEmpty())
		})

		It("dead letters the last attempt", func() {
			status = http.StatusInternalServerError
			worker.Handle(context.Background(), queue.Message{ID: "1-0", Job: queue.ExtractionJob{FileID: file.ID, Attempt: 3}})
			Expect(consumer.requeued).To(BeEmpty())
			Expect(consumer.deadLetters).To(HaveLen(1))
		})
	})
})
