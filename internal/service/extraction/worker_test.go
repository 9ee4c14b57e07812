package extraction_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"docvision-service/internal/model"
	"docvision-service/internal/service/extraction"
	"docvision-service/internal/testutil"
	"docvision-service/pkg/queue"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var _ = Describe("Worker on a Redis stream", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		client    *redis.Client
		producer  queue.Producer
		consumer  *queue.RedisConsumer
		worker    *extraction.Worker
		status    atomic.Int32
		calls     atomic.Int32
		file      model.File
		extractor *extraction.Extractor
	)

	pendingCount := func() int64 {
		pending, err := client.XPending(ctx, "extract", "workers").Result()
		Expect(err).NotTo(HaveOccurred())
		return pending.Count
	}

	streamLen := func(stream string) int64 {
		n, err := client.XLen(ctx, stream).Result()
		Expect(err).NotTo(HaveOccurred())
		return n
	}

	processed := func() bool {
		var reloaded model.File
		if err := db.First(&reloaded, "id = ?", file.ID).Error; err != nil {
			return false
		}
		return reloaded.ProcessedAt != nil
	}

	BeforeEach(func() {
		ctx = context.Background()
		status.Store(http.StatusOK)
		calls.Store(0)

		var err error
		db, err = testutil.OpenInMemoryDB()
		Expect(err).NotTo(HaveOccurred())

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(int(status.Load()))
			_, _ = w.Write([]byte("text"))
		}))
		DeferCleanup(server.Close)

		mr, err := miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(mr.Close)
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(client.Close)

		org := model.Organization{Name: "Acme"}
		Expect(db.Create(&org).Error).To(Succeed())
		project := model.Project{Name: "P", OrganizationID: org.ID}
		Expect(db.Create(&project).Error).To(Succeed())
		file = model.File{Path: "projects/p/doc.pdf", Size: 3, MimeType: "application/pdf", OriginalFilename: "doc.pdf", ProjectID: project.ID}
		Expect(db.Create(&file).Error).To(Succeed())

		extractor = extraction.NewExtractor(db, testutil.NewMemoryStore(), extraction.Config{ProcessorURL: server.URL}, nil)

		producer = queue.NewRedisProducer(client, "extract", nil)
		consumer, err = queue.NewRedisConsumer(ctx, client, queue.ConsumerConfig{
			Stream:      "extract",
			Group:       "workers",
			Consumer:    "w1",
			Block:       20 * time.Millisecond,
			MaxAttempts: 3,
		}, nil)
		Expect(err).NotTo(HaveOccurred())
		worker = extraction.NewWorker(consumer, extractor, nil)
	})

	It("requeues failed jobs until the last attempt and then dead letters them", func() {
		status.Store(http.StatusInternalServerError)
		Expect(producer.Enqueue(ctx, queue.ExtractionJob{FileID: file.ID})).To(Succeed())

		for attempt := 1; attempt <= 3; attempt++ {
			messages, err := consumer.Read(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(messages).To(HaveLen(1))
			Expect(messages[0].Job.Attempt).To(Equal(attempt))
			worker.Handle(ctx, messages[0])
		}

		Expect(pendingCount()).To(BeZero())
		Expect(streamLen("extract_dlq")).To(Equal(int64(1)))

		messages, err := consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(BeEmpty())
	})

	It("keeps a job interrupted by shutdown pending until the reclaimer retries it", func() {
		Expect(producer.Enqueue(ctx, queue.ExtractionJob{FileID: file.ID})).To(Succeed())
		messages, err := consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(HaveLen(1))

		stopped, cancel := context.WithCancel(ctx)
		cancel()
		worker.Handle(stopped, messages[0])

		Expect(pendingCount()).To(Equal(int64(1)))
		Expect(streamLen("extract")).To(Equal(int64(1)))
		Expect(streamLen("extract_dlq")).To(BeZero())
		Expect(processed()).To(BeFalse())

		restarted, err := queue.NewRedisConsumer(ctx, client, queue.ConsumerConfig{
			Stream:   "extract",
			Group:    "workers",
			Consumer: "w2",
			Block:    20 * time.Millisecond,
		}, nil)
		Expect(err).NotTo(HaveOccurred())
		reclaimer := extraction.NewReclaimer(restarted, extraction.NewWorker(restarted, extractor, nil),
			extraction.ReclaimerConfig{MinIdle: time.Millisecond, Interval: time.Hour}, nil)

		Eventually(func() (int, error) {
			return reclaimer.ReclaimOnce(ctx)
		}).Should(Equal(1))

		Expect(processed()).To(BeTrue())
		Expect(pendingCount()).To(BeZero())
	})

	It("processes queued jobs and returns once cancelled", func() {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			done <- worker.Run(runCtx)
		}()

		Expect(producer.Enqueue(ctx, queue.ExtractionJob{FileID: file.ID})).To(Succeed())
		Eventually(processed).Should(BeTrue())
		Eventually(pendingCount).Should(BeZero())

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})

	It("dead letters a job that keeps getting stranded without calling the processor", func() {
		Expect(producer.Enqueue(ctx, queue.ExtractionJob{FileID: file.ID})).To(Succeed())
		messages, err := consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(HaveLen(1))

		msg := messages[0]
		msg.Deliveries = 4
		worker.Handle(ctx, msg)

		Expect(calls.Load()).To(BeZero())
		Expect(pendingCount()).To(BeZero())
		Expect(streamLen("extract_dlq")).To(Equal(int64(1)))
	})
})
