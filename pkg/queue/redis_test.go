package queue_test

import (
	"context"
	"time"

	"docvision-service/pkg/queue"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
)

var _ = Describe("Redis stream queue", func() {
	var (
		ctx      context.Context
		client   *redis.Client
		producer queue.Producer
		consumer *queue.RedisConsumer
	)

	newConsumer := func(name string) *queue.RedisConsumer {
		c, err := queue.NewRedisConsumer(ctx, client, queue.ConsumerConfig{
			Stream:      "jobs",
			Group:       "workers",
			Consumer:    name,
			Block:       20 * time.Millisecond,
			MaxAttempts: 3,
		}, nil)
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	pendingCount := func() int64 {
		pending, err := client.XPending(ctx, "jobs", "workers").Result()
		Expect(err).NotTo(HaveOccurred())
		return pending.Count
	}

	readOne := func(c *queue.RedisConsumer) queue.Message {
		messages, err := c.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(HaveLen(1))
		return messages[0]
	}

	BeforeEach(func() {
		ctx = context.Background()
		mr, err := miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(mr.Close)

		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(client.Close)

		producer = queue.NewRedisProducer(client, "jobs", nil)
		consumer = newConsumer("c1")
	})

	It("delivers enqueued jobs starting at attempt one", func() {
		id := uuid.New()
		Expect(producer.Enqueue(ctx, queue.ExtractionJob{FileID: id})).To(Succeed())

		msg := readOne(consumer)
		Expect(msg.Job.FileID).To(Equal(id))
		Expect(msg.Job.Attempt).To(Equal(1))
		Expect(msg.Deliveries).To(Equal(int64(1)))
		Expect(pendingCount()).To(Equal(int64(1)))

		Expect(consumer.Ack(ctx, msg)).To(Succeed())
		Expect(pendingCount()).To(BeZero())
	})

	It("returns no messages when the stream stays empty", func() {
		messages, err := consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(BeEmpty())
	})

	It("requeues with the attempt bumped and the last error", func() {
		Expect(producer.Enqueue(ctx, queue.ExtractionJob{FileID: uuid.New()})).To(Succeed())
		first := readOne(consumer)

		Expect(consumer.Requeue(ctx, first, "processor down")).To(Succeed())
		Expect(pendingCount()).To(BeZero())

		second := readOne(consumer)
		Expect(second.ID).NotTo(Equal(first.ID))
		Expect(second.Job.FileID).To(Equal(first.Job.FileID))
		Expect(second.Job.Attempt).To(Equal(2))
		Expect(second.Raw.Values).To(HaveKeyWithValue("last_error", "processor down"))
	})

	It("moves dead letters to the _dlq stream", func() {
		id := uuid.New()
		Expect(producer.Enqueue(ctx, queue.ExtractionJob{FileID: id, Attempt: 3})).To(Succeed())
		msg := readOne(consumer)

		Expect(consumer.SendDLQ(ctx, msg, "gave up")).To(Succeed())
		Expect(pendingCount()).To(BeZero())

		entries, err := client.XRange(ctx, "jobs_dlq", "-", "+").Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Values).To(HaveKeyWithValue("file_id", id.String()))
		Expect(entries[0].Values).To(HaveKeyWithValue("attempt", "3"))
		Expect(entries[0].Values).To(HaveKeyWithValue("error", "gave up"))
	})

	It("acks malformed entries instead of returning them", func() {
		Expect(client.XAdd(ctx, &redis.XAddArgs{
			Stream: "jobs",
			Values: map[string]any{"file_id": "not-a-uuid"},
		}).Err()).To(Succeed())

		messages, err := consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(BeEmpty())
		Expect(pendingCount()).To(BeZero())
	})

	Describe("ClaimStale", func() {
		It("hands jobs left unsettled by a stopped consumer to another one", func() {
			Expect(producer.Enqueue(ctx, queue.ExtractionJob{FileID: uuid.New()})).To(Succeed())
			stranded := readOne(consumer)

			other := newConsumer("c2")
			fresh, err := other.Read(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(fresh).To(BeEmpty())

			claimed, err := other.ClaimStale(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).To(HaveLen(1))
			Expect(claimed[0].ID).To(Equal(stranded.ID))
			Expect(claimed[0].Job).To(Equal(stranded.Job))
			Expect(claimed[0].Deliveries).To(Equal(int64(2)))

			Expect(other.Ack(ctx, claimed[0])).To(Succeed())
			Expect(pendingCount()).To(BeZero())
		})

		It("leaves jobs that have not been idle long enough", func() {
			Expect(producer.Enqueue(ctx, queue.ExtractionJob{FileID: uuid.New()})).To(Succeed())
			readOne(consumer)

			claimed, err := newConsumer("c2").ClaimStale(ctx, time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).To(BeEmpty())
			Expect(pendingCount()).To(Equal(int64(1)))
		})
	})
})
