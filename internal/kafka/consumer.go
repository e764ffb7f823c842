package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r          messageReader
	workers    int
	backoff    time.Duration
	maxBackoff time.Duration
	log        *slog.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r messageReader, workers int, log *slog.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{r: r, workers: workers, backoff: 200 * time.Millisecond, maxBackoff: 5 * time.Second, log: log}
}

// Start memblok sampai ctx selesai atau reader error.
//
// Satu partisi selalu dilayani worker yang sama, dan pesan yang gagal diulang
// sampai sukses sebelum pesan berikutnya di partisi itu. Dengan begitu offset
// per partisi di-commit berurutan dan tidak ada pesan gagal yang terlewati.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	g, gctx := errgroup.WithContext(ctx)

	lanes := make([]chan kafka.Message, c.workers)
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 4)
		lane := lanes[i]
		id := i
		g.Go(func() error {
			for m := range lane {
				if !c.handle(gctx, id, h, m) {
					return nil // shutdown
				}
			}
			return nil
		})
	}

	// dispatcher loop
	g.Go(func() error {
		defer func() {
			for _, lane := range lanes {
				close(lane)
			}
		}()
		for {
			m, err := c.r.FetchMessage(gctx)
			if err != nil {
				// kecilkan noise saat shutdown
				if gctx.Err() != nil || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			select {
			case lanes[laneFor(m.Partition, c.workers)] <- m:
			case <-gctx.Done():
				return nil
			}
		}
	})

	return g.Wait()
}

// handle retries m with exponential backoff until the handler succeeds, then
// commits it. It returns false when ctx ends first; the offset stays
// uncommitted so the message is redelivered.
func (c *Consumer) handle(ctx context.Context, worker int, h Handler, m kafka.Message) bool {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			break
		}
		c.log.Error("handler failed", "worker", worker, "partition", m.Partition, "offset", m.Offset, "attempt", attempt, "err", err)
		if !sleepCtx(ctx, wait) {
			return false
		}
		if wait *= 2; wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Error("commit failed", "worker", worker, "partition", m.Partition, "offset", m.Offset, "err", err)
	}
	return true
}

func laneFor(partition, workers int) int {
	if partition < 0 {
		partition = -partition
	}
	return partition % workers
}

// sleepCtx returns false if ctx ended before d elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
