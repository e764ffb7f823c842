package kafka

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer: publish non-blocking ke inbox, goroutine background yang menulis ke Kafka.
// Publish tidak pernah menunggu; kalau inbox penuh pesan di-drop dan dicatat.
type Producer struct {
	w         messageWriter
	inbox     chan kafka.Message
	closeCh   chan struct{}
	closeOnce sync.Once
	timeout   time.Duration
	dropped   atomic.Int64
	log       *slog.Logger
}

func NewProducer(brokers []string, topic string, buf int, log *slog.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}, buf, log)
}

func newProducer(w messageWriter, buf int, log *slog.Logger) *Producer {
	if log == nil {
		log = slog.Default()
	}
	return &Producer{
		w:       w,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		timeout: 5 * time.Second,
		log:     log,
	}
}

// Start menjalankan writer loop. ctx dibatalkan = sama dengan Close.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			p.Close()
		case <-p.closeCh:
		}
	}()
	go p.loop()
}

func (p *Producer) loop() {
	defer close(p.closeCh)
	for m := range p.inbox {
		wctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.w.WriteMessages(wctx, m); err != nil {
			p.log.Error("kafka write failed", "topic", m.Topic, "key", string(m.Key), "err", err)
		}
		cancel()
	}
	if err := p.w.Close(); err != nil {
		p.log.Warn("kafka writer close", "err", err)
	}
}

func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	select {
	case <-p.closeCh:
		p.log.Warn("publish after close dropped", "key", string(key))
		return
	default:
	}
	defer func() {
		// inbox sudah ditutup di antara cek di atas dan send
		if recover() != nil {
			p.log.Warn("publish after close dropped", "key", string(key))
		}
	}()
	m := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	// inbox penuh (broker lambat/mati): drop, jangan blok request yang sudah commit
	select {
	case p.inbox <- m:
	default:
		p.dropped.Add(1)
		p.log.Warn("publish dropped, inbox full", "key", string(key), "buffer", cap(p.inbox))
	}
}

// Dropped counts messages discarded because the inbox was full.
func (p *Producer) Dropped() int64 { return p.dropped.Load() }

// Tutup channel supaya goroutine nge-flush sisa pesan lalu exit rapi. Aman dipanggil berkali-kali.
func (p *Producer) Close() { p.closeOnce.Do(func() { close(p.inbox) }) }

// Tunggu sampai goroutine selesai.
func (p *Producer) WaitClosed() { <-p.closeCh }
