package exporter

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Logic-Phantom/DataVille/cmd/server/internal/instrumentation"
	"github.com/Logic-Phantom/DataVille/pkg/models"
)

// QuoteSnapshotter is the simulator surface the exporter reads.
type QuoteSnapshotter interface {
	AllQuotes() map[string]models.Quote
}

// Exporter publishes every tick's quotes to Kafka as TickEnvelopes, keyed
// by symbol so partition ordering matches per-symbol ordering. Seq is
// monotonic per symbol, letting downstream consumers deduplicate.
type Exporter struct {
	logger  *zap.Logger
	writer  KafkaWriter
	source  QuoteSnapshotter
	metrics *instrumentation.Metrics
	seq     map[string]int64
}

func NewExporter(logger *zap.Logger, writer KafkaWriter, source QuoteSnapshotter, metrics *instrumentation.Metrics) *Exporter {
	return &Exporter{
		logger:  logger,
		writer:  writer,
		source:  source,
		metrics: metrics,
		seq:     make(map[string]int64),
	}
}

// ExportTick snapshots the quote table and writes one message per symbol.
// Called from the scheduler loop only, so seq needs no locking.
func (e *Exporter) ExportTick(ctx context.Context) {
	quotes := e.source.AllQuotes()
	if len(quotes) == 0 {
		return
	}

	symbols := make([]string, 0, len(quotes))
	for sym := range quotes {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	msgs := make([]kafka.Message, 0, len(symbols))
	for _, sym := range symbols {
		e.seq[sym]++
		payload, err := json.Marshal(models.TickEnvelope{Seq: e.seq[sym], Quote: quotes[sym]})
		if err != nil {
			e.logger.Error("Marshal tick envelope", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(sym), // Key ensures partition ordering
			Value: payload,
		})
	}

	if err := e.writer.WriteMessages(ctx, msgs...); err != nil {
		e.metrics.ExportErrors.Inc()
		e.logger.Error("Kafka Write Error", zap.Error(err))
	}
}

func (e *Exporter) Close() error {
	return e.writer.Close()
}

// NewWriter builds the production Kafka writer with batching tuned for the
// once-a-second export cadence. The writer is async, so WriteMessages never
// reports delivery failures; those surface through the Completion callback.
func NewWriter(brokers []string, topic string, logger *zap.Logger, metrics *instrumentation.Metrics) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				metrics.ExportErrors.Inc()
				logger.Error("Kafka Write Error", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
}
