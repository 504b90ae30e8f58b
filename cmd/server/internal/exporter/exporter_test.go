package exporter_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Logic-Phantom/DataVille/cmd/server/internal/exporter"
	"github.com/Logic-Phantom/DataVille/cmd/server/internal/instrumentation"
	"github.com/Logic-Phantom/DataVille/cmd/server/internal/testutils"
	"github.com/Logic-Phantom/DataVille/pkg/models"
)

type mockWriter struct {
	messages []kafka.Message
	err      error
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error { return nil }

func setup() (*exporter.Exporter, *mockWriter, *testutils.MockQuoteSource) {
	source := testutils.NewMockQuoteSource()
	source.Quotes["005930"] = models.Quote{Symbol: "005930", Price: 70000}
	source.Quotes["035720"] = models.Quote{Symbol: "035720", Price: 45000}

	writer := &mockWriter{}
	metrics := instrumentation.NewMetrics(prometheus.NewRegistry())
	return exporter.NewExporter(zap.NewNop(), writer, source, metrics), writer, source
}

func TestExportTick_OneMessagePerSymbol(t *testing.T) {
	exp, writer, _ := setup()

	exp.ExportTick(context.Background())

	if len(writer.messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(writer.messages))
	}
	for _, m := range writer.messages {
		var env models.TickEnvelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			t.Fatalf("Bad envelope payload: %v", err)
		}
		if string(m.Key) != env.Quote.Symbol {
			t.Errorf("Message key %q must match symbol %q", m.Key, env.Quote.Symbol)
		}
		if env.Seq != 1 {
			t.Errorf("First export should carry seq 1, got %d", env.Seq)
		}
	}
}

func TestExportTick_SeqMonotonicPerSymbol(t *testing.T) {
	exp, writer, _ := setup()

	exp.ExportTick(context.Background())
	exp.ExportTick(context.Background())
	exp.ExportTick(context.Background())

	lastSeq := map[string]int64{}
	for _, m := range writer.messages {
		var env models.TickEnvelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			t.Fatalf("Bad envelope payload: %v", err)
		}
		if env.Seq != lastSeq[env.Quote.Symbol]+1 {
			t.Errorf("%s: seq jumped %d -> %d", env.Quote.Symbol, lastSeq[env.Quote.Symbol], env.Seq)
		}
		lastSeq[env.Quote.Symbol] = env.Seq
	}
}

func TestExportTick_WriteErrorCounted(t *testing.T) {
	source := testutils.NewMockQuoteSource()
	source.Quotes["005930"] = models.Quote{Symbol: "005930", Price: 70000}

	writer := &mockWriter{err: errors.New("broker down")}
	metrics := instrumentation.NewMetrics(prometheus.NewRegistry())
	exp := exporter.NewExporter(zap.NewNop(), writer, source, metrics)

	exp.ExportTick(context.Background())

	if got := testutil.ToFloat64(metrics.ExportErrors); got != 1 {
		t.Errorf("Expected 1 export error, counter reads %v", got)
	}
}

func TestNewWriter_CompletionCountsFailures(t *testing.T) {
	metrics := instrumentation.NewMetrics(prometheus.NewRegistry())
	w := exporter.NewWriter([]string{"localhost:9092"}, "stock.ticks", zap.NewNop(), metrics)

	// The async writer reports delivery outcomes through Completion, not
	// through WriteMessages.
	w.Completion([]kafka.Message{{Key: []byte("005930")}}, errors.New("broker down"))
	w.Completion([]kafka.Message{{Key: []byte("005930")}}, nil)

	if got := testutil.ToFloat64(metrics.ExportErrors); got != 1 {
		t.Errorf("Expected 1 export error after one failed batch, counter reads %v", got)
	}
}

func TestExportTick_EmptyTableIsNoop(t *testing.T) {
	exp, writer, source := setup()
	source.Quotes = map[string]models.Quote{}

	exp.ExportTick(context.Background())

	if len(writer.messages) != 0 {
		t.Errorf("Empty quote table must not write anything")
	}
}
