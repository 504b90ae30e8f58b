package relay

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Logic-Phantom/DataVille/pkg/models"
)

const (
	quoteKeyPrefix    = "quote:"
	tickChannelPrefix = "ticks."
	quoteTTL          = time.Hour // TTL prevents unbounded memory growth
)

// Relay moves exported tick envelopes from Kafka into Redis: the latest
// quote per symbol under quote:<symbol>, and a pub/sub notification on
// ticks.<symbol>. Workers are sharded by symbol so per-symbol ordering and
// seq deduplication both hold.
type Relay struct {
	logger     Logger
	rdb        RedisClient
	reader     KafkaReader
	numWorkers int
}

func NewRelay(logger Logger, rdb RedisClient, reader KafkaReader, numWorkers int) *Relay {
	return &Relay{
		logger:     logger,
		rdb:        rdb,
		reader:     reader,
		numWorkers: numWorkers,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, r.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < r.numWorkers; i++ {
		workerChans[i] = make(chan []byte, 100)
		wg.Add(1)
		go r.worker(i, workerChans[i], &wg)
	}

	go func() {
		r.logger.Info("Relay Started", zap.Int("workers", r.numWorkers))
		for {
			m, err := r.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				r.logger.Error("Kafka Read Error", zap.Error(err))
				continue
			}

			// Deterministic Sharding: Same symbol always goes to same worker
			workerID := getWorkerID(m.Key, r.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				// NON-BLOCKING: full channel drops the packet; for live
				// quotes "latest" beats "all".
				r.logger.Warn("Dropping slow packet", zap.String("key", string(m.Key)), zap.Int("worker_id", workerID))
			}
		}
	}()

	<-ctx.Done()
	r.logger.Info("Shutdown signal received, stopping relay...")

	for _, ch := range workerChans {
		close(ch)
	}
	r.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (r *Relay) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background() // Background context prevents cancellation mid-Redis write

	// Local dedup state (only works because of deterministic sharding)
	lastSeq := make(map[string]int64)

	for payload := range msgs {
		var env models.TickEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			r.logger.Error("JSON Unmarshal Error", zap.Error(err))
			continue
		}

		symbol := env.Quote.Symbol
		if symbol == "" {
			r.logger.Warn("Envelope without symbol, skipping")
			continue
		}

		if env.Seq <= lastSeq[symbol] {
			r.logger.Debug("Skipping duplicate envelope", zap.String("symbol", symbol), zap.Int64("seq", env.Seq))
			continue
		}

		// Atomic SET + PUBLISH in single pipeline for consistency
		pipe := r.rdb.Pipeline()
		pipe.Set(ctx, quoteKeyPrefix+symbol, payload, quoteTTL)
		pipe.Publish(ctx, tickChannelPrefix+symbol, payload)

		if _, err := pipe.Exec(ctx); err != nil {
			r.logger.Error("Redis Pipeline Error", zap.Error(err), zap.String("symbol", symbol))
		} else {
			r.logger.Debug("Relayed", zap.String("symbol", symbol), zap.Int("worker_id", id), zap.Int64("seq", env.Seq))
			lastSeq[symbol] = env.Seq
		}
	}
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32()) % numWorkers
}
