package store

import (
	"context"
	"strconv"
	"sync"

	"github.com/whaleflow/whaleflow/internal/trade"
)

// RedisClient abstracts the Redis operations used by RedisWriter.
// In production this is satisfied by a go-redis adapter; in tests by a mock.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...any) error
}

// RedisWriter mirrors the newest accepted trade per (platform, market) into
// Redis using the schema:
//
//	Key:    trade:{platform}:{market}
//	Fields: ts, size_usd, side, actor, trade_id
//
// Writes are non-blocking: trades are buffered in an internal channel and
// flushed by a dedicated goroutine. A repeated trade id for the same key is
// suppressed.
type RedisWriter struct {
	client RedisClient
	feed   <-chan trade.Trade
	buf    chan trade.Trade

	mu   sync.Mutex
	last map[string]string // Redis key → last written trade id
}

// NewRedisWriter creates a RedisWriter that reads accepted trades from feed.
func NewRedisWriter(client RedisClient, feed <-chan trade.Trade) *RedisWriter {
	return &RedisWriter{
		client: client,
		feed:   feed,
		buf:    make(chan trade.Trade, 1024),
		last:   make(map[string]string),
	}
}

// Run starts two goroutines: one to drain the feed into an internal buffer
// so the producer never blocks, and one to flush buffered trades to Redis.
// It blocks until ctx is cancelled.
func (rw *RedisWriter) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-rw.feed:
				if !ok {
					return
				}
				select {
				case rw.buf <- t:
				default:
					// Buffer full - drop to keep up.
				}
			}
		}
	}()

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-rw.buf:
				if !ok {
					return
				}
				rw.write(ctx, t)
			}
		}
	}()

	wg.Wait()
}

func (rw *RedisWriter) write(ctx context.Context, t trade.Trade) {
	key := "trade:" + string(t.Platform) + ":" + t.Market

	rw.mu.Lock()
	if t.TradeID != "" && rw.last[key] == t.TradeID {
		rw.mu.Unlock()
		return
	}
	rw.last[key] = t.TradeID
	rw.mu.Unlock()

	rw.client.HSet(ctx, key,
		"ts", strconv.FormatFloat(t.Timestamp, 'f', -1, 64),
		"size_usd", strconv.FormatFloat(t.SizeUSD, 'f', 2, 64),
		"side", t.Side,
		"actor", t.ActorAddress,
		"trade_id", t.TradeID,
	)
}
