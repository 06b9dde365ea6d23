package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/whaleflow/whaleflow/internal/trade"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS whale_flows (
	id SERIAL PRIMARY KEY,
	timestamp DOUBLE PRECISION NOT NULL,
	platform TEXT NOT NULL,
	market TEXT,
	market_label TEXT,
	size_usd DOUBLE PRECISION NOT NULL,
	side TEXT,
	actor_address TEXT,
	price DOUBLE PRECISION,
	quantity DOUBLE PRECISION,
	trade_id TEXT,
	market_is_niche BOOLEAN,
	market_is_stock BOOLEAN,
	market_volume DOUBLE PRECISION,
	cluster_id TEXT,
	market_category TEXT,
	UNIQUE (platform, trade_id)
)`

// PostgresStore persists whale flows in Postgres. Statements run on the
// pooled *sqlx.DB; no connection is held across calls.
type PostgresStore struct {
	db *sqlx.DB

	nowFunc func() float64
}

// NewPostgresStore connects with the given lib/pq DSN and migrates the
// schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{
		db:      db,
		nowFunc: func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	if _, err := s.db.Exec(postgresSchema); err != nil {
		return fmt.Errorf("create whale_flows: %w", err)
	}
	for _, col := range evolvedColumns {
		ddl := col.ddl
		switch ddl {
		case "INTEGER":
			ddl = "BOOLEAN"
		case "REAL":
			ddl = "DOUBLE PRECISION"
		}
		stmt := fmt.Sprintf("ALTER TABLE whale_flows ADD COLUMN IF NOT EXISTS %s %s", col.name, ddl)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}
	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_whale_flows_ts ON whale_flows(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_whale_flows_actor ON whale_flows(actor_address)",
	} {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// AddTrade inserts a flow, silently ignoring dust and duplicate
// (platform, trade_id) pairs.
func (s *PostgresStore) AddTrade(t trade.Trade) error {
	if t.SizeUSD < MinTradeUSD {
		return nil
	}
	_, err := s.db.Exec(`
		INSERT INTO whale_flows (
			timestamp, platform, market, market_label, size_usd, side,
			actor_address, price, quantity, trade_id,
			market_is_niche, market_is_stock, market_volume, cluster_id,
			market_category
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (platform, trade_id) DO NOTHING`,
		t.Timestamp, string(t.Platform), nullString(t.Market), nullString(t.MarketLabel),
		t.SizeUSD, nullString(t.Side), nullString(t.ActorAddress),
		nullFloat(t.Price), nullFloat(t.Quantity), nullString(t.TradeID),
		nullBool(t.MarketIsNiche), nullBool(t.MarketIsStock), nullFloat(t.MarketVolume),
		nullString(t.ClusterID), nullString(t.MarketCategory),
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// RecentTrades returns matching flows newest-first.
func (s *PostgresStore) RecentTrades(q RecentQuery) ([]trade.Trade, error) {
	where := []string{"size_usd >= ?"}
	args := []any{q.MinSizeUSD}
	if q.SinceTS != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *q.SinceTS)
	}
	if len(q.Platforms) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(q.Platforms)), ", ")
		where = append(where, "lower(platform) IN ("+placeholders+")")
		for _, p := range q.Platforms {
			args = append(args, strings.ToLower(p))
		}
	}
	if q.Wallet != "" {
		where = append(where, "actor_address = ?")
		args = append(args, q.Wallet)
	}
	query := s.db.Rebind(fmt.Sprintf(
		"SELECT %s FROM whale_flows WHERE %s ORDER BY timestamp DESC LIMIT ?",
		flowColumns, strings.Join(where, " AND "),
	))
	args = append(args, q.Limit)

	var rows []flowRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("query recent trades: %w", err)
	}
	out := make([]trade.Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toTrade())
	}
	return out, nil
}

// Stats summarises the table over the standard 24h/60s cutoffs.
func (s *PostgresStore) Stats() (Stats, error) {
	now := s.nowFunc()
	var stats Stats

	if err := s.db.Get(&stats.Trades,
		"SELECT COUNT(*) FROM whale_flows WHERE timestamp >= $1", now-86400); err != nil {
		return Stats{}, fmt.Errorf("count 24h trades: %w", err)
	}
	var perMinute int
	if err := s.db.Get(&perMinute,
		"SELECT COUNT(*) FROM whale_flows WHERE timestamp >= $1", now-60); err != nil {
		return Stats{}, fmt.Errorf("count 60s trades: %w", err)
	}
	if err := s.db.Get(&stats.Wallets, `
		SELECT COUNT(DISTINCT actor_address) FROM whale_flows
		WHERE timestamp >= $1 AND actor_address IS NOT NULL AND actor_address != ''`,
		now-86400); err != nil {
		return Stats{}, fmt.Errorf("count wallets: %w", err)
	}
	var last sql.NullFloat64
	if err := s.db.Get(&last, "SELECT MAX(timestamp) FROM whale_flows"); err != nil {
		return Stats{}, fmt.Errorf("query last trade: %w", err)
	}
	if last.Valid {
		v := last.Float64
		stats.Last = &v
	}
	stats.Flow = flowString(perMinute)
	return stats, nil
}

// Leaderboard ranks wallets by windowed volume.
func (s *PostgresStore) Leaderboard(limit int, sinceTS *float64) ([]LeaderboardEntry, error) {
	cutoff := cutoffOrDefault(sinceTS, s.nowFunc())
	var rows []leaderboardRow
	if err := s.db.Select(&rows, s.db.Rebind(leaderboardQuery), cutoff, limit); err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	entries := make([]LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, LeaderboardEntry{
			Address:  r.ActorAddress,
			Volume:   r.Volume,
			Position: positionFor(r.YesVolume.Float64, r.NoVolume.Float64),
		})
	}
	return entries, nil
}

// WalletSummary aggregates one wallet's windowed activity; nil when the
// wallet has no matching rows.
func (s *PostgresStore) WalletSummary(address string, sinceTS *float64) (*WalletSummary, error) {
	if address == "" {
		return nil, nil
	}
	cutoff := cutoffOrDefault(sinceTS, s.nowFunc())
	var row summaryRow
	if err := s.db.Get(&row, s.db.Rebind(walletSummaryQuery), address, cutoff); err != nil {
		return nil, fmt.Errorf("query wallet summary: %w", err)
	}
	if row.Trades == 0 {
		return nil, nil
	}
	return &WalletSummary{
		Trades:    row.Trades,
		Volume:    row.Volume.Float64,
		YesVolume: row.YesVolume.Float64,
		NoVolume:  row.NoVolume.Float64,
		LastTS:    row.LastTS.Float64,
	}, nil
}

// AllWallets lists wallets by windowed volume with their dominant category.
func (s *PostgresStore) AllWallets(limit int, sinceTS *float64) ([]WalletActivity, error) {
	cutoff := cutoffOrDefault(sinceTS, s.nowFunc())
	var rows []walletRow
	if err := s.db.Select(&rows, s.db.Rebind(allWalletsQuery), cutoff, cutoff, limit); err != nil {
		return nil, fmt.Errorf("query all wallets: %w", err)
	}
	wallets := make([]WalletActivity, 0, len(rows))
	for _, r := range rows {
		wallets = append(wallets, WalletActivity{
			Address:     r.ActorAddress,
			Volume:      r.Volume,
			Trades:      r.Trades,
			LastTS:      r.LastTS.Float64,
			TopCategory: categoryOrMixed(r.TopCategory.String),
		})
	}
	return wallets, nil
}

// WalletAnalytics breaks one wallet's windowed flow down by category; nil
// when the wallet has no matching rows.
func (s *PostgresStore) WalletAnalytics(address string, sinceTS *float64) (*WalletAnalytics, error) {
	if address == "" {
		return nil, nil
	}
	cutoff := cutoffOrDefault(sinceTS, s.nowFunc())
	var rows []categoryRow
	if err := s.db.Select(&rows, s.db.Rebind(walletAnalyticsQuery), address, cutoff); err != nil {
		return nil, fmt.Errorf("query wallet analytics: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	categories := make(map[string]CategoryStats, len(rows))
	for _, r := range rows {
		key := categoryOrMixed(r.Category.String)
		c := categories[key]
		c.Volume += r.Volume
		c.Trades += r.Trades
		categories[key] = c
	}
	return &WalletAnalytics{
		Categories:     categories,
		DiversityScore: diversityScore(categories),
	}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }
