package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/whaleflow/whaleflow/internal/trade"
)

const whaleFlowsSchema = `
CREATE TABLE IF NOT EXISTS whale_flows (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp REAL NOT NULL,
	platform TEXT NOT NULL,
	market TEXT,
	market_label TEXT,
	size_usd REAL NOT NULL,
	side TEXT,
	actor_address TEXT,
	price REAL,
	quantity REAL,
	trade_id TEXT,
	market_is_niche INTEGER,
	market_is_stock INTEGER,
	market_volume REAL,
	cluster_id TEXT,
	market_category TEXT,
	UNIQUE(platform, trade_id) ON CONFLICT IGNORE
)`

// evolvedColumns are added by ALTER TABLE when opening a database created by
// an older schema.
var evolvedColumns = []struct{ name, ddl string }{
	{"market_label", "TEXT"},
	{"market_is_niche", "INTEGER"},
	{"market_is_stock", "INTEGER"},
	{"market_volume", "REAL"},
	{"cluster_id", "TEXT"},
	{"market_category", "TEXT"},
}

// flowRow is the sqlx scan target shared by the SQL backends. Booleans are
// stored as 0/1 in SQLite and natively in Postgres; sql.NullBool covers both.
type flowRow struct {
	Timestamp      float64         `db:"timestamp"`
	Platform       string          `db:"platform"`
	Market         sql.NullString  `db:"market"`
	MarketLabel    sql.NullString  `db:"market_label"`
	SizeUSD        float64         `db:"size_usd"`
	Side           sql.NullString  `db:"side"`
	ActorAddress   sql.NullString  `db:"actor_address"`
	Price          sql.NullFloat64 `db:"price"`
	Quantity       sql.NullFloat64 `db:"quantity"`
	TradeID        sql.NullString  `db:"trade_id"`
	MarketIsNiche  sql.NullBool    `db:"market_is_niche"`
	MarketIsStock  sql.NullBool    `db:"market_is_stock"`
	MarketVolume   sql.NullFloat64 `db:"market_volume"`
	ClusterID      sql.NullString  `db:"cluster_id"`
	MarketCategory sql.NullString  `db:"market_category"`
}

func (r flowRow) toTrade() trade.Trade {
	t := trade.Trade{
		Timestamp:      r.Timestamp,
		Platform:       trade.Platform(r.Platform),
		Market:         r.Market.String,
		MarketLabel:    r.MarketLabel.String,
		SizeUSD:        r.SizeUSD,
		Side:           r.Side.String,
		ActorAddress:   r.ActorAddress.String,
		TradeID:        r.TradeID.String,
		ClusterID:      r.ClusterID.String,
		MarketCategory: r.MarketCategory.String,
	}
	if r.Price.Valid {
		v := r.Price.Float64
		t.Price = &v
	}
	if r.Quantity.Valid {
		v := r.Quantity.Float64
		t.Quantity = &v
	}
	if r.MarketIsNiche.Valid {
		v := r.MarketIsNiche.Bool
		t.MarketIsNiche = &v
	}
	if r.MarketIsStock.Valid {
		v := r.MarketIsStock.Bool
		t.MarketIsStock = &v
	}
	if r.MarketVolume.Valid {
		v := r.MarketVolume.Float64
		t.MarketVolume = &v
	}
	return t
}

// nullString stores "" as NULL so the (platform, trade_id) unique constraint
// never collides on id-less trades.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

// SQLiteStore persists whale flows in an embedded SQLite database.
type SQLiteStore struct {
	db *sqlx.DB

	nowFunc func() float64
}

// NewSQLiteStore opens (creating parent directories as needed) and migrates
// the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(30000)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &SQLiteStore{
		db:      db,
		nowFunc: func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(whaleFlowsSchema); err != nil {
		return fmt.Errorf("create whale_flows: %w", err)
	}
	var columns []struct {
		Name string `db:"name"`
	}
	if err := s.db.Select(&columns, "SELECT name FROM pragma_table_info('whale_flows')"); err != nil {
		return fmt.Errorf("inspect whale_flows: %w", err)
	}
	existing := map[string]bool{}
	for _, c := range columns {
		existing[c.Name] = true
	}
	for _, col := range evolvedColumns {
		if existing[col.name] {
			continue
		}
		ddl := fmt.Sprintf("ALTER TABLE whale_flows ADD COLUMN %s %s", col.name, col.ddl)
		if _, err := s.db.Exec(ddl); err != nil {
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
func (s *SQLiteStore) AddTrade(t trade.Trade) error {
	if t.SizeUSD < MinTradeUSD {
		return nil
	}
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO whale_flows (
			timestamp, platform, market, market_label, size_usd, side,
			actor_address, price, quantity, trade_id,
			market_is_niche, market_is_stock, market_volume, cluster_id,
			market_category
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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

const flowColumns = `timestamp, platform, market, market_label, size_usd, side, actor_address,
	price, quantity, trade_id, market_is_niche, market_is_stock, market_volume,
	cluster_id, market_category`

// RecentTrades returns matching flows newest-first.
func (s *SQLiteStore) RecentTrades(q RecentQuery) ([]trade.Trade, error) {
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
	query := fmt.Sprintf(
		"SELECT %s FROM whale_flows WHERE %s ORDER BY timestamp DESC LIMIT ?",
		flowColumns, strings.Join(where, " AND "),
	)
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
func (s *SQLiteStore) Stats() (Stats, error) {
	now := s.nowFunc()
	var stats Stats

	if err := s.db.Get(&stats.Trades,
		"SELECT COUNT(*) FROM whale_flows WHERE timestamp >= ?", now-86400); err != nil {
		return Stats{}, fmt.Errorf("count 24h trades: %w", err)
	}
	var perMinute int
	if err := s.db.Get(&perMinute,
		"SELECT COUNT(*) FROM whale_flows WHERE timestamp >= ?", now-60); err != nil {
		return Stats{}, fmt.Errorf("count 60s trades: %w", err)
	}
	if err := s.db.Get(&stats.Wallets, `
		SELECT COUNT(DISTINCT actor_address) FROM whale_flows
		WHERE timestamp >= ? AND actor_address IS NOT NULL AND actor_address != ''`,
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

type leaderboardRow struct {
	ActorAddress string          `db:"actor_address"`
	Volume       float64         `db:"volume"`
	YesVolume    sql.NullFloat64 `db:"yes_volume"`
	NoVolume     sql.NullFloat64 `db:"no_volume"`
}

const leaderboardQuery = `
	SELECT actor_address,
	       SUM(size_usd) AS volume,
	       SUM(CASE WHEN lower(side) IN ('yes', 'buy') THEN size_usd ELSE 0 END) AS yes_volume,
	       SUM(CASE WHEN lower(side) IN ('no', 'sell') THEN size_usd ELSE 0 END) AS no_volume
	FROM whale_flows
	WHERE timestamp >= ? AND actor_address IS NOT NULL AND actor_address != ''
	GROUP BY actor_address
	ORDER BY volume DESC
	LIMIT ?`

// Leaderboard ranks wallets by windowed volume.
func (s *SQLiteStore) Leaderboard(limit int, sinceTS *float64) ([]LeaderboardEntry, error) {
	cutoff := cutoffOrDefault(sinceTS, s.nowFunc())
	var rows []leaderboardRow
	if err := s.db.Select(&rows, leaderboardQuery, cutoff, limit); err != nil {
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

type summaryRow struct {
	Trades    int             `db:"trades"`
	Volume    sql.NullFloat64 `db:"volume"`
	YesVolume sql.NullFloat64 `db:"yes_volume"`
	NoVolume  sql.NullFloat64 `db:"no_volume"`
	LastTS    sql.NullFloat64 `db:"last_ts"`
}

const walletSummaryQuery = `
	SELECT COUNT(*) AS trades,
	       SUM(size_usd) AS volume,
	       SUM(CASE WHEN lower(side) IN ('yes', 'buy') THEN size_usd ELSE 0 END) AS yes_volume,
	       SUM(CASE WHEN lower(side) IN ('no', 'sell') THEN size_usd ELSE 0 END) AS no_volume,
	       MAX(timestamp) AS last_ts
	FROM whale_flows
	WHERE actor_address = ? AND timestamp >= ?`

// WalletSummary aggregates one wallet's windowed activity; nil when the
// wallet has no matching rows.
func (s *SQLiteStore) WalletSummary(address string, sinceTS *float64) (*WalletSummary, error) {
	if address == "" {
		return nil, nil
	}
	cutoff := cutoffOrDefault(sinceTS, s.nowFunc())
	var row summaryRow
	if err := s.db.Get(&row, walletSummaryQuery, address, cutoff); err != nil {
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

type walletRow struct {
	ActorAddress string          `db:"actor_address"`
	Volume       float64         `db:"volume"`
	Trades       int             `db:"trades"`
	LastTS       sql.NullFloat64 `db:"last_ts"`
	TopCategory  sql.NullString  `db:"top_category"`
}

const allWalletsQuery = `
	SELECT w.actor_address,
	       SUM(w.size_usd) AS volume,
	       COUNT(*) AS trades,
	       MAX(w.timestamp) AS last_ts,
	       (
	           SELECT c.market_category
	           FROM whale_flows c
	           WHERE c.actor_address = w.actor_address
	             AND c.timestamp >= ?
	             AND c.market_category IS NOT NULL AND c.market_category != ''
	           GROUP BY c.market_category
	           ORDER BY SUM(c.size_usd) DESC
	           LIMIT 1
	       ) AS top_category
	FROM whale_flows w
	WHERE w.timestamp >= ? AND w.actor_address IS NOT NULL AND w.actor_address != ''
	GROUP BY w.actor_address
	ORDER BY volume DESC
	LIMIT ?`

// AllWallets lists wallets by windowed volume with their dominant category.
func (s *SQLiteStore) AllWallets(limit int, sinceTS *float64) ([]WalletActivity, error) {
	cutoff := cutoffOrDefault(sinceTS, s.nowFunc())
	var rows []walletRow
	if err := s.db.Select(&rows, allWalletsQuery, cutoff, cutoff, limit); err != nil {
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

type categoryRow struct {
	Category sql.NullString `db:"category"`
	Volume   float64        `db:"volume"`
	Trades   int            `db:"trades"`
}

const walletAnalyticsQuery = `
	SELECT market_category AS category,
	       SUM(size_usd) AS volume,
	       COUNT(*) AS trades
	FROM whale_flows
	WHERE actor_address = ? AND timestamp >= ?
	GROUP BY market_category`

// WalletAnalytics breaks one wallet's windowed flow down by category; nil
// when the wallet has no matching rows.
func (s *SQLiteStore) WalletAnalytics(address string, sinceTS *float64) (*WalletAnalytics, error) {
	if address == "" {
		return nil, nil
	}
	cutoff := cutoffOrDefault(sinceTS, s.nowFunc())
	var rows []categoryRow
	if err := s.db.Select(&rows, walletAnalyticsQuery, address, cutoff); err != nil {
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

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
