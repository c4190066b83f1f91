package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"datedVamm/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	market_id      NUMERIC NOT NULL,
	maturity       BIGINT NOT NULL,
	pool_address   TEXT NOT NULL,
	tick_spacing   INTEGER NOT NULL,
	first_seen_ts  BIGINT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (market_id, maturity)
);
CREATE TABLE IF NOT EXISTS pool_window_metrics (
	market_id            NUMERIC NOT NULL,
	maturity             BIGINT NOT NULL,
	pool_address         TEXT NOT NULL,
	window_size_seconds  BIGINT NOT NULL,
	window_start_ts      TIMESTAMPTZ NOT NULL,
	window_end_ts        TIMESTAMPTZ NOT NULL,
	taker_count          BIGINT NOT NULL,
	maker_count          BIGINT NOT NULL,
	volume_base          NUMERIC NOT NULL,
	volume_quote         NUMERIC NOT NULL,
	notional_volume      NUMERIC NOT NULL,
	liquidity_added      NUMERIC NOT NULL,
	liquidity_removed    NUMERIC NOT NULL,
	open_tick            INTEGER,
	close_tick           INTEGER,
	avg_fixed_rate       NUMERIC,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (market_id, maturity, window_size_seconds, window_start_ts)
);
CREATE TABLE IF NOT EXISTS aggregator_state (
	name               TEXT PRIMARY KEY,
	last_processed_ts  BIGINT NOT NULL,
	last_sequence      BIGINT NOT NULL DEFAULT 0,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for window metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// UpsertPools inserts or updates instance records.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				market_id, maturity, pool_address, tick_spacing, first_seen_ts, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, now(), now())
			ON CONFLICT (market_id, maturity)
			DO UPDATE SET
				pool_address = EXCLUDED.pool_address,
				tick_spacing = CASE WHEN EXCLUDED.tick_spacing > 0 THEN EXCLUDED.tick_spacing ELSE pools.tick_spacing END,
				first_seen_ts = LEAST(pools.first_seen_ts, EXCLUDED.first_seen_ts),
				updated_at = now()
		`,
			pool.MarketID,
			int64(pool.Maturity),
			pool.Address,
			pool.TickSpacing,
			int64(pool.FirstSeenTime),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				market_id, maturity, pool_address, window_size_seconds, window_start_ts, window_end_ts,
				taker_count, maker_count, volume_base, volume_quote, notional_volume,
				liquidity_added, liquidity_removed, open_tick, close_tick, avg_fixed_rate, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now(),now())
			ON CONFLICT (market_id, maturity, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				taker_count = EXCLUDED.taker_count,
				maker_count = EXCLUDED.maker_count,
				volume_base = EXCLUDED.volume_base,
				volume_quote = EXCLUDED.volume_quote,
				notional_volume = EXCLUDED.notional_volume,
				liquidity_added = EXCLUDED.liquidity_added,
				liquidity_removed = EXCLUDED.liquidity_removed,
				open_tick = EXCLUDED.open_tick,
				close_tick = EXCLUDED.close_tick,
				avg_fixed_rate = EXCLUDED.avg_fixed_rate,
				updated_at = now()
		`,
			m.MarketID,
			int64(m.Maturity),
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.TakerCount),
			int64(m.MakerCount),
			m.VolumeBase,
			m.VolumeQuote,
			m.NotionalVolume,
			m.LiquidityAdded,
			m.LiquidityRemoved,
			m.OpenTick,
			m.CloseTick,
			m.AvgFixedRate,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range metrics {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the checkpoint stored under name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, uint64, bool, error) {
	if name == "" {
		return 0, 0, false, fmt.Errorf("state name required")
	}
	var ts, seq int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts, last_sequence FROM aggregator_state WHERE name=$1`, name)
	if err := row.Scan(&ts, &seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	return uint64(ts), uint64(seq), true, nil
}

// SaveState upserts the checkpoint stored under name.
func (s *Store) SaveState(ctx context.Context, name string, ts, seq uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO aggregator_state (name, last_processed_ts, last_sequence, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts,
			last_sequence = EXCLUDED.last_sequence,
			updated_at = now()
	`, name, int64(ts), int64(seq))
	return err
}
