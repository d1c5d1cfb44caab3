package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"launchpool/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS engine_logs (
	round      BIGINT NOT NULL,
	tx_index   BIGINT NOT NULL,
	log_index  BIGINT NOT NULL,
	address    TEXT   NOT NULL,
	topic0     TEXT   NOT NULL,
	topics     TEXT[] NOT NULL,
	data       TEXT   NOT NULL,
	ts         BIGINT NOT NULL,
	PRIMARY KEY (tx_index, log_index)
);
CREATE TABLE IF NOT EXISTS op_results (
	seq        BIGINT PRIMARY KEY,
	op         TEXT    NOT NULL,
	ok         BOOLEAN NOT NULL,
	outputs    TEXT[],
	codespace  TEXT,
	code       BIGINT,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS pool_states (
	pool_address  TEXT PRIMARY KEY,
	pool_index    BIGINT  NOT NULL,
	token0        TEXT    NOT NULL,
	token1        TEXT    NOT NULL,
	share_token   TEXT    NOT NULL,
	reserve0      NUMERIC NOT NULL,
	reserve1      NUMERIC NOT NULL,
	total_shares  NUMERIC NOT NULL,
	paused        BOOLEAN NOT NULL,
	breaker       BOOLEAN NOT NULL,
	breaker_at    BIGINT  NOT NULL,
	round_volume  NUMERIC NOT NULL,
	round_id      BIGINT  NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS graduations (
	token        TEXT PRIMARY KEY,
	is_graduated BOOLEAN NOT NULL,
	pool_address TEXT,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS engine_snapshots (
	id         BIGSERIAL PRIMARY KEY,
	round      BIGINT NOT NULL,
	tx_index   BIGINT NOT NULL,
	body       JSONB  NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS replay_state (
	name          TEXT PRIMARY KEY,
	last_seq      BIGINT NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for engine output.
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

// EnsureSchema creates the tables the store writes to.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PutLogBatch inserts committed event logs, ignoring ones already stored.
func (s *Store) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, log := range logs {
		batch.Queue(`
			INSERT INTO engine_logs (round, tx_index, log_index, address, topic0, topics, data, ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (tx_index, log_index) DO NOTHING
		`,
			int64(log.Round),
			int64(log.TxIndex),
			int64(log.LogIndex),
			log.Address,
			log.Topic0(),
			log.Topics,
			log.Data,
			int64(log.Timestamp),
		)
	}
	return s.sendBatch(ctx, batch, len(logs))
}

// PutResults upserts operation outcomes by sequence number.
func (s *Store) PutResults(ctx context.Context, results []model.OpResult) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range results {
		batch.Queue(`
			INSERT INTO op_results (seq, op, ok, outputs, codespace, code, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (seq) DO UPDATE SET
				op = EXCLUDED.op,
				ok = EXCLUDED.ok,
				outputs = EXCLUDED.outputs,
				codespace = EXCLUDED.codespace,
				code = EXCLUDED.code,
				error = EXCLUDED.error
		`,
			int64(r.Seq),
			r.Op,
			r.OK,
			r.Outputs,
			r.Codespace,
			int64(r.Code),
			r.Error,
		)
	}
	return s.sendBatch(ctx, batch, len(results))
}

// PutSnapshot stores the full snapshot and refreshes the pool and
// graduation tables from it.
func (s *Store) PutSnapshot(ctx context.Context, snap model.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO engine_snapshots (round, tx_index, body) VALUES ($1, $2, $3)`,
		int64(snap.Round), int64(snap.TxIndex), body,
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	if err := s.UpsertPools(ctx, snap.Pools); err != nil {
		return fmt.Errorf("upsert pools: %w", err)
	}
	if err := s.UpsertGraduations(ctx, snap.Graduations); err != nil {
		return fmt.Errorf("upsert graduations: %w", err)
	}
	return nil
}

// UpsertPools inserts or updates pool states.
func (s *Store) UpsertPools(ctx context.Context, pools []model.PoolState) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pool_states (
				pool_address, pool_index, token0, token1, share_token, reserve0, reserve1, total_shares,
				paused, breaker, breaker_at, round_volume, round_id, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11, $12::numeric, $13, now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				total_shares = EXCLUDED.total_shares,
				paused = EXCLUDED.paused,
				breaker = EXCLUDED.breaker,
				breaker_at = EXCLUDED.breaker_at,
				round_volume = EXCLUDED.round_volume,
				round_id = EXCLUDED.round_id,
				updated_at = now()
		`,
			pool.Address,
			int64(pool.Index),
			pool.Token0,
			pool.Token1,
			pool.ShareToken,
			pool.Reserve0,
			pool.Reserve1,
			pool.TotalShares,
			pool.Paused,
			pool.CircuitBreakerTriggered,
			int64(pool.CircuitBreakerTriggeredAt),
			pool.VolumeInCurrentRound,
			int64(pool.RoundID),
		)
	}
	return s.sendBatch(ctx, batch, len(pools))
}

// UpsertGraduations inserts or updates graduation records. A graduated
// record is never turned back.
func (s *Store) UpsertGraduations(ctx context.Context, records []model.GraduationState) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, g := range records {
		batch.Queue(`
			INSERT INTO graduations (token, is_graduated, pool_address, updated_at)
			VALUES ($1, $2, NULLIF($3, ''), now())
			ON CONFLICT (token) DO UPDATE SET
				is_graduated = graduations.is_graduated OR EXCLUDED.is_graduated,
				pool_address = COALESCE(graduations.pool_address, EXCLUDED.pool_address),
				updated_at = now()
		`, g.Token, g.IsGraduated, g.Pool)
	}
	return s.sendBatch(ctx, batch, len(records))
}

// LatestSnapshot returns the most recently stored snapshot.
func (s *Store) LatestSnapshot(ctx context.Context) (model.Snapshot, bool, error) {
	var body []byte
	row := s.pool.QueryRow(ctx, `SELECT body FROM engine_snapshots ORDER BY id DESC LIMIT 1`)
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Snapshot{}, false, nil
		}
		return model.Snapshot{}, false, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

// LoadState returns the last applied sequence number for a replay name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var seq int64
	row := s.pool.QueryRow(ctx, `SELECT last_seq FROM replay_state WHERE name=$1`, name)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(seq), true, nil
}

// SaveState upserts the last applied sequence number for a replay name.
func (s *Store) SaveState(ctx context.Context, name string, seq uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replay_state (name, last_seq, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_seq = EXCLUDED.last_seq, updated_at = now()
	`, name, int64(seq))
	return err
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
