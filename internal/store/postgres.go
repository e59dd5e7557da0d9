package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/buyer-universe/internal/db"
	"github.com/sells-group/buyer-universe/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS trackers (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS companies (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS buyers (
	id         TEXT PRIMARY KEY,
	tracker_id TEXT NOT NULL REFERENCES trackers(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS deals (
	id         TEXT PRIMARY KEY,
	tracker_id TEXT NOT NULL REFERENCES trackers(id) ON DELETE CASCADE,
	company_id TEXT REFERENCES companies(id) ON DELETE SET NULL,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS buyer_deal_scores (
	buyer_id     TEXT NOT NULL REFERENCES buyers(id) ON DELETE CASCADE,
	deal_id      TEXT NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
	tracker_id   TEXT NOT NULL,
	status       TEXT NOT NULL,
	composite    INTEGER,
	disqualified BOOLEAN NOT NULL DEFAULT false,
	detail       JSONB NOT NULL,
	interested   BOOLEAN NOT NULL DEFAULT false,
	passed       BOOLEAN NOT NULL DEFAULT false,
	approved     BOOLEAN NOT NULL DEFAULT false,
	pass_reason  TEXT NOT NULL DEFAULT '',
	scored_at    TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (buyer_id, deal_id)
);

CREATE INDEX IF NOT EXISTS idx_buyers_tracker_id ON buyers(tracker_id);
CREATE INDEX IF NOT EXISTS idx_buyers_domain ON buyers(domain);
CREATE INDEX IF NOT EXISTS idx_deals_tracker_id ON deals(tracker_id);
CREATE INDEX IF NOT EXISTS idx_scores_deal_id ON buyer_deal_scores(deal_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Trackers ---

func (s *PostgresStore) CreateTracker(ctx context.Context, t *model.Tracker) error {
	stampNew(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	data, err := json.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal tracker")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO trackers (id, name, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Name, data, t.CreatedAt, t.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert tracker")
}

func (s *PostgresStore) GetTracker(ctx context.Context, id string) (*model.Tracker, error) {
	var t model.Tracker
	if err := s.getJSON(ctx, `SELECT data FROM trackers WHERE id = $1`, id, "tracker", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) UpdateTracker(ctx context.Context, t *model.Tracker) error {
	t.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal tracker")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE trackers SET name = $1, data = $2, updated_at = $3 WHERE id = $4`,
		t.Name, data, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update tracker %s", t.ID)
	}
	return checkTag(tag, "tracker", t.ID)
}

func (s *PostgresStore) ListTrackers(ctx context.Context) ([]model.Tracker, error) {
	var out []model.Tracker
	err := s.listJSON(ctx, `SELECT data FROM trackers ORDER BY name, id`, nil, func(data []byte) error {
		var t model.Tracker
		if err := json.Unmarshal(data, &t); err != nil {
			return eris.Wrap(err, "postgres: unmarshal tracker")
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

func (s *PostgresStore) DeleteTracker(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "trackers", "tracker", id)
}

// --- Buyers ---

func (s *PostgresStore) CreateBuyer(ctx context.Context, b *model.Buyer) error {
	stampNew(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	data, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal buyer")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO buyers (id, tracker_id, name, domain, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.TrackerID, b.Name, model.NormalizeDomain(b.Website), data, b.CreatedAt, b.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert buyer")
}

func (s *PostgresStore) GetBuyer(ctx context.Context, id string) (*model.Buyer, error) {
	var b model.Buyer
	if err := s.getJSON(ctx, `SELECT data FROM buyers WHERE id = $1`, id, "buyer", &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) UpdateBuyer(ctx context.Context, b *model.Buyer) error {
	b.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal buyer")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE buyers SET name = $1, domain = $2, data = $3, updated_at = $4 WHERE id = $5`,
		b.Name, model.NormalizeDomain(b.Website), data, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update buyer %s", b.ID)
	}
	return checkTag(tag, "buyer", b.ID)
}

func (s *PostgresStore) ListBuyers(ctx context.Context, trackerID string) ([]model.Buyer, error) {
	var out []model.Buyer
	err := s.listJSON(ctx, `SELECT data FROM buyers WHERE tracker_id = $1 ORDER BY name, id`, []any{trackerID}, func(data []byte) error {
		var b model.Buyer
		if err := json.Unmarshal(data, &b); err != nil {
			return eris.Wrap(err, "postgres: unmarshal buyer")
		}
		out = append(out, b)
		return nil
	})
	return out, err
}

func (s *PostgresStore) DeleteBuyer(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "buyers", "buyer", id)
}

// --- Deals ---

func (s *PostgresStore) CreateDeal(ctx context.Context, d *model.Deal) error {
	stampNew(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	data, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal deal")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO deals (id, tracker_id, company_id, name, domain, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.TrackerID, optString(d.CompanyID), d.Name, d.Domain, data, d.CreatedAt, d.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert deal")
}

func (s *PostgresStore) GetDeal(ctx context.Context, id string) (*model.Deal, error) {
	var d model.Deal
	if err := s.getJSON(ctx, `SELECT data FROM deals WHERE id = $1`, id, "deal", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) UpdateDeal(ctx context.Context, d *model.Deal) error {
	d.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal deal")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE deals SET company_id = $1, name = $2, domain = $3, data = $4, updated_at = $5 WHERE id = $6`,
		optString(d.CompanyID), d.Name, d.Domain, data, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update deal %s", d.ID)
	}
	return checkTag(tag, "deal", d.ID)
}

func (s *PostgresStore) ListDeals(ctx context.Context, trackerID string) ([]model.Deal, error) {
	var out []model.Deal
	err := s.listJSON(ctx, `SELECT data FROM deals WHERE tracker_id = $1 ORDER BY name, id`, []any{trackerID}, func(data []byte) error {
		var d model.Deal
		if err := json.Unmarshal(data, &d); err != nil {
			return eris.Wrap(err, "postgres: unmarshal deal")
		}
		out = append(out, d)
		return nil
	})
	return out, err
}

func (s *PostgresStore) DeleteDeal(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "deals", "deal", id)
}

// --- Companies ---

func (s *PostgresStore) FindOrCreateCompany(ctx context.Context, name, domain string) (*model.Company, error) {
	domain = model.NormalizeDomain(domain)
	if domain == "" {
		return nil, eris.New("postgres: company domain is required")
	}
	// The no-op update makes RETURNING yield the existing row on conflict.
	var c model.Company
	err := s.pool.QueryRow(ctx,
		`INSERT INTO companies (id, name, domain, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (domain) DO UPDATE SET domain = EXCLUDED.domain
		 RETURNING id, name, domain, created_at`,
		uuid.New().String(), name, domain, time.Now().UTC(),
	).Scan(&c.ID, &c.Name, &c.Domain, &c.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find or create company %s", domain)
	}
	return &c, nil
}

// --- Scores ---

// scoreMerge writes score rows. Flags go in on first insert and are kept on
// every rescore after that.
var scoreMerge = db.Merge{
	Table: "buyer_deal_scores",
	Key:   []string{"buyer_id", "deal_id"},
	Columns: []string{
		"buyer_id", "deal_id", "tracker_id", "status", "composite", "disqualified", "detail",
		"interested", "passed", "approved", "pass_reason", "scored_at", "updated_at",
	},
	Keep: []string{"interested", "passed", "approved", "pass_reason"},
}

func (s *PostgresStore) UpsertScores(ctx context.Context, scores []model.BuyerDealScore) error {
	if len(scores) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(scores))
	for i := range scores {
		sc := &scores[i]
		detail, err := encodeScoreDetail(sc)
		if err != nil {
			return err
		}
		var composite *int32
		if sc.Composite != nil {
			v := int32(*sc.Composite)
			composite = &v
		}
		rows = append(rows, []any{
			sc.BuyerID, sc.DealID, sc.TrackerID, string(sc.Status), composite,
			sc.Disqualified, string(detail),
			sc.Flags.Interested, sc.Flags.Passed, sc.Flags.Approved, sc.Flags.PassReason,
			sc.ScoredAt.UTC(), sc.UpdatedAt.UTC(),
		})
	}
	_, err := db.MergeRows(ctx, s.pool, scoreMerge, rows)
	return eris.Wrap(err, "postgres: upsert scores")
}

const pgScoreCols = `buyer_id, deal_id, tracker_id, status, composite, disqualified, detail, interested, passed, approved, pass_reason, scored_at, updated_at`

func (s *PostgresStore) GetScore(ctx context.Context, buyerID, dealID string) (*model.BuyerDealScore, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgScoreCols+` FROM buyer_deal_scores WHERE buyer_id = $1 AND deal_id = $2`,
		buyerID, dealID,
	)
	sc, err := scanPgScore(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("score", buyerID+"/"+dealID)
	}
	return sc, err
}

func (s *PostgresStore) ListScoresForDeal(ctx context.Context, dealID string) ([]model.BuyerDealScore, error) {
	return s.listScores(ctx, `WHERE deal_id = $1 `+scoreOrder, dealID)
}

func (s *PostgresStore) ListScoresForBuyer(ctx context.Context, buyerID string) ([]model.BuyerDealScore, error) {
	return s.listScores(ctx, `WHERE buyer_id = $1 ORDER BY scored_at DESC, deal_id`, buyerID)
}

func (s *PostgresStore) UpdateScoreFlags(ctx context.Context, buyerID, dealID string, flags model.ScoreFlags) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE buyer_deal_scores SET interested = $1, passed = $2, approved = $3, pass_reason = $4, updated_at = $5
		 WHERE buyer_id = $6 AND deal_id = $7`,
		flags.Interested, flags.Passed, flags.Approved, flags.PassReason, time.Now().UTC(), buyerID, dealID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update score flags %s/%s", buyerID, dealID)
	}
	return checkTag(tag, "score", buyerID+"/"+dealID)
}

func (s *PostgresStore) listScores(ctx context.Context, where string, arg string) ([]model.BuyerDealScore, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgScoreCols+` FROM buyer_deal_scores `+where, arg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scores")
	}
	defer rows.Close()

	var out []model.BuyerDealScore
	for rows.Next() {
		sc, err := scanPgScore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list scores iterate")
}

// helpers

func (s *PostgresStore) getJSON(ctx context.Context, query, id, entity string, dest any) error {
	var data []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(entity, id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get %s %s", entity, id)
	}
	return eris.Wrapf(json.Unmarshal(data, dest), "postgres: unmarshal %s", entity)
}

func (s *PostgresStore) listJSON(ctx context.Context, query string, args []any, fn func([]byte) error) error {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "postgres: list")
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return eris.Wrap(err, "postgres: scan")
		}
		if err := fn(data); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "postgres: list iterate")
}

func (s *PostgresStore) deleteByID(ctx context.Context, table, entity, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete %s %s", entity, id)
	}
	return checkTag(tag, entity, id)
}

func checkTag(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return notFound(entity, id)
	}
	return nil
}

func scanPgScore(row scannable) (*model.BuyerDealScore, error) {
	var sc model.BuyerDealScore
	var composite *int32
	var status string
	var detail []byte
	err := row.Scan(&sc.BuyerID, &sc.DealID, &sc.TrackerID, &status, &composite, &sc.Disqualified,
		&detail, &sc.Flags.Interested, &sc.Flags.Passed, &sc.Flags.Approved, &sc.Flags.PassReason,
		&sc.ScoredAt, &sc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan score")
	}
	sc.Status = model.ScoreStatus(status)
	if composite != nil {
		v := int(*composite)
		sc.Composite = &v
	}
	if err := decodeScoreDetail(detail, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
