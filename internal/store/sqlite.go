package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/buyer-universe/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path, configures WAL mode
// and turns on foreign keys so deletes cascade.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS trackers (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS companies (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS buyers (
	id         TEXT PRIMARY KEY,
	tracker_id TEXT NOT NULL REFERENCES trackers(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS deals (
	id         TEXT PRIMARY KEY,
	tracker_id TEXT NOT NULL REFERENCES trackers(id) ON DELETE CASCADE,
	company_id TEXT REFERENCES companies(id) ON DELETE SET NULL,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS buyer_deal_scores (
	buyer_id     TEXT NOT NULL REFERENCES buyers(id) ON DELETE CASCADE,
	deal_id      TEXT NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
	tracker_id   TEXT NOT NULL,
	status       TEXT NOT NULL,
	composite    INTEGER,
	disqualified INTEGER NOT NULL DEFAULT 0,
	detail       TEXT NOT NULL,
	interested   INTEGER NOT NULL DEFAULT 0,
	passed       INTEGER NOT NULL DEFAULT 0,
	approved     INTEGER NOT NULL DEFAULT 0,
	pass_reason  TEXT NOT NULL DEFAULT '',
	scored_at    DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	PRIMARY KEY (buyer_id, deal_id)
);

CREATE INDEX IF NOT EXISTS idx_buyers_tracker_id ON buyers(tracker_id);
CREATE INDEX IF NOT EXISTS idx_buyers_domain ON buyers(domain);
CREATE INDEX IF NOT EXISTS idx_deals_tracker_id ON deals(tracker_id);
CREATE INDEX IF NOT EXISTS idx_scores_deal_id ON buyer_deal_scores(deal_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Trackers ---

func (s *SQLiteStore) CreateTracker(ctx context.Context, t *model.Tracker) error {
	stampNew(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	data, err := json.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tracker")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trackers (id, name, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, string(data), t.CreatedAt, t.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert tracker")
}

func (s *SQLiteStore) GetTracker(ctx context.Context, id string) (*model.Tracker, error) {
	var t model.Tracker
	if err := s.getJSON(ctx, `SELECT data FROM trackers WHERE id = ?`, id, "tracker", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) UpdateTracker(ctx context.Context, t *model.Tracker) error {
	t.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tracker")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE trackers SET name = ?, data = ?, updated_at = ? WHERE id = ?`,
		t.Name, string(data), t.UpdatedAt, t.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update tracker %s", t.ID)
	}
	return checkRowsAffected(res, "tracker", t.ID)
}

func (s *SQLiteStore) ListTrackers(ctx context.Context) ([]model.Tracker, error) {
	var out []model.Tracker
	err := s.listJSON(ctx, `SELECT data FROM trackers ORDER BY name, id`, nil, func(data []byte) error {
		var t model.Tracker
		if err := json.Unmarshal(data, &t); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal tracker")
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) DeleteTracker(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "trackers", "tracker", id)
}

// --- Buyers ---

func (s *SQLiteStore) CreateBuyer(ctx context.Context, b *model.Buyer) error {
	stampNew(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	data, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal buyer")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO buyers (id, tracker_id, name, domain, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TrackerID, b.Name, model.NormalizeDomain(b.Website), string(data), b.CreatedAt, b.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert buyer")
}

func (s *SQLiteStore) GetBuyer(ctx context.Context, id string) (*model.Buyer, error) {
	var b model.Buyer
	if err := s.getJSON(ctx, `SELECT data FROM buyers WHERE id = ?`, id, "buyer", &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *SQLiteStore) UpdateBuyer(ctx context.Context, b *model.Buyer) error {
	b.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal buyer")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE buyers SET name = ?, domain = ?, data = ?, updated_at = ? WHERE id = ?`,
		b.Name, model.NormalizeDomain(b.Website), string(data), b.UpdatedAt, b.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update buyer %s", b.ID)
	}
	return checkRowsAffected(res, "buyer", b.ID)
}

func (s *SQLiteStore) ListBuyers(ctx context.Context, trackerID string) ([]model.Buyer, error) {
	var out []model.Buyer
	err := s.listJSON(ctx, `SELECT data FROM buyers WHERE tracker_id = ? ORDER BY name, id`, []any{trackerID}, func(data []byte) error {
		var b model.Buyer
		if err := json.Unmarshal(data, &b); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal buyer")
		}
		out = append(out, b)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) DeleteBuyer(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "buyers", "buyer", id)
}

// --- Deals ---

func (s *SQLiteStore) CreateDeal(ctx context.Context, d *model.Deal) error {
	stampNew(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	data, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal deal")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO deals (id, tracker_id, company_id, name, domain, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TrackerID, nullString(d.CompanyID), d.Name, d.Domain, string(data), d.CreatedAt, d.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert deal")
}

func (s *SQLiteStore) GetDeal(ctx context.Context, id string) (*model.Deal, error) {
	var d model.Deal
	if err := s.getJSON(ctx, `SELECT data FROM deals WHERE id = ?`, id, "deal", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLiteStore) UpdateDeal(ctx context.Context, d *model.Deal) error {
	d.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal deal")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE deals SET company_id = ?, name = ?, domain = ?, data = ?, updated_at = ? WHERE id = ?`,
		nullString(d.CompanyID), d.Name, d.Domain, string(data), d.UpdatedAt, d.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update deal %s", d.ID)
	}
	return checkRowsAffected(res, "deal", d.ID)
}

func (s *SQLiteStore) ListDeals(ctx context.Context, trackerID string) ([]model.Deal, error) {
	var out []model.Deal
	err := s.listJSON(ctx, `SELECT data FROM deals WHERE tracker_id = ? ORDER BY name, id`, []any{trackerID}, func(data []byte) error {
		var d model.Deal
		if err := json.Unmarshal(data, &d); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal deal")
		}
		out = append(out, d)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) DeleteDeal(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "deals", "deal", id)
}

// --- Companies ---

func (s *SQLiteStore) FindOrCreateCompany(ctx context.Context, name, domain string) (*model.Company, error) {
	domain = model.NormalizeDomain(domain)
	if domain == "" {
		return nil, eris.New("sqlite: company domain is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, domain, created_at) VALUES (?, ?, ?, ?) ON CONFLICT(domain) DO NOTHING`,
		uuid.New().String(), name, domain, time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert company %s", domain)
	}

	var c model.Company
	err = s.db.QueryRowContext(ctx,
		`SELECT id, name, domain, created_at FROM companies WHERE domain = ?`, domain,
	).Scan(&c.ID, &c.Name, &c.Domain, &c.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %s", domain)
	}
	return &c, nil
}

// --- Scores ---

func (s *SQLiteStore) UpsertScores(ctx context.Context, scores []model.BuyerDealScore) error {
	if len(scores) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin score upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO buyer_deal_scores (buyer_id, deal_id, tracker_id, status, composite, disqualified, detail,
			interested, passed, approved, pass_reason, scored_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(buyer_id, deal_id) DO UPDATE SET
			tracker_id = excluded.tracker_id,
			status = excluded.status,
			composite = excluded.composite,
			disqualified = excluded.disqualified,
			detail = excluded.detail,
			scored_at = excluded.scored_at,
			updated_at = excluded.updated_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare score upsert")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range scores {
		sc := &scores[i]
		detail, err := encodeScoreDetail(sc)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			sc.BuyerID, sc.DealID, sc.TrackerID, string(sc.Status), nullInt(sc.Composite),
			sc.Disqualified, string(detail),
			sc.Flags.Interested, sc.Flags.Passed, sc.Flags.Approved, sc.Flags.PassReason,
			sc.ScoredAt.UTC(), sc.UpdatedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert score %s/%s", sc.BuyerID, sc.DealID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit score upsert")
}

const sqliteScoreCols = `buyer_id, deal_id, tracker_id, status, composite, disqualified, detail, interested, passed, approved, pass_reason, scored_at, updated_at`

func (s *SQLiteStore) GetScore(ctx context.Context, buyerID, dealID string) (*model.BuyerDealScore, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteScoreCols+` FROM buyer_deal_scores WHERE buyer_id = ? AND deal_id = ?`,
		buyerID, dealID,
	)
	sc, err := scanSQLiteScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("score", buyerID+"/"+dealID)
	}
	return sc, err
}

func (s *SQLiteStore) ListScoresForDeal(ctx context.Context, dealID string) ([]model.BuyerDealScore, error) {
	return s.listScores(ctx, `WHERE deal_id = ? `+scoreOrder, dealID)
}

func (s *SQLiteStore) ListScoresForBuyer(ctx context.Context, buyerID string) ([]model.BuyerDealScore, error) {
	return s.listScores(ctx, `WHERE buyer_id = ? ORDER BY scored_at DESC, deal_id`, buyerID)
}

func (s *SQLiteStore) UpdateScoreFlags(ctx context.Context, buyerID, dealID string, flags model.ScoreFlags) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE buyer_deal_scores SET interested = ?, passed = ?, approved = ?, pass_reason = ?, updated_at = ?
		 WHERE buyer_id = ? AND deal_id = ?`,
		flags.Interested, flags.Passed, flags.Approved, flags.PassReason, time.Now().UTC(), buyerID, dealID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update score flags %s/%s", buyerID, dealID)
	}
	return checkRowsAffected(res, "score", buyerID+"/"+dealID)
}

func (s *SQLiteStore) listScores(ctx context.Context, where string, arg string) ([]model.BuyerDealScore, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteScoreCols+` FROM buyer_deal_scores `+where, arg)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scores")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.BuyerDealScore
	for rows.Next() {
		sc, err := scanSQLiteScore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list scores iterate")
}

// helpers

func (s *SQLiteStore) getJSON(ctx context.Context, query, id, entity string, dest any) error {
	var data string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(entity, id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get %s %s", entity, id)
	}
	return eris.Wrapf(json.Unmarshal([]byte(data), dest), "sqlite: unmarshal %s", entity)
}

func (s *SQLiteStore) listJSON(ctx context.Context, query string, args []any, fn func([]byte) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "sqlite: list")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return eris.Wrap(err, "sqlite: scan")
		}
		if err := fn([]byte(data)); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "sqlite: list iterate")
}

func (s *SQLiteStore) deleteByID(ctx context.Context, table, entity, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete %s %s", entity, id)
	}
	return checkRowsAffected(res, entity, id)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

func scanSQLiteScore(row scannable) (*model.BuyerDealScore, error) {
	var sc model.BuyerDealScore
	var composite sql.NullInt64
	var detail string
	err := row.Scan(&sc.BuyerID, &sc.DealID, &sc.TrackerID, &sc.Status, &composite, &sc.Disqualified,
		&detail, &sc.Flags.Interested, &sc.Flags.Passed, &sc.Flags.Approved, &sc.Flags.PassReason,
		&sc.ScoredAt, &sc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan score")
	}
	if composite.Valid {
		v := int(composite.Int64)
		sc.Composite = &v
	}
	if err := decodeScoreDetail([]byte(detail), &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
