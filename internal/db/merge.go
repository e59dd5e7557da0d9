package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Merge describes a batch write keyed on a unique constraint. Score rows are
// the main user: every rescore rewrites the evaluation columns of a
// (buyer_id, deal_id) pair while the user's flag columns stay as stored.
type Merge struct {
	Table   string   // target table, optionally schema-qualified
	Key     []string // unique constraint the rows collide on
	Columns []string // columns carried by each row, in row order
	// Keep lists columns written when a row is first inserted and left
	// untouched when it collides with a stored row.
	Keep []string
}

// overwrite is every column a collision replaces.
func (m Merge) overwrite() []string {
	var cols []string
	for _, c := range m.Columns {
		if !slices.Contains(m.Key, c) && !slices.Contains(m.Keep, c) {
			cols = append(cols, c)
		}
	}
	return cols
}

func (m Merge) validate() error {
	if m.Table == "" {
		return eris.New("db: merge: no table")
	}
	if len(m.Columns) == 0 {
		return eris.Errorf("db: merge %s: no columns", m.Table)
	}
	if len(m.Key) == 0 {
		return eris.Errorf("db: merge %s: no key", m.Table)
	}
	for _, k := range m.Key {
		if !slices.Contains(m.Columns, k) {
			return eris.Errorf("db: merge %s: key column %s not in columns", m.Table, k)
		}
		if slices.Contains(m.Keep, k) {
			return eris.Errorf("db: merge %s: key column %s cannot be kept", m.Table, k)
		}
	}
	for _, k := range m.Keep {
		if !slices.Contains(m.Columns, k) {
			return eris.Errorf("db: merge %s: kept column %s not in columns", m.Table, k)
		}
	}
	return nil
}

// statement builds the INSERT that moves staged rows into the table.
func (m Merge) statement(staging string) string {
	cols := quoteAndJoin(m.Columns)
	action := "DO NOTHING"
	if over := m.overwrite(); len(over) > 0 {
		sets := make([]string, len(over))
		for i, c := range over {
			q := pgx.Identifier{c}.Sanitize()
			sets[i] = q + " = EXCLUDED." + q
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		sanitizeTable(m.Table), cols, cols, pgx.Identifier{staging}.Sanitize(), quoteAndJoin(m.Key), action)
}

// MergeRows stages rows with COPY in a temp table cloned from the target and
// moves them across in one INSERT ... ON CONFLICT, all inside a single
// transaction. It returns the number of rows inserted or updated.
func MergeRows(ctx context.Context, pool Pool, m Merge, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := m.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: merge: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := "_merge_" + strings.ReplaceAll(m.Table, ".", "_")
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{staging}.Sanitize(), sanitizeTable(m.Table),
	)); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: stage table", m.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, m.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: copy rows", m.Table)
	}

	tag, err := tx.Exec(ctx, m.statement(staging))
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: insert", m.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: commit", m.Table)
	}
	return tag.RowsAffected(), nil
}

func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
