package db

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scoreMerge = Merge{
	Table:   "buyer_deal_scores",
	Key:     []string{"buyer_id", "deal_id"},
	Columns: []string{"buyer_id", "deal_id", "status", "composite", "interested", "pass_reason"},
	Keep:    []string{"interested", "pass_reason"},
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestMergeRows_EmptyRows(t *testing.T) {
	n, err := MergeRows(context.Background(), nil, scoreMerge, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestMerge_Validate(t *testing.T) {
	tests := []struct {
		name string
		edit func(m *Merge)
		want string
	}{
		{"no table", func(m *Merge) { m.Table = "" }, "no table"},
		{"no columns", func(m *Merge) { m.Columns = nil }, "no columns"},
		{"no key", func(m *Merge) { m.Key = nil }, "no key"},
		{"key not carried", func(m *Merge) { m.Key = []string{"buyer_id", "tracker_id"} }, "key column tracker_id not in columns"},
		{"key kept", func(m *Merge) { m.Keep = []string{"deal_id"} }, "key column deal_id cannot be kept"},
		{"kept not carried", func(m *Merge) { m.Keep = []string{"approved"} }, "kept column approved not in columns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := scoreMerge
			m.Keep = slices.Clone(scoreMerge.Keep)
			tt.edit(&m)
			_, err := MergeRows(context.Background(), nil, m, [][]any{{"b1"}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMerge_StatementKeepsFlags(t *testing.T) {
	sql := scoreMerge.statement("_merge_buyer_deal_scores")
	assert.Equal(t,
		`INSERT INTO "buyer_deal_scores" ("buyer_id", "deal_id", "status", "composite", "interested", "pass_reason") `+
			`SELECT "buyer_id", "deal_id", "status", "composite", "interested", "pass_reason" FROM "_merge_buyer_deal_scores" `+
			`ON CONFLICT ("buyer_id", "deal_id") DO UPDATE SET "status" = EXCLUDED."status", "composite" = EXCLUDED."composite"`,
		sql)
	assert.NotContains(t, sql, `"interested" = EXCLUDED`)
}

func TestMerge_StatementDoNothingWhenEverythingKept(t *testing.T) {
	m := Merge{Table: "companies", Key: []string{"domain"}, Columns: []string{"domain", "name"}, Keep: []string{"name"}}
	assert.Contains(t, m.statement("_merge_companies"), `ON CONFLICT ("domain") DO NOTHING`)
}

func TestMergeRows_Success(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_merge_buyer_deal_scores" \(LIKE "buyer_deal_scores" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_merge_buyer_deal_scores"}, scoreMerge.Columns).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("buyer_id", "deal_id"\) DO UPDATE SET "status" = EXCLUDED."status", "composite" = EXCLUDED."composite"$`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := MergeRows(context.Background(), mock, scoreMerge, [][]any{
		{"b1", "d1", "scored", 80, false, ""},
		{"b2", "d1", "disqualified", nil, false, ""},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeRows_CopyError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_merge_buyer_deal_scores"}, scoreMerge.Columns).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err := MergeRows(context.Background(), mock, scoreMerge, [][]any{{"b1", "d1", "scored", 80, false, ""}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: merge buyer_deal_scores: copy rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeRows_InsertErrorRollsBack(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_merge_buyer_deal_scores"}, scoreMerge.Columns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "buyer_deal_scores"`).WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := MergeRows(context.Background(), mock, scoreMerge, [][]any{{"b1", "d1", "scored", 80, false, ""}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: merge buyer_deal_scores: insert")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"buyers"`, sanitizeTable("buyers"))
	assert.Equal(t, `"universe"."buyers"`, sanitizeTable("universe.buyers"))
}
