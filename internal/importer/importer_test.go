package importer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/config"
	"github.com/sells-group/buyer-universe/internal/llm"
	"github.com/sells-group/buyer-universe/pkg/anthropic"
	"github.com/sells-group/buyer-universe/pkg/anthropic/mocks"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const buyersCSV = `Buyer Name, Website ,Min Revenue ($M),States,Notes
Comfort Partners,https://www.comfortpartners.com,3,"TX, OK",met at conference
,,5,TX,
Apex Services,apexsvc.com,,Southeast,
`

func TestReadCSV(t *testing.T) {
	tbl, err := ReadCSV(context.Background(), strings.NewReader(buyersCSV), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Buyer Name", "Website", "Min Revenue ($M)", "States", "Notes"}, tbl.Header)
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, "Comfort Partners", tbl.Rows[0][0])
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader("\n\n"), ReadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}

func TestReadCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadCSV(ctx, strings.NewReader(buyersCSV), ReadOptions{})
	require.Error(t, err)
}

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "buyers.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadFile_XLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Buyers": {
			{"Name", "PE Firm"},
			{"Comfort Partners", "Summit Capital"},
		},
	})

	tbl, err := ReadFile(context.Background(), path, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "PE Firm"}, tbl.Header)
	assert.Equal(t, [][]string{{"Comfort Partners", "Summit Capital"}}, tbl.Rows)

	_, err = ReadFile(context.Background(), path, ReadOptions{SheetName: "Missing"})
	require.Error(t, err)
	_, err = ReadFile(context.Background(), path, ReadOptions{SheetIndex: 3})
	require.Error(t, err)
}

func TestReadFile_Unsupported(t *testing.T) {
	_, err := ReadFile(context.Background(), "buyers.pdf", ReadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestAliasMapper(t *testing.T) {
	m, err := NewAliasMapper(map[string]string{"Notes": "thesis"}).
		Map(context.Background(), []string{"Buyer Name", "Website", "Min Revenue ($M)", "States", "Notes", "Company", "hq_state"}, nil)
	require.NoError(t, err)
	assert.Equal(t, Mapping{
		0: "name",
		1: "website",
		2: "min_revenue",
		3: "geography",
		4: "thesis",
		6: "hq_state",
	}, m)
	assert.Equal(t, []string{"geography", "hq_state", "min_revenue", "name", "thesis", "website"}, m.Fields())
}

func TestParse(t *testing.T) {
	tbl, err := ReadCSV(context.Background(), strings.NewReader(buyersCSV), ReadOptions{})
	require.NoError(t, err)

	p, err := Parse(context.Background(), tbl, NewAliasMapper(nil))
	require.NoError(t, err)
	require.Len(t, p.Records, 2)

	first := p.Records[0]
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, "Comfort Partners", first.Name())
	assert.Equal(t, "https://www.comfortpartners.com", first.Website())
	assert.Equal(t, []string{"geography", "min_revenue", "name", "website"}, first.Fields())

	assert.Equal(t, []string{"geography", "name", "website"}, p.Records[1].Fields())
	assert.Equal(t, []RowError{{Line: 3, Reason: "missing buyer name"}}, p.Skipped)
}

func TestParse_NoNameColumn(t *testing.T) {
	tbl := &Table{Header: []string{"Website"}, Rows: [][]string{{"a.com"}}}
	_, err := Parse(context.Background(), tbl, NewAliasMapper(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no column maps to "name"`)
}

func TestLLMMapper(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		prompt := req.Messages[0].Content
		return strings.Contains(prompt, `"Acquirer"`) &&
			strings.Contains(prompt, `"Deal Sweet Spot"`) &&
			!strings.Contains(prompt, `"Website"`)
	})).Return(mocks.TextResponse(`{"columns": {
		"Acquirer": "name",
		"Deal Sweet Spot": "min_revenue",
		"Owner": "website",
		"Favorite Food": null
	}}`, 500, 50), nil).Once()

	caller := llm.NewCaller(client, config.AnthropicConfig{HaikuModel: "claude-haiku-4-5-20251001"},
		config.RetryConfig{MaxAttempts: 1})
	m, err := NewLLMMapper(caller, nil).Map(context.Background(),
		[]string{"Acquirer", "Website", "Deal Sweet Spot", "Owner", "Favorite Food"},
		[][]string{{"Comfort Partners", "comfort.com", "$5M", "Jane", "tacos"}})
	require.NoError(t, err)
	// Owner is dropped because website is already taken by an alias match.
	assert.Equal(t, Mapping{0: "name", 1: "website", 2: "min_revenue"}, m)
}

func TestLLMMapper_AllAliased(t *testing.T) {
	client := mocks.NewMockClient(t)
	caller := llm.NewCaller(client, config.AnthropicConfig{HaikuModel: "claude-haiku-4-5-20251001"},
		config.RetryConfig{MaxAttempts: 1})
	m, err := NewLLMMapper(caller, nil).Map(context.Background(), []string{"Name", "Website"}, nil)
	require.NoError(t, err)
	assert.Len(t, m, 2)
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestDedupeKey(t *testing.T) {
	assert.Equal(t, "domain:comfort.com", DedupeKey("Comfort Partners", "https://www.Comfort.com/about"))
	assert.Equal(t, "name:comfort partners", DedupeKey("  Comfort   PARTNERS ", ""))
	assert.Equal(t, "", DedupeKey("", ""))
}
