package pipeline

import (
	"bytes"
	goerrors "errors"
	"io"
	"strconv"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/columnar"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTable(t *testing.T, rows int, spec string) *columnar.Table {
	t.Helper()
	schema, err := columnar.ParseSchema(spec)
	require.NoError(t, err)
	table, err := columnar.Allocate(rows, schema)
	require.NoError(t, err)
	return table
}

func ingest(t *testing.T, cfg Config, rows int, spec string, input io.Reader) (*Result, *columnar.Table, error) {
	t.Helper()
	table := newTable(t, rows, spec)
	p, err := New(cfg, table, testutil.TestLogger(t))
	require.NoError(t, err)
	res, err := p.Run(testutil.TestContext(t), input)
	return res, table, err
}

func dumpRows(t *testing.T, table *columnar.Table) []map[string]any {
	t.Helper()
	rows := make([]map[string]any, 0, table.RowCount())
	it := table.NewIterator()
	for it.Next() {
		row := make(map[string]any)
		for k, v := range it.Row() {
			row[k] = v
		}
		rows = append(rows, row)
	}
	return rows
}

func TestRunExample(t *testing.T) {
	res, table, err := ingest(t, Config{Workers: 2}, 10, testutil.ExampleSchema, strings.NewReader(testutil.ExampleCSV))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, int64(3), res.Lines)
	assert.Same(t, table, res.Table)
	assert.True(t, table.Finalized())
	assert.Equal(t, 3, table.RowCount())

	row, err := table.GetRow(1)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":     int32(2),
		"amount": float32(20.0),
		"flag":   false,
		"color":  "blue",
	}, row)

	groups, err := columnar.GroupBy(table, "color")
	require.NoError(t, err)
	assert.Equal(t, columnar.Groups{"red": {0, 2}, "blue": {1}}, groups)

	sums, err := columnar.Sum(groups, table, "amount")
	require.NoError(t, err)
	assert.InDelta(t, 16.0, sums["red"], 1e-6)
	assert.InDelta(t, 20.0, sums["blue"], 1e-6)
}

func TestWorkerCountEquivalence(t *testing.T) {
	const rows = 20000
	input := testutil.GenerateCSV(rows, 42)

	run := func(workers int) *columnar.Table {
		res, table, err := ingest(t, Config{Workers: workers, StagingBytes: 4096, StagingSlots: 64}, rows, testutil.ExampleSchema, bytes.NewReader(input))
		require.NoError(t, err)
		require.Equal(t, rows, res.Rows)
		return table
	}

	one := run(1)
	eight := run(8)

	assert.Equal(t, dumpRows(t, one), dumpRows(t, eight))

	oneColor, err := one.Column("color")
	require.NoError(t, err)
	eightColor, err := eight.Column("color")
	require.NoError(t, err)
	assert.Equal(t, oneColor.Dictionary().Strings(), eightColor.Dictionary().Strings())
	assert.Equal(t, oneColor.Bytes(), eightColor.Bytes())

	for _, key := range []string{"color", "flag"} {
		g1, err := columnar.GroupBy(one, key)
		require.NoError(t, err)
		g8, err := columnar.GroupBy(eight, key)
		require.NoError(t, err)
		assert.Equal(t, g1, g8)

		s1, err := columnar.Sum(g1, one, "amount")
		require.NoError(t, err)
		s8, err := columnar.Sum(g8, eight, "amount")
		require.NoError(t, err)
		assert.Equal(t, s1, s8)
	}
}

func TestTinyStagingNeverDrops(t *testing.T) {
	const rows = 3000
	input := testutil.GenerateCSV(rows, 7)

	_, reference, err := ingest(t, Config{Workers: 1}, rows, testutil.ExampleSchema, bytes.NewReader(input))
	require.NoError(t, err)
	want := dumpRows(t, reference)

	for _, policy := range []OverflowPolicy{OverflowRetry, OverflowBlock} {
		for _, workers := range []int{1, 2, 3, 8} {
			cfg := Config{
				Workers:      workers,
				StagingBytes: 32,
				StagingSlots: 2,
				ChunkSize:    7,
				Overflow:     policy,
			}
			res, table, err := ingest(t, cfg, rows, testutil.ExampleSchema, bytes.NewReader(input))
			require.NoError(t, err, "%s/%d", policy, workers)
			assert.Equal(t, rows, res.Rows, "%s/%d", policy, workers)
			assert.Equal(t, want, dumpRows(t, table), "%s/%d", policy, workers)

			var perWorker int64
			for _, w := range res.Workers {
				perWorker += w.Rows
			}
			assert.Equal(t, int64(rows), perWorker)
		}
	}
}

func TestMalformedLineFailsFast(t *testing.T) {
	input := "1,10.5,true,red\n2,20.0,false\n3,5.5,true,red\n"
	res, table, err := ingest(t, Config{Workers: 2}, 10, testutil.ExampleSchema, strings.NewReader(input))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.False(t, table.Finalized())
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedLine), err.Error())

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	row, ok := e.Detail("row")
	assert.True(t, ok)
	assert.Equal(t, 1, row)
}

func TestMalformedLineSkipped(t *testing.T) {
	input := strings.Join([]string{
		"1,10.5,true,red",
		"2,abc,false,blue",
		"3,5.5,true,red",
		"4,1.0,maybe,green",
		"5,2.5,false,blue",
		"6,3.5",
	}, "\n")

	res, table, err := ingest(t, Config{Workers: 3, IgnoreErrors: true}, 10, testutil.ExampleSchema, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)
	assert.ElementsMatch(t, []int{1, 3, 5}, res.Skipped)

	var ids []any
	for _, row := range dumpRows(t, table) {
		ids = append(ids, row["id"])
	}
	assert.Equal(t, []any{int32(1), int32(3), int32(5)}, ids)

	color, err := table.Column("color")
	require.NoError(t, err)
	assert.Equal(t, []string{"red", "blue"}, color.Dictionary().Strings())
}

func TestSkippedLineLeavesDictionaryUntouched(t *testing.T) {
	input := "red,1\npurple,x\nblue,2\n"
	for _, workers := range []int{1, 3} {
		res, table, err := ingest(t, Config{Workers: workers, IgnoreErrors: true}, 3, "c:string,v:int32", strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, 2, res.Rows)
		assert.Equal(t, []int{1}, res.Skipped)

		c, err := table.Column("c")
		require.NoError(t, err)
		assert.Equal(t, []string{"red", "blue"}, c.Dictionary().Strings())
	}

	// lines whose only fault comes after a new string never use up a slot
	var b strings.Builder
	for i := 0; i < 2*columnar.MaxDictionarySize; i++ {
		b.WriteString("junk")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(",x\n")
	}
	b.WriteString("ok,1\n")
	res, table, err := ingest(t, Config{Workers: 4, IgnoreErrors: true}, 2*columnar.MaxDictionarySize+1, "c:string,v:int32", strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows)
	c, err := table.Column("c")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, c.Dictionary().Strings())
}

func TestNullGroupSeparateFromNullText(t *testing.T) {
	_, table, err := ingest(t, Config{Workers: 2}, 3, "id:int32,s:string?", strings.NewReader("1,null\n2,\n3,null\n"))
	require.NoError(t, err)

	groups, err := columnar.GroupBy(table, "s")
	require.NoError(t, err)
	assert.Equal(t, columnar.Groups{"null": {0, 2}, columnar.NullKey: {1}}, groups)

	// the reserved key is not accepted as text
	_, _, err = ingest(t, Config{Workers: 1}, 1, "id:int32,s:string", strings.NewReader("1,"+columnar.NullKey+"\n"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedLine))
}

func TestQuotedFields(t *testing.T) {
	input := `1,"hello, world"` + "\n" +
		`2,"she said ""hi"""` + "\n" +
		`3,plain` + "\n" +
		`4,""` + "\n"

	_, table, err := ingest(t, Config{Workers: 2, Quote: '"'}, 4, "id:int32,text:string", strings.NewReader(input))
	require.NoError(t, err)

	var texts []any
	for _, row := range dumpRows(t, table) {
		texts = append(texts, row["text"])
	}
	assert.Equal(t, []any{"hello, world", `she said "hi"`, "plain", ""}, texts)
}

func TestQuoteErrors(t *testing.T) {
	for _, line := range []string{`1,"open`, `1,"closed"x`} {
		_, _, err := ingest(t, Config{Workers: 1, Quote: '"'}, 2, "id:int32,text:string", strings.NewReader(line))
		assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedLine), line)
	}

	// with quoting disabled the quote is an ordinary byte
	_, table, err := ingest(t, Config{Workers: 1, Quote: 0}, 1, "id:int32,text:string", strings.NewReader(`1,"open`))
	require.NoError(t, err)
	v, err := table.GetValue("text", 0)
	require.NoError(t, err)
	assert.Equal(t, `"open`, v)
}

func TestHeaderAndLineEndings(t *testing.T) {
	input := "id,amount,flag,color\r\n1,10.5,true,red\r\n\r\n2,20.0,false,blue\n3,5.5,true,red"
	res, table, err := ingest(t, Config{Workers: 4, Header: true}, 3, testutil.ExampleSchema, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, int64(1), res.Blank)
	assert.Equal(t, int64(5), res.Lines)
	assert.Equal(t, res.Lines, 1+res.Blank+int64(res.Rows+len(res.Skipped)))

	v, err := table.GetValue("color", 2)
	require.NoError(t, err)
	assert.Equal(t, "red", v)
}

func TestNullableColumns(t *testing.T) {
	input := "1,,red\n2,3.5,\n"
	_, table, err := ingest(t, Config{Workers: 2}, 2, "id:int32,amount:float64?,color:string?", strings.NewReader(input))
	require.NoError(t, err)

	rows := dumpRows(t, table)
	assert.Nil(t, rows[0]["amount"])
	assert.Equal(t, 3.5, rows[1]["amount"])
	assert.Nil(t, rows[1]["color"])

	// empty is not null for a non-nullable numeric column
	_, _, err = ingest(t, Config{Workers: 1}, 1, "id:int32,amount:float64", strings.NewReader("1,\n"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedLine))
}

func TestIOErrorAbortsRun(t *testing.T) {
	boom := goerrors.New("connection reset")
	r := io.MultiReader(bytes.NewReader(testutil.GenerateCSV(500, 1)), iotest.ErrReader(boom))

	res, table, err := ingest(t, Config{Workers: 4}, 1000, testutil.ExampleSchema, r)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIO))
	assert.ErrorIs(t, err, boom)
	assert.False(t, table.Finalized())
}

func TestCapacityOverflow(t *testing.T) {
	input := testutil.GenerateCSV(11, 3)
	_, table, err := ingest(t, Config{Workers: 2}, 10, testutil.ExampleSchema, bytes.NewReader(input))
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapacityOverflow))
	assert.False(t, table.Finalized())

	long := "1,1.0,true," + strings.Repeat("x", 100) + "\n"
	_, _, err = ingest(t, Config{Workers: 2, StagingBytes: 64}, 10, testutil.ExampleSchema, strings.NewReader(long))
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapacityOverflow))
}

func TestDictionaryOverflowFailsEvenWhenIgnoringErrors(t *testing.T) {
	var b strings.Builder
	for i := 0; i < columnar.MaxDictionarySize+1; i++ {
		b.WriteString("v")
		b.WriteString(strings.Repeat("x", i%5))
		b.WriteString(string(rune('a' + i%26)))
		b.WriteString(string(rune('a' + i/26)))
		b.WriteByte('\n')
	}
	_, _, err := ingest(t, Config{Workers: 3, IgnoreErrors: true}, 300, "s:string", strings.NewReader(b.String()))
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapacityOverflow))
}

func TestWorkerStatesAndSingleUse(t *testing.T) {
	table := newTable(t, 10, testutil.ExampleSchema)
	p, err := New(Config{Workers: 3}, table, testutil.TestLogger(t))
	require.NoError(t, err)
	assert.Nil(t, p.WorkerStates())

	_, err = p.Run(testutil.TestContext(t), strings.NewReader(testutil.ExampleCSV))
	require.NoError(t, err)
	assert.Equal(t, []WorkerState{WorkerDone, WorkerDone, WorkerDone}, p.WorkerStates())

	_, err = p.Run(testutil.TestContext(t), strings.NewReader(testutil.ExampleCSV))
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = New(Config{}, table, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestEmptyInput(t *testing.T) {
	res, table, err := ingest(t, Config{Workers: 2}, 5, testutil.ExampleSchema, strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rows)
	assert.Equal(t, 0, table.RowCount())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := []Config{
		{Workers: -1},
		{Overflow: "drop"},
		{Delimiter: '\n'},
		{Delimiter: '"', Quote: '"'},
		{StagingBytes: -5},
	}
	for _, c := range bad {
		err := c.withDefaults().Validate()
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "%+v", c)
	}
}
