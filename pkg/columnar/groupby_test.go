package columnar

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleTable(t *testing.T) *Table {
	t.Helper()
	table := newTestTable(t, 3, "id:int32,amount:float32,flag:bool,color:string")
	fillRows(t, table, [][]any{
		{int32(1), float32(10.5), true, "red"},
		{int32(2), float32(20.0), false, "blue"},
		{int32(3), float32(5.5), true, "red"},
	})
	require.NoError(t, table.Finalize(3, nil))
	return table
}

func TestGroupByAndSumExample(t *testing.T) {
	table := exampleTable(t)

	groups, err := GroupBy(table, "color")
	require.NoError(t, err)
	assert.Equal(t, Groups{"red": {0, 2}, "blue": {1}}, groups)
	assert.Equal(t, []string{"blue", "red"}, groups.Keys())
	assert.Equal(t, map[string]int{"red": 2, "blue": 1}, groups.Count())

	sums, err := Sum(groups, table, "amount")
	require.NoError(t, err)
	assert.InDelta(t, 16.0, sums["red"], 1e-9)
	assert.InDelta(t, 20.0, sums["blue"], 1e-9)
}

func TestGroupByKeyFormatting(t *testing.T) {
	table := exampleTable(t)

	byFlag, err := GroupBy(table, "flag")
	require.NoError(t, err)
	assert.Equal(t, Groups{"true": {0, 2}, "false": {1}}, byFlag)

	byID, err := GroupBy(table, "id")
	require.NoError(t, err)
	assert.Equal(t, Groups{"1": {0}, "2": {1}, "3": {2}}, byID)

	byAmount, err := GroupBy(table, "amount")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.5", "20", "5.5"}, byAmount.Keys())

	flagSums, err := Sum(byID, table, "flag")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"1": 1, "2": 0, "3": 1}, flagSums)
}

func TestGroupByErrors(t *testing.T) {
	table := exampleTable(t)

	_, err := GroupBy(table, "size")
	assert.True(t, errors.IsType(err, errors.ErrorTypeColumnNotFound))

	groups, err := GroupBy(table, "color")
	require.NoError(t, err)

	_, err = Sum(groups, table, "size")
	assert.True(t, errors.IsType(err, errors.ErrorTypeColumnNotFound))

	_, err = Sum(groups, table, "color")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = Sum(Groups{"x": {7}}, table, "amount")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestGroupByNulls(t *testing.T) {
	table := newTestTable(t, 4, "color:string?,amount:float64?")
	fillRows(t, table, [][]any{
		{"red", 1.0},
		{nil, 2.0},
		{"red", nil},
		{nil, 4.0},
	})
	require.NoError(t, table.Finalize(4, nil))

	groups, err := GroupBy(table, "color")
	require.NoError(t, err)
	assert.Equal(t, Groups{"red": {0, 2}, NullKey: {1, 3}}, groups)

	sums, err := Sum(groups, table, "amount")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"red": 1, NullKey: 6}, sums)

	byAmount, err := GroupBy(table, "amount")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, byAmount[NullKey])
}

func TestGroupByNullDoesNotCollideWithValue(t *testing.T) {
	table := newTestTable(t, 4, "id:int32?,s:string?")
	fillRows(t, table, [][]any{
		{int32(1), "null"},
		{nil, nil},
		{int32(3), "null"},
		{nil, "x"},
	})
	require.NoError(t, table.Finalize(4, nil))

	byS, err := GroupBy(table, "s")
	require.NoError(t, err)
	assert.Equal(t, Groups{"null": {0, 2}, NullKey: {1}, "x": {3}}, byS)

	byID, err := GroupBy(table, "id")
	require.NoError(t, err)
	assert.Equal(t, Groups{"1": {0}, "3": {2}, NullKey: {1, 3}}, byID)

	sums, err := SumLinear(table, "s", "id")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"null": 4, NullKey: 0, "x": 0}, sums)
}

func TestSumMatchesLinearPassUnderPermutation(t *testing.T) {
	const rows = 2000
	colors := []string{"red", "blue", "green", "cyan", "magenta"}
	rng := rand.New(rand.NewSource(7))

	type record struct {
		color  string
		amount float64
		qty    int64
	}
	records := make([]record, rows)
	for i := range records {
		records[i] = record{
			color:  colors[rng.Intn(len(colors))],
			amount: rng.Float64() * 1000,
			qty:    rng.Int63n(100),
		}
	}

	build := func(order []int) *Table {
		table := newTestTable(t, rows, "color:string,amount:float64,qty:int64")
		for r, i := range order {
			require.NoError(t, table.SetValue("color", r, records[i].color))
			require.NoError(t, table.SetValue("amount", r, records[i].amount))
			require.NoError(t, table.SetValue("qty", r, records[i].qty))
		}
		require.NoError(t, table.Finalize(rows, nil))
		return table
	}

	identity := make([]int, rows)
	for i := range identity {
		identity[i] = i
	}
	shuffled := rng.Perm(rows)

	var reference map[string]float64
	for _, order := range [][]int{identity, shuffled} {
		table := build(order)
		groups, err := GroupBy(table, "color")
		require.NoError(t, err)

		sums, err := Sum(groups, table, "amount")
		require.NoError(t, err)
		linear, err := SumLinear(table, "color", "amount")
		require.NoError(t, err)
		require.Equal(t, len(linear), len(sums))
		for k, v := range linear {
			assert.InDelta(t, v, sums[k], 1e-6, k)
		}

		qty, err := Sum(groups, table, "qty")
		require.NoError(t, err)
		qtyLinear, err := SumLinear(table, "color", "qty")
		require.NoError(t, err)
		assert.Equal(t, qtyLinear, qty)

		if reference == nil {
			reference = sums
			continue
		}
		for k, v := range reference {
			assert.InDelta(t, v, sums[k], 1e-6, k)
		}
	}
}

func TestGroupByRowOrder(t *testing.T) {
	table := newTestTable(t, 300, "k:int32")
	for i := 0; i < 300; i++ {
		require.NoError(t, table.SetValue("k", i, int32(i%3)))
	}
	groups, err := GroupBy(table, "k")
	require.NoError(t, err)
	for k, rows := range groups {
		want, _ := strconv.Atoi(k)
		for j, row := range rows {
			assert.Equal(t, want+3*j, row)
		}
	}
}
