package columnar

import (
	"testing"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/compression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionStats(t *testing.T) {
	const rows = 5000
	table := newTestTable(t, rows, "id:int32,color:string,flag:bool")
	colors := []string{"red", "blue", "green"}
	for i := 0; i < rows; i++ {
		require.NoError(t, table.SetValue("id", i, int32(i)))
		require.NoError(t, table.SetValue("color", i, colors[i%3]))
		require.NoError(t, table.SetValue("flag", i, i%2 == 0))
	}
	require.NoError(t, table.Finalize(rows, nil))

	for _, algo := range []compression.Algorithm{compression.Zstd, compression.LZ4, compression.S2} {
		t.Run(string(algo), func(t *testing.T) {
			comp, err := compression.NewCompressor(&compression.Config{Algorithm: algo, Level: compression.Default})
			require.NoError(t, err)

			report, err := CompressionStats(table, comp)
			require.NoError(t, err)
			assert.Equal(t, algo, report.Algorithm)
			require.Len(t, report.Columns, 3)

			color := report.Columns[1]
			assert.Equal(t, "color", color.Column)
			assert.Equal(t, "string", color.Type)
			assert.Greater(t, color.Ratio, 10.0)

			assert.Equal(t, report.Columns[0].RawBytes+report.Columns[1].RawBytes+report.Columns[2].RawBytes, report.RawBytes)
			assert.Greater(t, report.Ratio, 1.0)
		})
	}
}
