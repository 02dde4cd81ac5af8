package testutil

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// ExampleSchema is the schema of the rows produced by GenerateCSV
const ExampleSchema = "id:int32,amount:float32,flag:bool,color:string"

// ExampleCSV is the three-row input used throughout the docs
const ExampleCSV = "1,10.5,true,red\n2,20.0,false,blue\n3,5.5,true,red\n"

// Colors is the value domain of the color column in generated data
var Colors = []string{"red", "blue", "green", "yellow", "black", "white", "cyan"}

// GenerateCSV returns rows lines matching ExampleSchema. Output is fully
// determined by seed.
func GenerateCSV(rows int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	var buf bytes.Buffer
	buf.Grow(rows * 24)
	for i := 0; i < rows; i++ {
		buf.WriteString(strconv.Itoa(i + 1))
		buf.WriteByte(',')
		// two decimals keep float32 parsing exact enough for sums
		buf.WriteString(strconv.FormatFloat(float64(rng.Intn(100000))/100, 'f', 2, 64))
		buf.WriteByte(',')
		buf.WriteString(strconv.FormatBool(rng.Intn(2) == 0))
		buf.WriteByte(',')
		buf.WriteString(Colors[rng.Intn(len(Colors))])
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WriteTempFile writes content to name inside a per-test temp directory and
// returns the full path.
func WriteTempFile(t testing.TB, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}
