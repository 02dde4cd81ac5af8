package linesplit

import (
	"testing"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldSplitter(t *testing.T) {
	tests := []struct {
		name  string
		quote byte
		line  string
		want  []string
	}{
		{"plain", '"', "1,10.5,true,red", []string{"1", "10.5", "true", "red"}},
		{"empty fields", '"', ",,", []string{"", "", ""}},
		{"empty line", '"', "", []string{""}},
		{"quoted delimiter", '"', `1,"a,b",c`, []string{"1", "a,b", "c"}},
		{"escaped quote", '"', `"say ""hi""",2`, []string{`say "hi"`, "2"}},
		{"quoted last", '"', `1,""`, []string{"1", ""}},
		{"quote mid field is literal", '"', `ab"c,d`, []string{`ab"c`, "d"}},
		{"quoting disabled", 0, `"a,b"`, []string{`"a`, `b"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := NewFieldSplitter(',', tt.quote, 4)
			fields, err := fs.Split([]byte(tt.line))
			require.NoError(t, err)
			got := make([]string, len(fields))
			for i, f := range fields {
				got[i] = string(f)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldSplitterErrors(t *testing.T) {
	fs := NewFieldSplitter('|', '\'', 0)
	for _, line := range []string{`'open`, `'a'b|c`} {
		_, err := fs.Split([]byte(line))
		assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedLine), "%q: %v", line, err)
	}

	// the splitter recovers on the next line
	fields, err := fs.Split([]byte(`'x|y'|z`))
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "x|y", string(fields[0]))
}
