package inspect

import (
	"bytes"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"github.com/ValentinKolb/snapKV/lib/db/engines/vchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		value codec.Value
		want  string
	}{
		{"null", codec.Null{}, "Null"},
		{"nil", nil, "Null"},
		{"string", codec.String("a"), `String("a")`},
		{"int32", codec.Int32(42), "Int32(42)"},
		{"int64", codec.Int64(-1), "Int64(-1)"},
		{"byte", codec.Byte(7), "Byte(7)"},
		{"bytes", codec.Bytes{0xca, 0xfe}, "Bytes(cafe)"},
		{"time", codec.NewTime(time.Unix(0, 0)), "Time(1970-01-01T00:00:00Z)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.value))
		})
	}
}

func TestPrint(t *testing.T) {
	opts := vchain.DefaultOptions()
	opts.GCInterval = time.Hour
	database := vchain.NewVChainDB(opts)
	defer database.Close()

	require.NoError(t, database.Publish("a", codec.String("a1"), 1))
	require.NoError(t, database.Publish("a", codec.String("a2"), 3))
	require.NoError(t, database.Publish("b", codec.Int32(1), 2))
	require.NoError(t, database.Delete("b", 4))

	var all bytes.Buffer
	Print(&all, database, "", 0)
	assert.Equal(t, "generation: 4\nkeys:       2\n\n"+
		"a (depth 2)\n"+
		"  @3          String(\"a2\")\n"+
		"  @1          String(\"a1\")\n"+
		"b (depth 2)\n"+
		"  @4          <deleted>\n"+
		"  @2          Int32(1)\n", all.String())

	var atGen bytes.Buffer
	Print(&atGen, database, "", 2)
	assert.Equal(t, "generation: 4\nkeys:       2\n\n"+
		"a = String(\"a1\")\n"+
		"b = Int32(1)\n", atGen.String())

	var prefixed bytes.Buffer
	Print(&prefixed, database, "b", 4)
	assert.Equal(t, "generation: 4\nkeys:       2\n\n", prefixed.String())
}
