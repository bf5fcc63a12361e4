package collect

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-harvester/internal/harvest"
)

func TestStreamRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sw := NewStreamWriter(&buf)
	sw.Append(harvest.Record{"title": "one", "category": "Poetry"})
	sw.Append(nil)
	sw.Append(harvest.Record{"title": "two", "category": "Poetry"})
	require.NoError(t, sw.Err())
	require.Equal(t, 2, strings.Count(buf.String(), "\n"))

	c := New()
	n, err := ReadStream(&buf, c)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "two", c.Snapshot()[1].DisplayName())
}

func TestReadStreamKeepsRecordsBeforeGarbage(t *testing.T) {
	t.Parallel()

	c := New()
	n, err := ReadStream(strings.NewReader(`{"title":"ok"}`+"\nnot json\n"), c)
	require.Error(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, c.Len())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestStreamWriterKeepsFirstError(t *testing.T) {
	t.Parallel()

	sw := NewStreamWriter(failingWriter{})
	sw.Append(harvest.Record{"title": "lost"})
	sw.Append(harvest.Record{"title": "also lost"})
	require.ErrorContains(t, sw.Err(), "broken pipe")
}
