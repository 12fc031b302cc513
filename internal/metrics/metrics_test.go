package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New("")
	m.RecordDocument("ok", 3)
	m.RecordDocument("ok", 2)
	m.RecordDocument("failed", 0)
	m.RecordQuery("answered", 10*time.Millisecond)
	m.RecordEmbed(time.Millisecond)
	m.SetIndexEntries(5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.documentsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.documentsTotal.WithLabelValues("failed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.chunksTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queriesTotal.WithLabelValues("answered")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.indexEntries))
	assert.Equal(t, 1, testutil.CollectAndCount(m.queryDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordDocument("ok", 1)
	m.RecordQuery("empty", time.Second)
	m.RecordEmbed(time.Second)
	m.SetIndexEntries(1)
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile("/nonexistent/metrics.prom"))
}

func TestWriteTextfile(t *testing.T) {
	m := New("docrag")
	m.SetIndexEntries(7)
	path := filepath.Join(t.TempDir(), "docrag.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "docrag_index_entries 7")
}
