package objgraph

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorsRegister(t *testing.T) {
	r := prometheus.NewRegistry()
	for _, c := range Collectors() {
		assert.Nil(t, r.Register(c))
	}
}

func TestMetricsCount(t *testing.T) {
	reg := newNodeRegistry(t)
	mb := newMapBackend()
	d := NewDomain(reg, mb.facilities(), Options{})

	stored := testutil.ToFloat64(ObjectsStored)
	loaded := testutil.ToFloat64(ObjectsLoaded)
	unloaded := testutil.ToFloat64(ObjectsUnloaded)
	byCount := testutil.ToFloat64(ObjectsDestroyed.WithLabelValues(reasonRefcount))
	byCycle := testutil.ToFloat64(ObjectsDestroyed.WithLabelValues(reasonCycle))

	a := mkNode(t, d, 0, 1)
	b := mkNode(t, d, 0, 2)
	link(a, b.Share())
	link(b, a.Share())
	assert.Nil(t, a.Serialize(d, 0))
	assert.Equal(t, stored+2, testutil.ToFloat64(ObjectsStored))

	b.Release()
	a.Unload()
	assert.Equal(t, unloaded+1, testutil.ToFloat64(ObjectsUnloaded))
	assert.Equal(t, byCycle+2, testutil.ToFloat64(ObjectsDestroyed.WithLabelValues(reasonCycle)))

	assert.Nil(t, a.Load(d))
	assert.Equal(t, loaded+2, testutil.ToFloat64(ObjectsLoaded))
	// break the cycle, then plain counting frees both
	a.Get().A[0].Get().A[0].Release()
	a.Release()
	assert.Equal(t, byCount+2, testutil.ToFloat64(ObjectsDestroyed.WithLabelValues(reasonRefcount)))
}
