package stats

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_handlerReportsCounters(t *testing.T) {
	m := NewMetrics()
	m.Run()
	defer m.Stop()

	m.Incr("RoomsCreated")
	m.Incr("RoomsCreated")
	m.Decr("RoomsCreated")

	var body map[string]any
	assert.Eventually(t, func() bool {
		rr := httptest.NewRecorder()
		m.Handler()(rr, httptest.NewRequest("GET", "/debug/vars", nil))
		return json.Unmarshal(rr.Body.Bytes(), &body) == nil && body["RoomsCreated"] == float64(1)
	}, time.Second, 5*time.Millisecond)
}

func TestMetrics_ignoresUnregisteredMetric(t *testing.T) {
	m := NewMetrics()
	m.Run()
	defer m.Stop()

	assert.NotPanics(t, func() {
		m.Incr("not-a-real-metric")
	})
}
