package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"time"
)

// Provider is the metrics sink ChatServer reports through. Defining it
// lets a test substitute MockProvider instead of pulling in expvar.
type Provider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
	Stop()
}

// Metrics is the broker's /debug/vars counter set: connections
// registered, currently active connections, rooms created, and chat
// messages relayed. Updates are serialized through one goroutine so
// concurrent Incr/Decr calls from different Room actors never race on
// the same expvar.Int.
type Metrics struct {
	vars       *expvar.Map
	updateChan chan *metricsUpdateReq
}

type metricsUpdateReq struct {
	name  string
	value int
}

func NewMetrics() *Metrics {
	m := &Metrics{
		updateChan: make(chan *metricsUpdateReq, 512),
		// A local, unpublished Map rather than expvar.NewMap("rtc-broker"):
		// expvar.Publish panics on a second registration of the same name,
		// and every ChatServer (including one per test) builds its own
		// Metrics. /debug/vars is served through MetricsHandler below, not
		// expvar's own default handler, so nothing needs the global name.
		vars: new(expvar.Map).Init(),
	}
	m.initializeMetrics()
	return m
}

func (m *Metrics) initializeMetrics() {
	startTime := time.Now()
	m.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))

	for _, name := range []string{"ConnectionsRegistered", "ActiveConnections", "RoomsCreated", "ChatMessagesRelayed"} {
		m.RegisterMetric(name)
	}
}

// Handler serves the current counter set as JSON, replacing the
// teacher's package-level expvarHandler with one scoped to this
// Metrics instance so more than one could exist in a process without
// colliding on expvar's global namespace.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		data := make(map[string]any)
		m.vars.Do(func(kv expvar.KeyValue) {
			var value any
			json.Unmarshal([]byte(kv.Value.String()), &value)
			data[kv.Key] = value
		})
		json.NewEncoder(w).Encode(data)
	}
}

func (m *Metrics) updateMetrics() {
	for req := range m.updateChan {
		metric := m.vars.Get(req.name)
		if metric == nil {
			continue
		}
		metric.(*expvar.Int).Add(int64(req.value))
	}
}

func (m *Metrics) Incr(name string) {
	m.updateChan <- &metricsUpdateReq{name: name, value: 1}
}

func (m *Metrics) Decr(name string) {
	m.updateChan <- &metricsUpdateReq{name: name, value: -1}
}

func (m *Metrics) RegisterMetric(name string) {
	m.vars.Set(name, new(expvar.Int))
}

func (m *Metrics) Run() {
	go m.updateMetrics()
}

func (m *Metrics) Stop() {
	close(m.updateChan)
}
