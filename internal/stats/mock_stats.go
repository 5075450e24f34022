package stats

import "github.com/stretchr/testify/mock"

// MockProvider is a testify mock of Provider, for tests that need to
// assert a metric fired without standing up a real Metrics/expvar
// instance. No test in the repository uses it; ChatServer always
// builds a real Metrics.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Incr(name string) {
	m.Called(name)
}

func (m *MockProvider) Decr(name string) {
	m.Called(name)
}

func (m *MockProvider) RegisterMetric(name string) {
	m.Called(name)
}

func (m *MockProvider) Run() {
	m.Called()
}

func (m *MockProvider) Stop() {
	m.Called()
}
