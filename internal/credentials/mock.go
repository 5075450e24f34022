package credentials

import "github.com/stretchr/testify/mock"

// MockRepository backs Store tests.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateUser(email, username, passwordHash string) (User, error) {
	args := m.Called(email, username, passwordHash)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockRepository) GetUserByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockRepository) GetUserById(id int) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
