package guide

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/stepwise/internal/step"
)

// MockSink is a mock implementation of StateSink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) SetState(desc step.Descriptor, state step.State) {
	m.Called(desc, state)
}

func (m *MockSink) HandleError(err error, label string, desc step.Descriptor, rethrow bool) {
	m.Called(err, label, desc, rethrow)
}

// states returns the states reported so far, in order.
func (m *MockSink) states() []step.State {
	var out []step.State
	for _, c := range m.Calls {
		if c.Method == "SetState" {
			out = append(out, c.Arguments.Get(1).(step.State))
		}
	}
	return out
}

// MockNavigator is a mock implementation of Navigator.
type MockNavigator struct {
	mock.Mock
}

func (m *MockNavigator) EnsureOpen(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
