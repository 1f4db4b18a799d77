// internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
	"github.com/brandontrabucco/insta-dev-sub000/internal/transport"
)

// -- Session Mock --

// MockSession mocks transport.Session.
type MockSession struct {
	mock.Mock
}

var _ transport.Session = (*MockSession)(nil)

func (m *MockSession) Start(ctx context.Context, opts transport.StartOptions) error {
	args := m.Called(ctx, opts)
	return args.Error(0)
}

func (m *MockSession) Close(ctx context.Context) (schemas.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.Status), args.Error(1)
}

func (m *MockSession) Goto(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockSession) Observation(ctx context.Context) (*schemas.BrowserObservation, error) {
	args := m.Called(ctx)
	if obs := args.Get(0); obs != nil {
		return obs.(*schemas.BrowserObservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSession) Action(ctx context.Context, calls []schemas.FunctionCall) error {
	args := m.Called(ctx, calls)
	return args.Error(0)
}

func (m *MockSession) SessionID() string {
	args := m.Called()
	return args.String(0)
}

// -- Recorder Mock --

// MockRecorder mocks env.Recorder.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) StartTrajectory(ctx context.Context, t *schemas.Trajectory) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockRecorder) RecordStep(ctx context.Context, step *schemas.TrajectoryStep) error {
	args := m.Called(ctx, step)
	return args.Error(0)
}
