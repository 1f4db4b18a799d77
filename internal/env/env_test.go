// internal/env/env_test.go
package env

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
	"github.com/brandontrabucco/insta-dev-sub000/internal/actions"
	"github.com/brandontrabucco/insta-dev-sub000/internal/markdown"
	"github.com/brandontrabucco/insta-dev-sub000/internal/mocks"
	"github.com/brandontrabucco/insta-dev-sub000/internal/transport"
)

const startURL = "https://example.com"

func newObservation() *schemas.BrowserObservation {
	return &schemas.BrowserObservation{
		RawHTML:    `<h1>Shop</h1><button backend_node_id="5">Next</button>`,
		Metadata:   map[string]*schemas.NodeMetadata{"5": {BackendNodeID: 5, IsVisible: true, IsFrontmost: true}},
		CurrentURL: startURL,
	}
}

const wantText = "# Shop\n[id: 5] \"Next\" (button)"

func sessionNotFound() error {
	return schemas.NewEnvError(schemas.KindSessionNotFound, "action",
		&schemas.ServerError{StatusCode: 404, Message: "session not found"})
}

// newStartedEnv returns an environment that has been Reset once.
func newStartedEnv(t *testing.T, recorder Recorder) (*Environment, *mocks.MockSession) {
	t.Helper()
	session := &mocks.MockSession{}
	session.On("SessionID").Return("").Once()
	session.On("Start", mock.Anything, transport.StartOptions{}).Return(nil).Once()
	session.On("Goto", mock.Anything, startURL).Return(nil).Once()
	session.On("Observation", mock.Anything).Return(newObservation(), nil)

	env := New(session, Options{Recorder: recorder, Logger: zaptest.NewLogger(t)})
	obs, err := env.Reset(context.Background(), startURL)
	require.NoError(t, err)
	require.Equal(t, wantText, obs.ProcessedText)
	return env, session
}

func clickAction() *schemas.BrowserAction {
	return &schemas.BrowserAction{FunctionCalls: []schemas.FunctionCall{
		actions.Locator("5"),
		{Dotpath: "click"},
	}}
}

func TestReset(t *testing.T) {
	env, session := newStartedEnv(t, nil)

	_, err := uuid.Parse(env.TrajectoryID())
	assert.NoError(t, err)
	session.AssertExpectations(t)
}

func TestReset_ReusesActiveSession(t *testing.T) {
	session := &mocks.MockSession{}
	session.On("SessionID").Return("sess-1")
	session.On("Goto", mock.Anything, startURL).Return(nil)
	session.On("Observation", mock.Anything).Return(newObservation(), nil)

	env := New(session, Options{})
	_, err := env.Reset(context.Background(), startURL)
	require.NoError(t, err)
	first := env.TrajectoryID()

	_, err = env.Reset(context.Background(), startURL)
	require.NoError(t, err)
	assert.NotEqual(t, first, env.TrajectoryID(), "every reset starts a new trajectory")
	session.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
}

func TestReset_RestartsLostSession(t *testing.T) {
	session := &mocks.MockSession{}
	session.On("SessionID").Return("stale")
	session.On("Goto", mock.Anything, startURL).Return(sessionNotFound()).Once()
	session.On("Start", mock.Anything, mock.Anything).Return(nil).Once()
	session.On("Goto", mock.Anything, startURL).Return(nil).Once()
	session.On("Observation", mock.Anything).Return(newObservation(), nil)

	env := New(session, Options{})
	_, err := env.Reset(context.Background(), startURL)
	require.NoError(t, err)
	session.AssertExpectations(t)
}

func TestReset_PropagatesStartFailure(t *testing.T) {
	startErr := schemas.NewEnvError(schemas.KindServer, "start", &schemas.ServerError{StatusCode: 500, Message: "no browsers"})
	session := &mocks.MockSession{}
	session.On("SessionID").Return("")
	session.On("Start", mock.Anything, mock.Anything).Return(startErr)

	env := New(session, Options{})
	_, err := env.Reset(context.Background(), startURL)
	assert.ErrorIs(t, err, startErr)
	session.AssertNotCalled(t, "Goto", mock.Anything, mock.Anything)
}

func TestStep_BeforeReset(t *testing.T) {
	session := &mocks.MockSession{}
	env := New(session, Options{})

	result, err := env.Step(context.Background(), clickAction())
	require.Error(t, err)
	assert.True(t, schemas.IsKind(err, schemas.KindNotStarted))
	assert.Equal(t, schemas.StatusError, result.Status)
	session.AssertNotCalled(t, "Action", mock.Anything, mock.Anything)
}

func TestStep_Action(t *testing.T) {
	env, session := newStartedEnv(t, nil)
	session.On("Action", mock.Anything, clickAction().FunctionCalls).Return(nil).Once()

	result, err := env.Step(context.Background(), clickAction())
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusSuccess, result.Status)
	assert.False(t, result.Done)
	assert.Equal(t, wantText, result.Observation.ProcessedText)
	session.AssertExpectations(t)
}

func TestStep_EmptyActionIsNoop(t *testing.T) {
	env, session := newStartedEnv(t, nil)

	result, err := env.Step(context.Background(), &schemas.BrowserAction{})
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusNoop, result.Status)
	assert.NotNil(t, result.Observation)
	session.AssertNotCalled(t, "Action", mock.Anything, mock.Anything)
	session.AssertNumberOfCalls(t, "Observation", 2)
}

func TestStep_StopIsLocal(t *testing.T) {
	env, session := newStartedEnv(t, nil)
	stop := &schemas.BrowserAction{FunctionCalls: []schemas.FunctionCall{{Dotpath: schemas.StopDotpath, Args: `"42"`}}}

	result, err := env.Step(context.Background(), stop)
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.False(t, result.Truncated)
	assert.Equal(t, "42", result.Answer)
	assert.Equal(t, wantText, result.Observation.ProcessedText)
	session.AssertNotCalled(t, "Action", mock.Anything, mock.Anything)
	session.AssertNumberOfCalls(t, "Observation", 1)

	_, err = env.Step(context.Background(), clickAction())
	assert.ErrorIs(t, err, ErrTrajectoryDone)
}

func TestStep_ActionFailureStillObserves(t *testing.T) {
	env, session := newStartedEnv(t, nil)
	actionErr := schemas.NewEnvError(schemas.KindServer, "action", &schemas.ServerError{StatusCode: 400, Message: "element detached"})
	session.On("Action", mock.Anything, mock.Anything).Return(actionErr)

	result, err := env.Step(context.Background(), clickAction())
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusError, result.Status)
	assert.ErrorIs(t, result.Err, actionErr)
	assert.False(t, result.Done)
	assert.Equal(t, wantText, result.Observation.ProcessedText)
}

func TestStep_SessionNotFoundTruncates(t *testing.T) {
	env, session := newStartedEnv(t, nil)
	session.On("Action", mock.Anything, mock.Anything).Return(sessionNotFound())

	result, err := env.Step(context.Background(), clickAction())
	require.Error(t, err)
	assert.True(t, result.Done)
	assert.True(t, result.Truncated)
	assert.Equal(t, schemas.StatusError, result.Status)
	session.AssertNumberOfCalls(t, "Observation", 1)

	_, err = env.Step(context.Background(), clickAction())
	assert.ErrorIs(t, err, ErrTrajectoryDone)
}

func TestStep_ObservationFailure(t *testing.T) {
	session := &mocks.MockSession{}
	session.On("SessionID").Return("sess")
	session.On("Goto", mock.Anything, startURL).Return(nil)
	session.On("Observation", mock.Anything).Return(newObservation(), nil).Once()
	obsErr := schemas.NewEnvError(schemas.KindProtocol, "observation", errors.New("missing raw_html"))
	session.On("Observation", mock.Anything).Return(nil, obsErr).Once()
	session.On("Action", mock.Anything, mock.Anything).Return(nil)

	env := New(session, Options{})
	_, err := env.Reset(context.Background(), startURL)
	require.NoError(t, err)

	result, err := env.Step(context.Background(), clickAction())
	assert.ErrorIs(t, err, obsErr)
	assert.Equal(t, schemas.StatusError, result.Status)
	assert.False(t, result.Done)
}

func TestStepText(t *testing.T) {
	env, session := newStartedEnv(t, nil)
	session.On("Action", mock.Anything, clickAction().FunctionCalls).Return(nil)

	result, err := env.StepText(context.Background(), "no fenced block here")
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusNoop, result.Status)
	assert.True(t, schemas.IsKind(result.ParseErr, schemas.KindParse))

	result, err = env.StepText(context.Background(), "```json\n{\"action_key\":\"click\",\"target_element_id\":5}\n```")
	require.NoError(t, err)
	assert.NoError(t, result.ParseErr)
	assert.Equal(t, schemas.StatusSuccess, result.Status)
}

func TestRecorder(t *testing.T) {
	recorder := &mocks.MockRecorder{}
	recorder.On("StartTrajectory", mock.Anything, mock.MatchedBy(func(tr *schemas.Trajectory) bool {
		return tr.StartURL == startURL && tr.ID != ""
	})).Return(nil).Once()
	recorder.On("RecordStep", mock.Anything, mock.MatchedBy(func(s *schemas.TrajectoryStep) bool {
		return s.Index == 0 && s.ProcessedText == wantText && s.Status == schemas.StatusSuccess
	})).Return(nil).Once()
	recorder.On("RecordStep", mock.Anything, mock.MatchedBy(func(s *schemas.TrajectoryStep) bool {
		return s.Index == 1 && len(s.FunctionCalls) == 2
	})).Return(errors.New("database down")).Once()

	env, session := newStartedEnv(t, recorder)
	session.On("Action", mock.Anything, mock.Anything).Return(nil)

	result, err := env.Step(context.Background(), clickAction())
	require.NoError(t, err, "recording failures are not fatal")
	assert.Equal(t, schemas.StatusSuccess, result.Status)
	recorder.AssertExpectations(t)
}

func TestClose(t *testing.T) {
	env, session := newStartedEnv(t, nil)
	session.On("Close", mock.Anything).Return(schemas.StatusSuccess, nil)

	status, err := env.Close(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusSuccess, status)

	_, err = env.Step(context.Background(), clickAction())
	assert.ErrorIs(t, err, ErrTrajectoryDone)
}

// Independent environments share nothing and can run in parallel.
func TestIndependentEnvironments(t *testing.T) {
	const n = 4
	ids := make([]string, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			session := &mocks.MockSession{}
			session.On("SessionID").Return(fmt.Sprintf("sess-%d", i))
			session.On("Goto", mock.Anything, startURL).Return(nil)
			session.On("Observation", mock.Anything).Return(newObservation(), nil)
			session.On("Action", mock.Anything, mock.Anything).Return(nil)

			env := New(session, Options{Processor: NewProcessor(nil, markdown.NewConverter(markdown.NewDefaultRegistry(), markdown.BuildOptions{}, markdown.RenderOptions{}, nil), nil)})
			if _, err := env.Reset(context.Background(), startURL); err != nil {
				return err
			}
			result, err := env.Step(context.Background(), clickAction())
			if err != nil {
				return err
			}
			if result.Observation.ProcessedText != wantText {
				return fmt.Errorf("env %d rendered %q", i, result.Observation.ProcessedText)
			}
			ids[i] = env.TrajectoryID()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "trajectory ids are unique")
		seen[id] = true
	}
}
