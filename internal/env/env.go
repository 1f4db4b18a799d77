// internal/env/env.go

// Package env composes the transport, markdown and action components into
// the reset and step loop an agent drives.
package env

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
	"github.com/brandontrabucco/insta-dev-sub000/internal/actions"
	"github.com/brandontrabucco/insta-dev-sub000/internal/transport"
)

// ErrTrajectoryDone is returned by Step after a stop or a lost session.
var ErrTrajectoryDone = errors.New("trajectory is done, call Reset")

// Recorder receives every trajectory and step the environment produces.
type Recorder interface {
	StartTrajectory(ctx context.Context, t *schemas.Trajectory) error
	RecordStep(ctx context.Context, step *schemas.TrajectoryStep) error
}

// Options configures an Environment.
type Options struct {
	StartOptions transport.StartOptions
	// Processor defaults to NewProcessor(nil, nil, Logger).
	Processor *Processor
	// Parser is used by StepText and defaults to the JSON grammar.
	Parser actions.Parser
	// Recorder is optional. Recording failures are logged and ignored.
	Recorder Recorder
	Logger   *zap.Logger
}

// StepResult is the outcome of one step.
type StepResult struct {
	Observation *schemas.BrowserObservation
	Action      *schemas.BrowserAction
	Status      schemas.Status
	// Done ends the trajectory; Truncated marks it as cut short by a lost session.
	Done      bool
	Truncated bool
	// Answer is the text carried by a stop action.
	Answer string
	// Err is the failure behind an ERROR status.
	Err error
	// ParseErr is set by StepText when the response held no valid action.
	ParseErr error
}

// Environment drives one session. It is not safe for concurrent use; run one
// Environment per session instead.
type Environment struct {
	session   transport.Session
	processor *Processor
	parser    actions.Parser
	recorder  Recorder
	startOpts transport.StartOptions
	logger    *zap.Logger
	now       func() time.Time

	trajectoryID string
	stepIndex    int
	last         *schemas.BrowserObservation
	done         bool
}

// New returns an environment over a session.
func New(session transport.Session, opts Options) *Environment {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	processor := opts.Processor
	if processor == nil {
		processor = NewProcessor(nil, nil, logger)
	}
	parser := opts.Parser
	if parser == nil {
		parser = actions.JSONParser{}
	}
	return &Environment{
		session:   session,
		processor: processor,
		parser:    parser,
		recorder:  opts.Recorder,
		startOpts: opts.StartOptions,
		logger:    logger.Named("env"),
		now:       time.Now,
	}
}

// TrajectoryID identifies the current trajectory, or "" before Reset.
func (e *Environment) TrajectoryID() string { return e.trajectoryID }

// Reset starts a session if needed, navigates to url and returns the first
// observation of a new trajectory.
func (e *Environment) Reset(ctx context.Context, url string) (*schemas.BrowserObservation, error) {
	if e.session.SessionID() == "" {
		if err := e.session.Start(ctx, e.startOpts); err != nil {
			return nil, err
		}
	}
	err := e.session.Goto(ctx, url)
	if schemas.IsKind(err, schemas.KindSessionNotFound) {
		e.logger.Warn("Session lost, starting a new one.", zap.Error(err))
		if err = e.session.Start(ctx, e.startOpts); err == nil {
			err = e.session.Goto(ctx, url)
		}
	}
	if err != nil {
		return nil, err
	}

	obs, err := e.observe(ctx)
	if err != nil {
		return nil, err
	}

	e.trajectoryID = uuid.NewString()
	e.stepIndex = 0
	e.done = false
	e.last = obs
	e.logger.Info("Trajectory started.", zap.String("trajectory_id", e.trajectoryID), zap.String("url", url))

	if e.recorder != nil {
		trajectory := &schemas.Trajectory{ID: e.trajectoryID, StartURL: url, StartedAt: e.now()}
		if err := e.recorder.StartTrajectory(ctx, trajectory); err != nil {
			e.logger.Warn("Failed to record trajectory.", zap.String("trajectory_id", e.trajectoryID), zap.Error(err))
		}
	}
	e.record(ctx, &StepResult{Observation: obs, Status: schemas.StatusSuccess})
	return obs, nil
}

// Step executes one action and returns the resulting observation. An empty
// action is a no-op that only observes; a stop action ends the trajectory
// without any remote call. The returned result is never nil: when err is
// set it carries the ERROR status and whether the trajectory ended.
func (e *Environment) Step(ctx context.Context, action *schemas.BrowserAction) (*StepResult, error) {
	result := &StepResult{Action: action, Observation: e.last}
	if e.trajectoryID == "" {
		err := schemas.NewEnvError(schemas.KindNotStarted, "step", errors.New("call Reset first"))
		result.Status, result.Err = schemas.StatusError, err
		return result, err
	}
	if e.done {
		result.Status, result.Err, result.Done = schemas.StatusError, ErrTrajectoryDone, true
		return result, ErrTrajectoryDone
	}

	if call, ok := action.StopCall(); ok {
		result.Status = schemas.StatusSuccess
		result.Done = true
		result.Answer = actions.StopAnswer(call)
		e.done = true
		e.logger.Info("Trajectory stopped by the agent.", zap.String("trajectory_id", e.trajectoryID))
		e.finish(ctx, result)
		return result, nil
	}

	if action.IsEmpty() {
		result.Status = schemas.StatusNoop
	} else if err := e.session.Action(ctx, action.FunctionCalls); err != nil {
		if schemas.IsKind(err, schemas.KindSessionNotFound) {
			return e.truncate(ctx, result, err)
		}
		e.logger.Warn("Action failed.", zap.Int("calls", len(action.FunctionCalls)), zap.Error(err))
		result.Status, result.Err = schemas.StatusError, err
	} else {
		result.Status = schemas.StatusSuccess
	}

	obs, err := e.observe(ctx)
	if err != nil {
		if schemas.IsKind(err, schemas.KindSessionNotFound) {
			return e.truncate(ctx, result, err)
		}
		result.Status, result.Err = schemas.StatusError, err
		e.finish(ctx, result)
		return result, err
	}
	result.Observation = obs
	e.last = obs
	e.finish(ctx, result)
	return result, nil
}

// StepText parses an agent response with the configured grammar and steps
// with it. A response without a valid action becomes a no-op step with
// ParseErr set.
func (e *Environment) StepText(ctx context.Context, text string) (*StepResult, error) {
	action, parseErr := actions.ParseOrEmpty(e.parser, text)
	if parseErr != nil {
		e.logger.Debug("Agent response held no valid action.", zap.Error(parseErr))
	}
	result, err := e.Step(ctx, action)
	result.ParseErr = parseErr
	return result, err
}

// Close ends the session.
func (e *Environment) Close(ctx context.Context) (schemas.Status, error) {
	e.done = true
	return e.session.Close(ctx)
}

func (e *Environment) observe(ctx context.Context) (*schemas.BrowserObservation, error) {
	obs, err := e.session.Observation(ctx)
	if err != nil {
		return nil, err
	}
	e.processor.Process(ctx, obs)
	return obs, nil
}

func (e *Environment) truncate(ctx context.Context, result *StepResult, err error) (*StepResult, error) {
	result.Status, result.Err = schemas.StatusError, err
	result.Done, result.Truncated = true, true
	e.done = true
	e.logger.Warn("Session lost, trajectory truncated.", zap.String("trajectory_id", e.trajectoryID), zap.Error(err))
	e.finish(ctx, result)
	return result, err
}

func (e *Environment) finish(ctx context.Context, result *StepResult) {
	e.stepIndex++
	e.record(ctx, result)
}

func (e *Environment) record(ctx context.Context, result *StepResult) {
	if e.recorder == nil {
		return
	}
	step := &schemas.TrajectoryStep{
		TrajectoryID: e.trajectoryID,
		Index:        e.stepIndex,
		Status:       result.Status,
		Done:         result.Done,
		Truncated:    result.Truncated,
		RecordedAt:   e.now(),
	}
	if obs := result.Observation; obs != nil {
		step.URL = obs.CurrentURL
		step.ProcessedText = obs.ProcessedText
	}
	if result.Action != nil {
		step.Response = result.Action.Response
		step.FunctionCalls = result.Action.FunctionCalls
	}
	if result.Err != nil {
		step.Error = result.Err.Error()
	}
	if err := e.recorder.RecordStep(ctx, step); err != nil {
		e.logger.Warn("Failed to record step.",
			zap.String("trajectory_id", e.trajectoryID),
			zap.Int("step", e.stepIndex),
			zap.Error(err))
	}
}
