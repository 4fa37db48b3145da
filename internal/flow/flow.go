package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/fitassess/internal/capture"
	"github.com/2beens/fitassess/internal/exercise"
	"github.com/2beens/fitassess/internal/faceverify"
	"github.com/2beens/fitassess/internal/failure"
	"github.com/2beens/fitassess/internal/results"
	"github.com/2beens/fitassess/internal/submission"
	"github.com/2beens/fitassess/internal/telemetry/metrics"

	log "github.com/sirupsen/logrus"
)

var (
	ErrFlowClosed      = errors.New("flow closed")
	ErrWrongStep       = errors.New("action not allowed in the current step")
	ErrFaceNotVerified = errors.New("face not verified")
	ErrNoCapture       = errors.New("no capture in progress")
)

const (
	msgFaceNotVerified = "Face not verified. Please try again."
	msgNoVideo         = "No video to submit. Please record or select a video first."

	historyWriteTimeout = 5 * time.Second
)

//go:generate mockgen -source=$GOFILE -destination=flow_mocks_test.go -package=flow_test

type Verifier interface {
	VerifyFace(ctx context.Context, imagePath string) faceverify.Result
	IsVerifying() bool
}

type Submitter interface {
	SubmitVideo(ctx context.Context, videoPath string, exerciseType exercise.Type, onProgress submission.ProgressFunc) (submission.Result, error)
	Progress() int
}

type historyRepo interface {
	Add(ctx context.Context, record *results.Record) error
}

// Status is what the station UI renders for a flow.
type Status struct {
	ID             string          `json:"id"`
	TestID         string          `json:"testId"`
	Step           Step            `json:"step"`
	Policy         SubmitPolicy    `json:"submitPolicy"`
	HasRecorded    bool            `json:"hasRecorded"`
	IsFaceVerified bool            `json:"isFaceVerified"`
	IsSubmitting   bool            `json:"isSubmitting"`
	IsVerifying    bool            `json:"isVerifying"`
	UploadProgress int             `json:"uploadProgress"`
	Capture        *capture.Status `json:"capture,omitempty"`
	HasResults     bool            `json:"hasResults"`
	Error          string          `json:"error,omitempty"`
	ErrorKind      failure.Kind    `json:"errorKind,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type deps struct {
	policy         SubmitPolicy
	mediaDir       string
	device         capture.Device
	newTicker      capture.TickerFactory
	verifier       Verifier
	submitter      Submitter
	resultStore    *results.Store
	history        historyRepo
	metricsManager *metrics.Manager
}

// Flow is one run of a test: instructions, face verification for sit-ups,
// recording, submission and results. All calls are safe for concurrent use.
type Flow struct {
	id        string
	userID    int
	test      exercise.Test
	exType    exercise.Type
	createdAt time.Time
	deps

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	step           Step
	hasRecorded    bool
	isFaceVerified bool
	isSubmitting   bool
	// set from the end of a face capture until its verification returns
	verifyingFace bool
	controller    *capture.Controller
	mediaPath     string
	errMsg        string
	errKind       failure.Kind
	closed        bool
}

func newFlow(id string, userID int, exType exercise.Type, d deps) (*Flow, error) {
	test, ok := exercise.Lookup(exType)
	if !ok {
		return nil, fmt.Errorf("unknown test: %s", exType)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Flow{
		id:        id,
		userID:    userID,
		test:      test,
		exType:    exType,
		createdAt: time.Now(),
		deps:      d,
		ctx:       ctx,
		cancel:    cancel,
		step:      StepInstructions,
	}, nil
}

func (f *Flow) ID() string {
	return f.id
}

func (f *Flow) UserID() int {
	return f.userID
}

func (f *Flow) Test() exercise.Test {
	return f.test
}

func (f *Flow) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	status := Status{
		ID:             f.id,
		TestID:         f.test.ID.String(),
		Step:           f.step,
		Policy:         f.policy,
		HasRecorded:    f.hasRecorded,
		IsFaceVerified: f.isFaceVerified,
		IsSubmitting:   f.isSubmitting,
		IsVerifying:    f.verifyingFace || f.verifier.IsVerifying(),
		Error:          f.errMsg,
		ErrorKind:      f.errKind,
		CreatedAt:      f.createdAt,
		HasResults:     f.step == StepResults,
	}
	if f.isSubmitting {
		status.UploadProgress = f.submitter.Progress()
	}
	if f.controller != nil {
		captureStatus := f.controller.Status()
		status.Capture = &captureStatus
	}
	return status
}

// Results returns the summary of the last successful submission.
func (f *Flow) Results() (results.Summary, error) {
	return f.resultStore.Get(f.id)
}

func (f *Flow) setError(kind failure.Kind, msg string) {
	f.errKind = kind
	f.errMsg = msg
}

func (f *Flow) clearError() {
	f.errKind = ""
	f.errMsg = ""
}

// StartCapture opens the camera for the face or the exercise step and starts
// the countdown once permissions are granted. A permission failure leaves the
// capture in its error state, see GrantPermissions.
func (f *Flow) StartCapture(ctx context.Context, target CaptureTarget) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	if f.isSubmitting {
		f.mu.Unlock()
		return submission.ErrSubmissionInFlight
	}

	var mode capture.Mode
	var duration time.Duration
	var nextStep Step
	switch target {
	case CaptureFace:
		if !f.exType.RequiresFaceVerification() || f.isFaceVerified {
			f.mu.Unlock()
			return fmt.Errorf("%w: face capture", ErrWrongStep)
		}
		if f.step != StepInstructions && f.step != StepFaceVerification {
			f.mu.Unlock()
			return fmt.Errorf("%w: face capture from %s", ErrWrongStep, f.step)
		}
		mode, duration, nextStep = capture.ModeFace, exercise.FaceCaptureDuration, StepFaceVerification
	case CaptureExercise:
		if f.exType.RequiresFaceVerification() && !f.isFaceVerified {
			f.mu.Unlock()
			return ErrFaceNotVerified
		}
		if f.step == StepResults {
			f.mu.Unlock()
			return fmt.Errorf("%w: record again first", ErrWrongStep)
		}
		mode, duration, nextStep = capture.ModeVideo, f.exType.CaptureDuration(), StepRecording
	default:
		f.mu.Unlock()
		return fmt.Errorf("unknown capture target: %s", target)
	}

	if f.controller != nil && captureRunning(f.controller.Status().State) {
		f.mu.Unlock()
		return fmt.Errorf("%w: capture already running", ErrWrongStep)
	}
	if target == CaptureFace && (f.verifyingFace || f.verifier.IsVerifying()) {
		f.mu.Unlock()
		return fmt.Errorf("%w: face verification in progress", ErrWrongStep)
	}

	previous := f.controller
	f.controller = nil
	f.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	var controller *capture.Controller
	controller, err := capture.NewController(capture.ControllerParams{
		Mode:      mode,
		Duration:  duration,
		MediaDir:  f.mediaDir,
		Device:    f.device,
		NewTicker: f.newTicker,
		OnComplete: func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.closed {
				return
			}
			if mode == capture.ModeFace {
				f.verifyingFace = true
			}
			f.wg.Add(1)
			go func() {
				defer f.wg.Done()
				f.onCaptureComplete(controller)
			}()
		},
		MetricsManager: f.metricsManager,
	})
	if err != nil {
		return fmt.Errorf("new capture: %w", err)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		controller.Close()
		return ErrFlowClosed
	}
	f.controller = controller
	f.step = nextStep
	f.clearError()
	f.mu.Unlock()

	if err := controller.Enter(); err != nil {
		return err
	}
	return f.grantAndStart(ctx, controller)
}

// GrantPermissions retries the permission request of the current capture.
func (f *Flow) GrantPermissions(ctx context.Context) error {
	f.mu.Lock()
	controller := f.controller
	closed := f.closed
	f.mu.Unlock()

	if closed {
		return ErrFlowClosed
	}
	if controller == nil {
		return ErrNoCapture
	}
	return f.grantAndStart(ctx, controller)
}

func (f *Flow) grantAndStart(ctx context.Context, controller *capture.Controller) error {
	if err := controller.GrantPermissions(ctx); err != nil {
		f.mu.Lock()
		f.setError(failure.KindOf(err), failure.Message(err, "camera permission denied"))
		f.mu.Unlock()
		return err
	}
	return controller.Start()
}

// StopCapture is the user stop of the running capture.
func (f *Flow) StopCapture() error {
	f.mu.Lock()
	controller := f.controller
	f.mu.Unlock()

	if controller == nil {
		return ErrNoCapture
	}
	return controller.Stop()
}

func captureRunning(state capture.State) bool {
	switch state {
	case capture.StatePermissionPending, capture.StateCountdown, capture.StateRecording, capture.StateProcessing:
		return true
	default:
		return false
	}
}

func (f *Flow) onCaptureComplete(controller *capture.Controller) {
	isFace := controller.Mode() == capture.ModeFace

	f.mu.Lock()
	current := f.controller == controller && !f.closed
	if !current && isFace {
		f.verifyingFace = false
	}
	f.mu.Unlock()
	if !current {
		return
	}

	outcome, ok := controller.Result()
	if !ok {
		if isFace {
			f.mu.Lock()
			f.verifyingFace = false
			f.mu.Unlock()
		}
		return
	}

	switch outcome.Mode {
	case capture.ModeFace:
		f.handleFaceCapture(outcome)
	case capture.ModeVideo:
		f.handleExerciseCapture(outcome)
	}
}

func (f *Flow) handleFaceCapture(outcome capture.Outcome) {
	if !outcome.HasMedia() {
		f.mu.Lock()
		f.verifyingFace = false
		f.setError(failure.KindDeviceCaptureFailure, outcome.Error)
		f.mu.Unlock()
		return
	}

	result := f.verifier.VerifyFace(f.ctx, outcome.MediaPath)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyingFace = false
	if f.closed {
		log.Debugf("flow %s closed, verification result discarded", f.id)
		return
	}

	switch {
	case result.Success && result.Verified:
		f.isFaceVerified = true
		f.step = StepRecording
		f.clearError()
		log.Debugf("flow %s: face verified", f.id)
	case result.Success:
		f.setError(failure.KindNoFaceDetected, msgFaceNotVerified)
	default:
		f.setError(result.Kind, result.Error)
	}
}

func (f *Flow) handleExerciseCapture(outcome capture.Outcome) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if !outcome.HasMedia() {
		f.setError(failure.KindDeviceCaptureFailure, outcome.Error)
		f.mu.Unlock()
		return
	}
	f.mediaPath = outcome.MediaPath
	f.hasRecorded = true
	f.step = StepSubmission
	f.clearError()
	auto := f.policy == SubmitAuto
	f.mu.Unlock()

	if auto {
		if err := f.Submit(); err != nil {
			log.Errorf("flow %s: auto submit: %s", f.id, err)
		}
	}
}

// UseVideo takes a video picked from storage in place of a recording.
func (f *Flow) UseVideo(picked capture.Picked) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	if f.isSubmitting {
		f.mu.Unlock()
		return submission.ErrSubmissionInFlight
	}
	if f.exType.RequiresFaceVerification() && !f.isFaceVerified {
		f.mu.Unlock()
		return ErrFaceNotVerified
	}
	if f.step == StepResults {
		f.mu.Unlock()
		return fmt.Errorf("%w: record again first", ErrWrongStep)
	}

	previous := f.controller
	f.controller = nil
	f.mediaPath = picked.Path
	f.hasRecorded = true
	f.step = StepSubmission
	f.clearError()
	auto := f.policy == SubmitAuto
	f.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	if auto {
		return f.Submit()
	}
	return nil
}

// Submit sends the recorded video for analysis in the background. Only one
// submission runs at a time; the media is kept after a failure for a retry.
func (f *Flow) Submit() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrFlowClosed
	}
	if f.isSubmitting {
		return submission.ErrSubmissionInFlight
	}
	if !f.hasRecorded || f.mediaPath == "" {
		f.setError(failure.KindNoMediaToSubmit, msgNoVideo)
		return failure.New(failure.KindNoMediaToSubmit, msgNoVideo, nil)
	}
	if f.step == StepResults {
		return fmt.Errorf("%w: already analysed", ErrWrongStep)
	}

	f.isSubmitting = true
	f.step = StepSubmission
	f.clearError()

	videoPath := f.mediaPath
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.submit(videoPath)
	}()
	return nil
}

func (f *Flow) submit(videoPath string) {
	result, err := f.submitter.SubmitVideo(f.ctx, videoPath, f.exType, nil)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		log.Debugf("flow %s closed, submission result discarded", f.id)
		return
	}
	f.isSubmitting = false

	if err != nil {
		f.setError(failure.KindUnknown, err.Error())
		f.mu.Unlock()
		return
	}
	if !result.Success {
		f.setError(result.Kind, result.Error)
		f.mu.Unlock()
		return
	}

	summary := results.NormalizeFor(result.Payload, f.exType, nil)
	if err := f.resultStore.Put(f.id, summary); err != nil {
		log.Errorf("flow %s: store summary: %s", f.id, err)
	}
	f.step = StepResults
	f.mu.Unlock()

	if f.metricsManager != nil {
		f.metricsManager.HistogramOverallScore.WithLabelValues(f.exType.String()).Observe(float64(summary.OverallScore))
	}

	if f.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	record := &results.Record{
		UserID:  f.userID,
		TestID:  f.test.ID.String(),
		Summary: summary,
	}
	if err := f.history.Add(ctx, record); err != nil {
		log.Errorf("flow %s: add result to history: %s", f.id, err)
	}
}

// RecordAgain resets the session flags and returns to the instructions.
func (f *Flow) RecordAgain() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	if f.isSubmitting {
		f.mu.Unlock()
		return submission.ErrSubmissionInFlight
	}

	previous := f.controller
	f.controller = nil
	f.hasRecorded = false
	f.isFaceVerified = false
	f.isSubmitting = false
	f.mediaPath = ""
	f.step = StepInstructions
	f.clearError()
	f.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	f.resultStore.Delete(f.id)
	return nil
}

// Close cancels in-flight calls and stops the capture. Results arriving
// afterwards are dropped.
func (f *Flow) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	controller := f.controller
	f.controller = nil
	f.mu.Unlock()

	f.cancel()
	if controller != nil {
		controller.Close()
	}
	f.wg.Wait()
	f.resultStore.Delete(f.id)
}
