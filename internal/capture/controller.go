package capture

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/2beens/fitassess/internal/failure"
	"github.com/2beens/fitassess/internal/telemetry/metrics"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidState = errors.New("invalid capture state")
	ErrClosed       = errors.New("capture closed")
)

const (
	msgPermissionDenied = "camera permission denied"
	msgStartFailed      = "failed to start recording"
	msgRecordingFailed  = "recording failed"
	msgFrameFailed      = "failed to extract face frame"
)

type ControllerParams struct {
	Mode     Mode
	Duration time.Duration
	MediaDir string
	Device   Device
	// NewTicker defaults to a time.Ticker.
	NewTicker TickerFactory
	// OnComplete is called once the capture reaches done, from the capture goroutine.
	OnComplete     func()
	MetricsManager *metrics.Manager
}

// Controller drives one capture session:
// idle -> permission_pending -> ready -> countdown -> recording -> processing -> done.
// Permission failures move to error, from where permissions can be requested again.
type Controller struct {
	id             string
	mode           Mode
	duration       time.Duration
	mediaDir       string
	device         Device
	newTicker      TickerFactory
	onComplete     func()
	metricsManager *metrics.Manager

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	countdown int
	elapsed   int
	errMsg    string
	errKind   failure.Kind
	recording Recording
	videoPath string
	outcome   *Outcome
	stopCh    chan struct{}
	runDone   chan struct{}
	closed    bool
}

func NewController(params ControllerParams) (*Controller, error) {
	if !params.Mode.IsValid() {
		return nil, fmt.Errorf("invalid capture mode: %s", params.Mode)
	}
	if params.Device == nil {
		return nil, errors.New("capture device not set")
	}
	if params.Duration < time.Second {
		return nil, fmt.Errorf("capture duration too short: %s", params.Duration)
	}
	if params.NewTicker == nil {
		params.NewTicker = NewTimeTicker
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		id:             uuid.NewString(),
		mode:           params.Mode,
		duration:       params.Duration,
		mediaDir:       params.MediaDir,
		device:         params.Device,
		newTicker:      params.NewTicker,
		onComplete:     params.OnComplete,
		metricsManager: params.MetricsManager,
		ctx:            ctx,
		cancel:         cancel,
		state:          StateIdle,
	}, nil
}

func (c *Controller) ID() string {
	return c.id
}

func (c *Controller) Mode() Mode {
	return c.mode
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Mode:      c.mode,
		State:     c.state,
		Countdown: c.countdown,
		Elapsed:   c.elapsed,
		Duration:  c.durationSeconds(),
		Error:     c.errMsg,
	}
}

// ErrorKind is the kind of the last visible error, if any.
func (c *Controller) ErrorKind() failure.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errKind
}

func (c *Controller) durationSeconds() int {
	return int(c.duration / time.Second)
}

// Enter opens the capture screen.
func (c *Controller) Enter() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state != StateIdle {
		return fmt.Errorf("%w: enter from %s", ErrInvalidState, c.state)
	}
	c.state = StatePermissionPending
	return nil
}

// GrantPermissions requests camera access, and microphone access in video mode.
// It is also the retry after a denial.
func (c *Controller) GrantPermissions(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StatePermissionPending && c.state != StateError {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: grant permissions from %s", ErrInvalidState, state)
	}
	c.state = StatePermissionPending
	c.mu.Unlock()

	err := c.device.RequestPermissions(ctx, c.mode)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err != nil {
		log.Debugf("capture %s: permissions: %s", c.id, err)
		c.state = StateError
		c.errMsg = failure.Message(err, msgPermissionDenied)
		c.errKind = failure.KindOf(err)
		if c.errKind == failure.KindUnknown {
			c.errKind = failure.KindPermissionDenied
		}
		c.countSession("permission_denied")
		return err
	}

	c.state = StateReady
	c.errMsg = ""
	c.errKind = ""
	return nil
}

// Start begins the countdown, recording starts when it reaches zero.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state != StateReady {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, c.state)
	}

	c.state = StateCountdown
	c.countdown = CountdownFrom
	c.elapsed = 0
	c.errMsg = ""
	c.errKind = ""
	c.stopCh = make(chan struct{}, 1)
	c.runDone = make(chan struct{})

	go c.run(c.newTicker(time.Second), c.stopCh, c.runDone)
	return nil
}

// Stop is the user stop. During the countdown it returns to ready.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state != StateCountdown && c.state != StateRecording {
		return fmt.Errorf("%w: stop from %s", ErrInvalidState, c.state)
	}
	select {
	case c.stopCh <- struct{}{}:
	default:
	}
	return nil
}

// Result hands over the finished capture once, consuming it.
func (c *Controller) Result() (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome == nil {
		return Outcome{}, false
	}
	outcome := *c.outcome
	c.outcome = nil
	return outcome, true
}

// Close tears the session down: timers stop and a running recording is aborted.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	runDone := c.runDone
	c.mu.Unlock()

	c.cancel()
	if runDone != nil {
		<-runDone
	}
}

type tickAction int

const (
	tickContinue tickAction = iota
	tickFinish
	tickExit
)

func (c *Controller) run(ticker Ticker, stopCh <-chan struct{}, runDone chan<- struct{}) {
	defer close(runDone)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.abort()
			return
		case <-stopCh:
			c.finish()
			return
		case <-ticker.C():
			switch c.tick() {
			case tickFinish:
				c.finish()
				return
			case tickExit:
				return
			}
		}
	}
}

func (c *Controller) tick() tickAction {
	c.mu.Lock()
	switch c.state {
	case StateCountdown:
		c.countdown--
		if c.countdown > 0 {
			c.mu.Unlock()
			return tickContinue
		}
		c.mu.Unlock()
		return c.startRecording()
	case StateRecording:
		c.elapsed++
		reachedLimit := c.elapsed >= c.durationSeconds()
		c.mu.Unlock()
		if reachedLimit {
			return tickFinish
		}
		return tickContinue
	default:
		c.mu.Unlock()
		return tickExit
	}
}

func (c *Controller) startRecording() tickAction {
	videoPath := filepath.Join(c.mediaDir, fmt.Sprintf("%s-%s.mp4", c.mode, uuid.NewString()))
	recording, err := c.device.StartRecording(c.ctx, c.mode, videoPath, c.duration)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		log.Errorf("capture %s: start recording: %s", c.id, err)
		c.countdown = 0
		if c.closed {
			return tickExit
		}
		c.state = StateReady
		c.errMsg = failure.Message(err, msgStartFailed)
		c.errKind = failure.KindDeviceCaptureFailure
		c.countSession("start_failed")
		return tickExit
	}

	c.recording = recording
	c.videoPath = videoPath
	c.state = StateRecording
	c.countdown = 0
	return tickContinue
}

func (c *Controller) finish() {
	c.mu.Lock()
	if c.state == StateCountdown {
		c.state = StateReady
		c.countdown = 0
		c.mu.Unlock()
		return
	}
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	c.state = StateProcessing
	recording, videoPath, elapsed := c.recording, c.videoPath, c.elapsed
	c.recording = nil
	c.mu.Unlock()

	outcome := Outcome{
		Mode:      c.mode,
		VideoPath: videoPath,
		Recorded:  time.Duration(elapsed) * time.Second,
	}

	if err := recording.Stop(); err != nil {
		log.Errorf("capture %s: stop recording: %s", c.id, err)
		outcome.Error = failure.Message(err, msgRecordingFailed)
		outcome.VideoPath = ""
	} else if c.mode == ModeFace {
		framePath := videoPath[:len(videoPath)-len(filepath.Ext(videoPath))] + ".jpg"
		if err := c.device.ExtractFrame(c.ctx, videoPath, FrameOffset, framePath); err != nil {
			log.Errorf("capture %s: %s", c.id, err)
			outcome.Error = msgFrameFailed
		} else {
			outcome.MediaPath = framePath
		}
	} else {
		outcome.MediaPath = videoPath
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.countSession("aborted")
		return
	}
	c.state = StateDone
	c.errMsg = outcome.Error
	if outcome.Error != "" {
		c.errKind = failure.KindDeviceCaptureFailure
	}
	c.outcome = &outcome
	c.mu.Unlock()

	if outcome.HasMedia() {
		c.countSession("media")
	} else {
		c.countSession("no_media")
	}
	if c.onComplete != nil {
		c.onComplete()
	}
}

func (c *Controller) abort() {
	c.mu.Lock()
	recording := c.recording
	c.recording = nil
	c.mu.Unlock()

	if recording != nil {
		if err := recording.Stop(); err != nil {
			log.Debugf("capture %s: stop aborted recording: %s", c.id, err)
		}
		c.countSession("aborted")
	}
}

func (c *Controller) countSession(outcome string) {
	if c.metricsManager == nil {
		return
	}
	c.metricsManager.CounterCaptureSessions.WithLabelValues(c.mode.String(), outcome).Inc()
}
