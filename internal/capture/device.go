package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/2beens/fitassess/internal/failure"

	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=device_mocks_test.go -package=capture_test

// Device is the camera/microphone backend of a capture session.
type Device interface {
	// RequestPermissions fails with a failure.KindPermissionDenied error when access is refused.
	RequestPermissions(ctx context.Context, mode Mode) error
	StartRecording(ctx context.Context, mode Mode, outputPath string, maxDuration time.Duration) (Recording, error)
	ExtractFrame(ctx context.Context, videoPath string, offset time.Duration, outputPath string) error
}

// Recording is a running recording. Stop finalizes the output file.
type Recording interface {
	Stop() error
}

const (
	stopGracePeriod     = 5 * time.Second
	defaultStartupCheck = 500 * time.Millisecond
)

type FFmpegDeviceParams struct {
	FFmpegPath  string
	InputFormat string
	FrontInput  string
	BackInput   string
	AudioInput  string
	// StartupCheck is how long ffmpeg has to stay up before the recording counts as started.
	StartupCheck time.Duration
}

// FFmpegDevice records from local capture devices through ffmpeg. Face
// captures use the front input, exercise captures the back input with audio.
type FFmpegDevice struct {
	params FFmpegDeviceParams
}

func NewFFmpegDevice(params FFmpegDeviceParams) *FFmpegDevice {
	if params.FFmpegPath == "" {
		params.FFmpegPath = "ffmpeg"
	}
	if params.InputFormat == "" {
		params.InputFormat = "v4l2"
	}
	if params.StartupCheck <= 0 {
		params.StartupCheck = defaultStartupCheck
	}
	return &FFmpegDevice{
		params: params,
	}
}

func (d *FFmpegDevice) videoInput(mode Mode) string {
	if mode == ModeFace {
		return d.params.FrontInput
	}
	return d.params.BackInput
}

func (d *FFmpegDevice) RequestPermissions(_ context.Context, mode Mode) error {
	if _, err := exec.LookPath(d.params.FFmpegPath); err != nil {
		return failure.New(failure.KindDeviceCaptureFailure, "ffmpeg not available", err)
	}

	input := d.videoInput(mode)
	if input == "" {
		return failure.New(failure.KindDeviceCaptureFailure, "no camera configured", nil)
	}

	// device nodes can be checked up front, other inputs are validated when recording starts
	if strings.HasPrefix(input, "/dev/") {
		f, err := os.OpenFile(input, os.O_RDONLY, 0)
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return failure.New(failure.KindPermissionDenied, "camera permission denied", err)
			}
			return failure.New(failure.KindDeviceCaptureFailure, "camera not available", err)
		}
		_ = f.Close()
	}

	return nil
}

func (d *FFmpegDevice) recordArgs(mode Mode, outputPath string, maxDuration time.Duration) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	args = append(args, "-f", d.params.InputFormat, "-i", d.videoInput(mode))
	if mode == ModeVideo && d.params.AudioInput != "" {
		args = append(args, "-f", audioFormat(d.params.InputFormat), "-i", d.params.AudioInput)
	}
	if maxDuration > 0 {
		args = append(args, "-t", strconv.FormatFloat(maxDuration.Seconds(), 'f', 1, 64))
	}
	args = append(args, "-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p")
	if mode == ModeVideo && d.params.AudioInput != "" {
		args = append(args, "-c:a", "aac")
	}
	return append(args, outputPath)
}

func audioFormat(videoFormat string) string {
	if videoFormat == "avfoundation" {
		return "avfoundation"
	}
	return "alsa"
}

func (d *FFmpegDevice) StartRecording(ctx context.Context, mode Mode, outputPath string, maxDuration time.Duration) (Recording, error) {
	cmd := exec.CommandContext(ctx, d.params.FFmpegPath, d.recordArgs(mode, outputPath, maxDuration)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, failure.New(failure.KindDeviceCaptureFailure, "failed to start recording", err)
	}
	log.Debugf("ffmpeg recording started [%s]: pid %d -> %s", mode, cmd.Process.Pid, outputPath)

	rec := &ffmpegRecording{
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		done:   make(chan struct{}),
	}
	go func() {
		rec.waitErr = cmd.Wait()
		close(rec.done)
	}()

	// a missing codec or a busy camera makes ffmpeg exit right away
	select {
	case <-rec.done:
		return nil, failure.New(
			failure.KindDeviceCaptureFailure,
			"failed to start recording",
			fmt.Errorf("ffmpeg exited early: %v: %s", rec.waitErr, strings.TrimSpace(stderr.String())),
		)
	case <-time.After(d.params.StartupCheck):
	}

	return rec, nil
}

func (d *FFmpegDevice) ExtractFrame(ctx context.Context, videoPath string, offset time.Duration, outputPath string) error {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		outputPath,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.params.FFmpegPath, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("extract frame: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("extract frame: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("extract frame: empty output")
	}
	return nil
}

type ffmpegRecording struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stderr   *bytes.Buffer
	done     chan struct{}
	waitErr  error
	stopOnce sync.Once
}

// Stop asks ffmpeg to quit and waits for it to finalize the file.
func (r *ffmpegRecording) Stop() error {
	r.stopOnce.Do(func() {
		_, _ = r.stdin.Write([]byte("q"))
		_ = r.stdin.Close()
	})

	select {
	case <-r.done:
	case <-time.After(stopGracePeriod):
		_ = r.cmd.Process.Kill()
		<-r.done
		return failure.New(failure.KindDeviceCaptureFailure, "recording did not stop", nil)
	}

	if r.waitErr != nil {
		var exitErr *exec.ExitError
		// ffmpeg exits with 255 when stopped from stdin on some builds
		if errors.As(r.waitErr, &exitErr) && exitErr.ExitCode() == 255 {
			return nil
		}
		return failure.New(
			failure.KindDeviceCaptureFailure,
			"recording failed",
			fmt.Errorf("%w: %s", r.waitErr, strings.TrimSpace(r.stderr.String())),
		)
	}
	return nil
}
