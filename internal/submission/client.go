package submission

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/2beens/fitassess/internal/exercise"
	"github.com/2beens/fitassess/internal/failure"
	"github.com/2beens/fitassess/internal/telemetry/metrics"
	"github.com/2beens/fitassess/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultTimeout = 180 * time.Second

	maxResponseBytes = 32 << 20
)

var (
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	ErrUnknownExercise    = errors.New("unknown exercise type")
)

const (
	msgTimeout     = "Request timed out. Please try again with a smaller video file."
	msgTooLarge    = "Video file is too large. Please use a smaller file."
	msgBadFormat   = "Invalid video format. Please use a standard video file."
	msgUnsupported = "Video format not supported. Please use MP4, MOV, or AVI format."
	msgServerError = "Server error. Please try again later."
	msgUnavailable = "Service temporarily unavailable. Please try again in a few minutes."
	msgNetwork     = "Network error. Please check your internet connection."
	msgNoVideo     = "No video to submit. Please record or select a video first."
	msgCancelled   = "Submission cancelled."
	msgGeneric     = "Failed to submit video for analysis"
)

// Result carries the analysis payload unparsed on success.
type Result struct {
	Success bool         `json:"success"`
	Payload []byte       `json:"-"`
	Error   string       `json:"error,omitempty"`
	Kind    failure.Kind `json:"kind,omitempty"`
}

// ProgressFunc receives the upload progress as a 0-100 percentage.
type ProgressFunc func(percent int)

type ClientParams struct {
	BaseURL          string
	SkipNgrokWarning bool
	Timeout          time.Duration
	HTTPClient       *http.Client
	MetricsManager   *metrics.Manager
}

type Client struct {
	baseURL          string
	skipNgrokWarning bool
	timeout          time.Duration
	httpClient       *http.Client
	metricsManager   *metrics.Manager

	inFlight atomic.Bool
	progress atomic.Int32
}

func NewClient(params ClientParams) *Client {
	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:          strings.TrimRight(params.BaseURL, "/"),
		skipNgrokWarning: params.SkipNgrokWarning,
		timeout:          timeout,
		httpClient:       httpClient,
		metricsManager:   params.MetricsManager,
	}
}

func (c *Client) IsSubmitting() bool {
	return c.inFlight.Load()
}

// Progress is the upload percentage of the running submission, 0 when idle.
func (c *Client) Progress() int {
	return int(c.progress.Load())
}

// SubmitVideo uploads the video to the analysis endpoint of the exercise.
// The returned error is non nil only when no request was made: another
// submission is in flight or the exercise is unknown. Every other failure is
// reported through the result, with a user facing message.
func (c *Client) SubmitVideo(
	ctx context.Context,
	videoPath string,
	exerciseType exercise.Type,
	onProgress ProgressFunc,
) (result Result, err error) {
	if !exerciseType.IsValid() {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownExercise, exerciseType)
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return Result{}, ErrSubmissionInFlight
	}

	started := time.Now()
	c.progress.Store(0)
	defer func() {
		c.progress.Store(0)
		c.inFlight.Store(false)
	}()

	ctx, span := tracing.GlobalTracer.Start(ctx, "submission.submitVideo")
	span.SetAttributes(attribute.String("exercise", exerciseType.String()))
	defer func() {
		var spanErr error
		if !result.Success {
			spanErr = errors.New(result.Error)
		}
		tracing.EndSpanWithErrCheck(span, spanErr)
		c.observe(exerciseType, result, time.Since(started))
	}()

	if videoPath == "" {
		return failed(failure.KindNoMediaToSubmit, msgNoVideo), nil
	}

	video, err := os.Open(videoPath)
	if err != nil {
		log.Errorf("submit video, open %s: %s", videoPath, err)
		return failed(failure.KindNoMediaToSubmit, msgNoVideo), nil
	}
	defer video.Close()

	stat, err := video.Stat()
	if err != nil {
		log.Errorf("submit video, stat %s: %s", videoPath, err)
		return failed(failure.KindNoMediaToSubmit, msgNoVideo), nil
	}
	span.SetAttributes(attribute.Int64("video.size", stat.Size()))

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, contentLength, contentType, err := videoForm(video, stat.Size(), videoExt(videoPath), func(percent int) {
		c.progress.Store(int32(percent))
		if onProgress != nil {
			onProgress(percent)
		}
	})
	if err != nil {
		return failed(failure.KindUnknown, msgGeneric), nil
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+exerciseType.Endpoint(), body)
	if err != nil {
		return failed(failure.KindUnknown, msgGeneric), nil
	}
	req.ContentLength = contentLength
	req.Header.Set("Content-Type", contentType)
	if c.skipNgrokWarning {
		req.Header.Set("ngrok-skip-browser-warning", "true")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debugf("submit video request: %s", err)
		return transportFailure(ctx, err), nil
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportFailure(ctx, err), nil
	}

	span.SetAttributes(attribute.Int("response.status", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warnf("submit video [%s]: status %d", exerciseType, resp.StatusCode)
		return statusFailure(resp.StatusCode), nil
	}

	if c.metricsManager != nil {
		c.metricsManager.CounterUploadedBytes.Add(float64(stat.Size()))
	}

	return Result{
		Success: true,
		Payload: payload,
	}, nil
}

func (c *Client) observe(exerciseType exercise.Type, result Result, took time.Duration) {
	if c.metricsManager == nil {
		return
	}
	outcome := "success"
	if !result.Success {
		outcome = string(result.Kind)
	}
	c.metricsManager.CounterSubmissions.WithLabelValues(exerciseType.String(), outcome).Inc()
	c.metricsManager.HistogramSubmissionDuration.Observe(took.Seconds())
}

func videoExt(videoPath string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(videoPath), "."))
	if ext == "" {
		return "mp4"
	}
	return ext
}

// videoForm streams the video as the single "file" part of a multipart body,
// so the content length is known up front without buffering the video.
func videoForm(video io.Reader, size int64, ext string, onProgress ProgressFunc) (io.Reader, int64, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="exercise_video.%s"`, ext))
	header.Set("Content-Type", "video/"+ext)
	if _, err := mw.CreatePart(header); err != nil {
		return nil, 0, "", err
	}
	headLen := buf.Len()
	if err := mw.Close(); err != nil {
		return nil, 0, "", err
	}

	head := buf.Bytes()[:headLen]
	tail := buf.Bytes()[headLen:]

	body := io.MultiReader(
		bytes.NewReader(head),
		newProgressReader(video, size, onProgress),
		bytes.NewReader(tail),
	)
	return body, int64(len(head)) + size + int64(len(tail)), mw.FormDataContentType(), nil
}

func failed(kind failure.Kind, message string) Result {
	return Result{
		Error: message,
		Kind:  kind,
	}
}

func transportFailure(parentCtx context.Context, err error) Result {
	if errors.Is(parentCtx.Err(), context.Canceled) {
		return failed(failure.KindUnknown, msgCancelled)
	}
	switch kind := failure.ClassifyTransport(err); kind {
	case failure.KindNetworkTimeout:
		return failed(kind, msgTimeout)
	case failure.KindNetworkUnreachable:
		return failed(kind, msgNetwork)
	default:
		return failed(failure.KindUnknown, msgGeneric)
	}
}

func statusFailure(status int) Result {
	switch status {
	case http.StatusRequestEntityTooLarge:
		return failed(failure.KindFileTooLarge, msgTooLarge)
	case http.StatusBadRequest:
		return failed(failure.KindUnsupportedFormat, msgBadFormat)
	case http.StatusUnprocessableEntity:
		return failed(failure.KindUnsupportedFormat, msgUnsupported)
	case http.StatusInternalServerError:
		return failed(failure.KindServerError, msgServerError)
	case http.StatusServiceUnavailable:
		return failed(failure.KindServerError, msgUnavailable)
	default:
		return failed(failure.KindForStatus(status), msgGeneric)
	}
}
