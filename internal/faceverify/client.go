package faceverify

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

	"github.com/2beens/fitassess/internal/failure"
	"github.com/2beens/fitassess/internal/telemetry/metrics"
	"github.com/2beens/fitassess/internal/telemetry/tracing"

	"github.com/antonholmquist/jason"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultTimeout = 60 * time.Second

	recognizePath    = "/recognize_face"
	maxResponseBytes = 1 << 20
)

const (
	msgTimeout     = "verification request timed out"
	msgBadImage    = "invalid image format or quality"
	msgNoFace      = "no face detected"
	msgServerError = "service error"
	msgNetwork     = "network connection error"
	msgCancelled   = "verification cancelled"
	msgNoImage     = "no image to verify"
	msgGeneric     = "failed to verify face"
)

// Result is the outcome of one verification call. Success reports whether the
// service answered, Verified whether it recognised the face.
type Result struct {
	Success  bool         `json:"success"`
	Verified bool         `json:"verified"`
	Raw      []byte       `json:"-"`
	Error    string       `json:"error,omitempty"`
	Kind     failure.Kind `json:"kind,omitempty"`
}

type ClientParams struct {
	BaseURL          string
	SkipNgrokWarning bool
	Timeout          time.Duration
	// HTTPClient defaults to an otelhttp instrumented client.
	HTTPClient     *http.Client
	MetricsManager *metrics.Manager
}

type Client struct {
	baseURL          string
	skipNgrokWarning bool
	timeout          time.Duration
	httpClient       *http.Client
	metricsManager   *metrics.Manager
	verifying        atomic.Bool
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

// IsVerifying is true only while a VerifyFace call is running.
func (c *Client) IsVerifying() bool {
	return c.verifying.Load()
}

// VerifyFace uploads the captured image to the face recognition service.
// It never retries; all failures are reported through the result.
func (c *Client) VerifyFace(ctx context.Context, imagePath string) (result Result) {
	c.verifying.Store(true)
	defer c.verifying.Store(false)

	ctx, span := tracing.GlobalTracer.Start(ctx, "faceverify.verifyFace")
	defer func() {
		var err error
		if !result.Success {
			err = errors.New(result.Error)
		}
		tracing.EndSpanWithErrCheck(span, err)
		c.countOutcome(result)
	}()

	if imagePath == "" {
		return failed(failure.KindNoMediaToSubmit, msgNoImage)
	}

	body, contentType, err := imageForm(imagePath)
	if err != nil {
		log.Errorf("verify face, read image %s: %s", imagePath, err)
		return failed(failure.KindDeviceCaptureFailure, msgNoImage)
	}
	span.SetAttributes(attribute.Int("image.size", body.Len()))

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+recognizePath, body)
	if err != nil {
		return failed(failure.KindUnknown, msgGeneric)
	}
	req.Header.Set("Content-Type", contentType)
	if c.skipNgrokWarning {
		req.Header.Set("ngrok-skip-browser-warning", "true")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debugf("verify face request: %s", err)
		return transportFailure(ctx, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportFailure(ctx, err)
	}

	span.SetAttributes(attribute.Int("response.status", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusFailure(resp.StatusCode, respBytes)
	}

	respObj, err := jason.NewObjectFromBytes(respBytes)
	if err != nil {
		log.Errorf("verify face, unexpected response: %s", err)
		return failed(failure.KindServerError, msgServerError)
	}
	verified, _ := respObj.GetBoolean("verified")

	return Result{
		Success:  true,
		Verified: verified,
		Raw:      respBytes,
	}
}

func (c *Client) countOutcome(result Result) {
	if c.metricsManager == nil {
		return
	}
	outcome := "error"
	switch {
	case result.Success && result.Verified:
		outcome = "verified"
	case result.Success:
		outcome = "not_verified"
	}
	c.metricsManager.CounterVerifications.WithLabelValues(outcome).Inc()
}

func imageForm(imagePath string) (*bytes.Buffer, string, error) {
	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, "", err
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(imagePath), "."))
	if ext == "" {
		ext = "jpg"
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="face_image.%s"`, ext))
	header.Set("Content-Type", "image/"+ext)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(imageBytes); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	return body, mw.FormDataContentType(), nil
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

// statusFailure prefers the error or detail message sent by the service.
func statusFailure(status int, body []byte) Result {
	kind := failure.KindForStatus(status)
	switch status {
	case http.StatusBadRequest:
		kind = failure.KindUnsupportedFormat
	case http.StatusUnprocessableEntity:
		kind = failure.KindNoFaceDetected
	}

	if msg := serverMessage(body); msg != "" {
		return failed(kind, msg)
	}

	switch status {
	case http.StatusBadRequest:
		return failed(kind, msgBadImage)
	case http.StatusUnprocessableEntity:
		return failed(kind, msgNoFace)
	case http.StatusInternalServerError:
		return failed(kind, msgServerError)
	default:
		return failed(kind, fmt.Sprintf("%s (status %d)", msgGeneric, status))
	}
}

func serverMessage(body []byte) string {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return ""
	}
	for _, key := range []string{"error", "detail"} {
		if msg, err := obj.GetString(key); err == nil && msg != "" {
			return msg
		}
	}
	return ""
}
