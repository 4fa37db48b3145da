package flow

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/2beens/fitassess/internal/auth"
	"github.com/2beens/fitassess/internal/capture"
	"github.com/2beens/fitassess/internal/exercise"
	"github.com/2beens/fitassess/internal/failure"
	"github.com/2beens/fitassess/internal/results"
	"github.com/2beens/fitassess/internal/submission"
	"github.com/2beens/fitassess/internal/telemetry/tracing"
	"github.com/2beens/fitassess/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type startFlowRequest struct {
	TestID string `json:"testId"`
}

type Handler struct {
	manager  *Manager
	mediaDir string
}

func NewHandler(manager *Manager, mediaDir string) *Handler {
	return &Handler{
		manager:  manager,
		mediaDir: mediaDir,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/tests", handler.handleTests).Methods("GET", "OPTIONS").Name("tests")
	router.HandleFunc("/tests/{id}", handler.handleTest).Methods("GET", "OPTIONS").Name("test")

	router.HandleFunc("/flows", handler.handleStart).Methods("POST", "OPTIONS").Name("flow-start")
	router.HandleFunc("/flows/{id}", handler.handleStatus).Methods("GET", "OPTIONS").Name("flow-status")
	router.HandleFunc("/flows/{id}", handler.handleClose).Methods("DELETE").Name("flow-close")
	router.HandleFunc("/flows/{id}/capture/permissions", handler.handlePermissions).Methods("POST", "OPTIONS").Name("flow-capture-permissions")
	router.HandleFunc("/flows/{id}/capture/stop", handler.handleStopCapture).Methods("POST", "OPTIONS").Name("flow-capture-stop")
	router.HandleFunc("/flows/{id}/capture/{target:face|exercise}", handler.handleStartCapture).Methods("POST", "OPTIONS").Name("flow-capture-start")
	router.HandleFunc("/flows/{id}/upload", handler.handleUpload).Methods("POST", "OPTIONS").Name("flow-upload")
	router.HandleFunc("/flows/{id}/submit", handler.handleSubmit).Methods("POST", "OPTIONS").Name("flow-submit")
	router.HandleFunc("/flows/{id}/record-again", handler.handleRecordAgain).Methods("POST", "OPTIONS").Name("flow-record-again")
	router.HandleFunc("/flows/{id}/results", handler.handleResults).Methods("GET", "OPTIONS").Name("flow-results")
}

func (handler *Handler) handleTests(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteJSON(w, exercise.Catalogue(), http.StatusOK)
}

func (handler *Handler) handleTest(w http.ResponseWriter, r *http.Request) {
	exType, err := exercise.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "test not found", http.StatusNotFound)
		return
	}
	test, _ := exercise.Lookup(exType)
	pkg.WriteJSON(w, test, http.StatusOK)
}

func (handler *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.flow.start")
	defer span.End()

	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var req startFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("start flow, unmarshal json params: %s", err)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	f, err := handler.manager.Start(session.User.ID, req.TestID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		pkg.WriteJSONError(w, err.Error(), "", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("flow.id", f.ID()))

	pkg.WriteJSON(w, f.Status(), http.StatusCreated)
}

// userFlow resolves the {id} flow of the session user, answering the request on failure.
func (handler *Handler) userFlow(w http.ResponseWriter, r *http.Request) (*Flow, bool) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return nil, false
	}
	f, err := handler.manager.Get(mux.Vars(r)["id"], session.User.ID)
	if err != nil {
		writeFlowError(w, err)
		return nil, false
	}
	return f, true
}

func (handler *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	f, ok := handler.userFlow(w, r)
	if !ok {
		return
	}
	pkg.WriteJSON(w, f.Status(), http.StatusOK)
}

func (handler *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}
	if err := handler.manager.Close(mux.Vars(r)["id"], session.User.ID); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (handler *Handler) handleStartCapture(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.flow.startCapture")
	defer span.End()

	f, ok := handler.userFlow(w, r)
	if !ok {
		return
	}

	target := CaptureTarget(mux.Vars(r)["target"])
	span.SetAttributes(attribute.String("capture.target", string(target)))
	if err := f.StartCapture(ctx, target); err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeFlowError(w, err)
		return
	}

	pkg.WriteJSON(w, f.Status(), http.StatusAccepted)
}

func (handler *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	f, ok := handler.userFlow(w, r)
	if !ok {
		return
	}
	if err := f.GrantPermissions(r.Context()); err != nil {
		writeFlowError(w, err)
		return
	}
	pkg.WriteJSON(w, f.Status(), http.StatusOK)
}

func (handler *Handler) handleStopCapture(w http.ResponseWriter, r *http.Request) {
	f, ok := handler.userFlow(w, r)
	if !ok {
		return
	}
	if err := f.StopCapture(); err != nil {
		writeFlowError(w, err)
		return
	}
	pkg.WriteJSON(w, f.Status(), http.StatusAccepted)
}

func (handler *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.flow.upload")
	defer span.End()

	f, ok := handler.userFlow(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, capture.MaxPickedVideoBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			pkg.WriteJSONError(w, "Video file is too large. Please use a smaller file.", failure.KindFileTooLarge.String(), http.StatusRequestEntityTooLarge)
			return
		}
		log.Tracef("upload, read form file: %s", err)
		pkg.WriteJSONError(w, "Please select a video file.", failure.KindNoMediaToSubmit.String(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	picked, err := capture.SaveUpload(file, header.Filename, handler.mediaDir)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeFlowError(w, err)
		return
	}
	span.SetAttributes(attribute.Int64("upload.size", picked.Size))

	if err := f.UseVideo(picked); err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeFlowError(w, err)
		return
	}

	pkg.WriteJSON(w, f.Status(), http.StatusAccepted)
}

func (handler *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	f, ok := handler.userFlow(w, r)
	if !ok {
		return
	}
	if err := f.Submit(); err != nil {
		writeFlowError(w, err)
		return
	}
	pkg.WriteJSON(w, f.Status(), http.StatusAccepted)
}

func (handler *Handler) handleRecordAgain(w http.ResponseWriter, r *http.Request) {
	f, ok := handler.userFlow(w, r)
	if !ok {
		return
	}
	if err := f.RecordAgain(); err != nil {
		writeFlowError(w, err)
		return
	}
	pkg.WriteJSON(w, f.Status(), http.StatusOK)
}

func (handler *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	f, ok := handler.userFlow(w, r)
	if !ok {
		return
	}
	summary, err := f.Results()
	if err != nil {
		if errors.Is(err, results.ErrSummaryNotFound) {
			http.Error(w, "no results yet", http.StatusNotFound)
			return
		}
		log.Errorf("flow %s results: %s", f.ID(), err)
		http.Error(w, "failed to get results", http.StatusInternalServerError)
		return
	}
	pkg.WriteJSON(w, summary, http.StatusOK)
}

func writeFlowError(w http.ResponseWriter, err error) {
	var fErr *failure.Error
	switch {
	case errors.Is(err, ErrFlowNotFound):
		http.Error(w, "flow not found", http.StatusNotFound)
	case errors.Is(err, ErrFlowClosed), errors.Is(err, capture.ErrClosed):
		http.Error(w, "flow closed", http.StatusGone)
	case errors.Is(err, submission.ErrSubmissionInFlight):
		pkg.WriteJSONError(w, "a submission is already in progress", "", http.StatusConflict)
	case errors.Is(err, ErrFaceNotVerified):
		pkg.WriteJSONError(w, "face verification required", "", http.StatusConflict)
	case errors.Is(err, ErrWrongStep), errors.Is(err, ErrNoCapture), errors.Is(err, capture.ErrInvalidState):
		pkg.WriteJSONError(w, err.Error(), "", http.StatusConflict)
	case errors.As(err, &fErr):
		pkg.WriteJSONError(w, fErr.Message, fErr.Kind.String(), failure.HTTPStatus(fErr.Kind))
	default:
		log.Errorf("flow request: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
