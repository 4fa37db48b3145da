package results

import (
	"context"
	"net/http"
	"strconv"

	"github.com/2beens/fitassess/internal/auth"
	"github.com/2beens/fitassess/internal/telemetry/tracing"
	"github.com/2beens/fitassess/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=results_test

type historyRepo interface {
	ListForUser(ctx context.Context, userID int, limit int) ([]Record, error)
	Stats(ctx context.Context, userID int) (Stats, error)
}

type ProgressResponse struct {
	Stats   Stats    `json:"stats"`
	Results []Record `json:"results"`
}

type Handler struct {
	repo historyRepo
}

func NewHandler(repo historyRepo) *Handler {
	return &Handler{
		repo: repo,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/progress", handler.HandleProgress).Methods("GET", "OPTIONS").Name("progress")
}

// HandleProgress serves the session user's result history. Optional ?limit=N.
func (handler *Handler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.results.progress")
	defer span.End()

	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	limit := 0
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		l, err := strconv.Atoi(limitParam)
		if err != nil || l < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = l
	}

	userID := session.User.ID
	records, err := handler.repo.ListForUser(ctx, userID, limit)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Errorf("progress, list results for user %d: %s", userID, err)
		http.Error(w, "failed to get progress", http.StatusInternalServerError)
		return
	}

	stats, err := handler.repo.Stats(ctx, userID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Errorf("progress, stats for user %d: %s", userID, err)
		http.Error(w, "failed to get progress", http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []Record{}
	}
	pkg.WriteJSON(w, ProgressResponse{Stats: stats, Results: records}, http.StatusOK)
}
