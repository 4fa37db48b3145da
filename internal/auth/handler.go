package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/2beens/fitassess/internal/telemetry/tracing"
	"github.com/2beens/fitassess/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

const TokenHeader = "Authorization"

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=auth_test

type authService interface {
	Register(ctx context.Context, req RegisterRequest) (*Session, error)
	Login(ctx context.Context, creds Credentials) (*Session, error)
	Logout(ctx context.Context, token string) error
}

type SessionResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type Handler struct {
	service authService
}

func NewHandler(service authService) *Handler {
	return &Handler{
		service: service,
	}
}

// SetupRoutes registers the session routes on the /a subrouter.
func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/register", handler.HandleRegister).Methods("POST", "OPTIONS").Name("register")
	router.HandleFunc("/login", handler.HandleLogin).Methods("POST", "OPTIONS").Name("login")
	router.HandleFunc("/logout", handler.HandleLogout).Methods("GET", "OPTIONS").Name("logout")
	router.HandleFunc("/me", handler.HandleMe).Methods("GET", "OPTIONS").Name("me")
}

// TokenFromRequest reads the session token, with or without the Bearer prefix.
func TokenFromRequest(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get(TokenHeader))
	return strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
}

func (handler *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.auth.register")
	defer span.End()

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("register, unmarshal json params: %s", err)
		http.Error(w, "register failed", http.StatusBadRequest)
		return
	}

	session, err := handler.service.Register(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		var vErr *ValidationError
		switch {
		case errors.As(err, &vErr):
			pkg.WriteJSON(w, vErr.Fields, http.StatusBadRequest)
		case errors.Is(err, ErrUsernameTaken):
			http.Error(w, "username already taken", http.StatusConflict)
		default:
			log.Errorf("register [%s]: %s", req.Username, err)
			http.Error(w, "register failed", http.StatusInternalServerError)
		}
		return
	}

	log.Debugf("new user registered: %s", session.User.Username)
	pkg.WriteJSON(w, SessionResponse{Token: session.Token, User: session.User}, http.StatusCreated)
}

func (handler *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.auth.login")
	defer span.End()

	var creds Credentials
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			log.Tracef("login, unmarshal json params: %s", err)
			http.Error(w, "login failed", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("login failed, parse form error: %s", err)
			http.Error(w, "parse form error", http.StatusBadRequest)
			return
		}
		creds = Credentials{
			Username: r.Form.Get("username"),
			Password: r.Form.Get("password"),
		}
	}

	if creds.Username == "" {
		http.Error(w, "error, username empty", http.StatusBadRequest)
		return
	}
	if creds.Password == "" {
		http.Error(w, "error, password empty", http.StatusBadRequest)
		return
	}

	session, err := handler.service.Login(ctx, creds)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrWrongCredentials) {
			http.Error(w, "error, wrong credentials", http.StatusUnauthorized)
			return
		}
		log.Errorf("login failed: %s", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	log.Tracef("new login success: %s", session.User.Username)
	pkg.WriteJSON(w, SessionResponse{Token: session.Token, User: session.User}, http.StatusOK)
}

func (handler *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.auth.logout")
	defer span.End()

	token := TokenFromRequest(r)
	if token == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	if err := handler.service.Logout(ctx, token); err != nil {
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "no can do", http.StatusUnauthorized)
			return
		}
		log.Errorf("logout: %s", err)
		http.Error(w, "logout failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteTextResponseOK(w, "logged-out")
}

func (handler *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}
	pkg.WriteJSON(w, session.User, http.StatusOK)
}
