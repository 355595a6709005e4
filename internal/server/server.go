//go:generate mockgen -source ./server.go -destination=./mocks/server.go -package=server_mock
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tareeqk/towing/internal/metrics"
	"github.com/tareeqk/towing/internal/repository"
	"github.com/tareeqk/towing/internal/storage"
	"github.com/tareeqk/towing/internal/towing"
)

type Storage interface {
	CreateRequest(ctx context.Context, fields storage.CreateFields, actor towing.Actor) (*storage.Request, error)
	GetRequest(ctx context.Context, id int64) (*storage.Request, error)
	ListRequests(ctx context.Context, viewer towing.Actor) ([]*storage.Request, error)
	AcceptRequest(ctx context.Context, id int64, actor towing.Actor) (*storage.Request, error)
	CompleteRequest(ctx context.Context, id int64, actor towing.Actor) (*storage.Request, error)
}

type Users interface {
	Create(ctx context.Context, name, email, password, role string) (*repository.User, error)
	GetByID(ctx context.Context, id int64) (*repository.User, error)
	GetByEmail(ctx context.Context, email string) (*repository.User, error)
	Authenticate(ctx context.Context, email, password string) (*repository.User, error)
}

type TokenManager interface {
	GenerateToken(userID int64, role string) (string, error)
	ParseToken(token string) (towing.Actor, error)
}

type Cache interface {
	Get(id int64) (*storage.Request, bool)
	Set(request *storage.Request)
}

// Notifier receives an event after every successful mutation. Delivery
// is best effort and never fails the request.
type Notifier interface {
	Notify(ctx context.Context, event storage.Event)
}

type Server struct {
	storage      Storage
	users        Users
	tokens       TokenManager
	cache        Cache
	notifier     Notifier
	wsHandler    http.HandlerFunc
	server       *http.Server
	AuditManager *AuditManager
}

func New(storage Storage, users Users, tokens TokenManager, cache Cache, notifier Notifier, wsHandler http.HandlerFunc) *Server {
	auditManager := NewAuditManager(2, 5, 500*time.Millisecond)
	return &Server{
		storage:      storage,
		users:        users,
		tokens:       tokens,
		cache:        cache,
		notifier:     notifier,
		wsHandler:    wsHandler,
		AuditManager: auditManager,
	}
}

func (s *Server) Run(ctx context.Context, port string) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.AuditManager.Start(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Printf("ERROR: Server shutdown failed: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}

	s.AuditManager.Shutdown(ctx)
	log.Println("Server shutdown completed successfully")

	return nil
}

func (s *Server) setupRoutes() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	router.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	router.Handle("/logout", s.requireAuth(s.handleLogout)).Methods(http.MethodPost)
	router.Handle("/me", s.requireAuth(s.handleMe)).Methods(http.MethodGet)

	router.Handle("/requests", s.optionalAuth(s.handleCreateRequest)).Methods(http.MethodPost)
	router.Handle("/requests", s.requireAuth(s.handleListRequests)).Methods(http.MethodGet)
	router.Handle("/requests/{id:[0-9]+}", s.requireAuth(s.handleGetRequest)).Methods(http.MethodGet)
	router.Handle("/requests/{id:[0-9]+}/accept", s.requireAuth(s.handleAcceptRequest)).Methods(http.MethodPatch)
	router.Handle("/requests/{id:[0-9]+}/complete", s.requireAuth(s.handleCompleteRequest)).Methods(http.MethodPatch)

	router.HandleFunc("/ws", s.wsHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return s.auditLogMiddleware(router)
}

type registerPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondMessage(w, http.StatusBadRequest, false, "Invalid request body")
		return
	}

	verr := towing.NewValidationError()
	if strings.TrimSpace(payload.Name) == "" {
		verr.Add("name", "The name field is required.")
	}
	if strings.TrimSpace(payload.Email) == "" || !strings.Contains(payload.Email, "@") {
		verr.Add("email", "The email must be a valid email address.")
	}
	if len(payload.Password) < 6 {
		verr.Add("password", "The password must be at least 6 characters.")
	}
	if payload.Role != "customer" && payload.Role != "driver" {
		verr.Add("role", "The role must be customer or driver.")
	}
	if _, err := s.users.GetByEmail(r.Context(), payload.Email); err == nil {
		verr.Add("email", "The email has already been taken.")
	}
	if verr.HasErrors() {
		respondValidationError(w, verr)
		return
	}

	user, err := s.users.Create(r.Context(), payload.Name, payload.Email, payload.Password, payload.Role)
	if err != nil {
		log.Printf("Error creating user %s: %v", payload.Email, err)
		respondMessage(w, http.StatusInternalServerError, false, "Registration failed")
		return
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		respondMessage(w, http.StatusInternalServerError, false, "Registration failed")
		return
	}

	respondData(w, http.StatusCreated, "Registered successfully", map[string]interface{}{
		"user":  userSummary(user),
		"token": token,
	})
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondMessage(w, http.StatusBadRequest, false, "Invalid request body")
		return
	}

	user, err := s.users.Authenticate(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCredentials) {
			respondMessage(w, http.StatusUnauthorized, false, "Invalid credentials")
			return
		}
		log.Printf("Error during login for %s: %v", payload.Email, err)
		respondMessage(w, http.StatusInternalServerError, false, "Login failed")
		return
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		respondMessage(w, http.StatusInternalServerError, false, "Login failed")
		return
	}

	respondData(w, http.StatusOK, "Logged in successfully", map[string]interface{}{
		"user":  userSummary(user),
		"token": token,
	})
}

// Tokens are stateless, so logout just acknowledges. Clients discard
// the token on their side.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	respondMessage(w, http.StatusOK, true, "Logged out successfully")
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())

	user, err := s.users.GetByID(r.Context(), actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			respondMessage(w, http.StatusNotFound, false, "Account not found")
			return
		}
		respondMessage(w, http.StatusInternalServerError, false, "Failed to load account")
		return
	}

	respondData(w, http.StatusOK, "", map[string]interface{}{"user": userSummary(user)})
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var fields storage.CreateFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		respondMessage(w, http.StatusBadRequest, false, "Invalid request body")
		return
	}

	actor := actorFromContext(r.Context())

	record, err := s.storage.CreateRequest(r.Context(), fields, actor)
	if err != nil {
		s.respondOperationError(w, "create_request", err)
		return
	}

	metrics.RequestsCreatedTotal.Inc()
	s.cache.Set(record)
	s.notifier.Notify(r.Context(), storage.Event{Name: storage.EventRequestCreated, Request: record})

	respondData(w, http.StatusCreated, "Towing request created successfully", record)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())

	records, err := s.storage.ListRequests(r.Context(), actor)
	if err != nil {
		s.respondOperationError(w, "list_requests", err)
		return
	}

	respondData(w, http.StatusOK, "", records)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, false, "Invalid request ID")
		return
	}

	if record, found := s.cache.Get(id); found {
		respondData(w, http.StatusOK, "", record)
		return
	}

	record, err := s.storage.GetRequest(r.Context(), id)
	if err != nil {
		s.respondOperationError(w, "get_request", err)
		return
	}

	respondData(w, http.StatusOK, "", record)
}

func (s *Server) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, false, "Invalid request ID")
		return
	}

	actor := actorFromContext(r.Context())

	record, err := s.storage.AcceptRequest(r.Context(), id, actor)
	if err != nil {
		s.respondOperationError(w, "accept_request", err)
		return
	}

	metrics.RequestsAcceptedTotal.Inc()
	s.cache.Set(record)
	s.notifier.Notify(r.Context(), storage.Event{Name: storage.EventRequestUpdated, Request: record})

	respondData(w, http.StatusOK, "Request accepted successfully", record)
}

func (s *Server) handleCompleteRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, false, "Invalid request ID")
		return
	}

	actor := actorFromContext(r.Context())

	record, err := s.storage.CompleteRequest(r.Context(), id, actor)
	if err != nil {
		s.respondOperationError(w, "complete_request", err)
		return
	}

	metrics.RequestsCompletedTotal.Inc()
	s.cache.Set(record)
	s.notifier.Notify(r.Context(), storage.Event{Name: storage.EventRequestUpdated, Request: record})

	respondData(w, http.StatusOK, "Request completed successfully", record)
}

func requestID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func userSummary(user *repository.User) *storage.UserSummary {
	return &storage.UserSummary{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	}
}
