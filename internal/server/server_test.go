package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tareeqk/towing/internal/repository"
	server_mock "github.com/tareeqk/towing/internal/server/mocks"
	"github.com/tareeqk/towing/internal/storage"
	"github.com/tareeqk/towing/internal/towing"
)

type serverFixture struct {
	storage  *server_mock.MockStorage
	users    *server_mock.MockUsers
	tokens   *server_mock.MockTokenManager
	cache    *server_mock.MockCache
	notifier *server_mock.MockNotifier
	server   *Server
}

func newServerFixture(t *testing.T) *serverFixture {
	ctrl := gomock.NewController(t)
	f := &serverFixture{
		storage:  server_mock.NewMockStorage(ctrl),
		users:    server_mock.NewMockUsers(ctrl),
		tokens:   server_mock.NewMockTokenManager(ctrl),
		cache:    server_mock.NewMockCache(ctrl),
		notifier: server_mock.NewMockNotifier(ctrl),
	}
	f.server = New(f.storage, f.users, f.tokens, f.cache, f.notifier, func(w http.ResponseWriter, r *http.Request) {})
	return f
}

func withActor(r *http.Request, actor towing.Actor) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), actorKey, actor))
}

func TestHandleRegister(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    map[string]interface{}
		setupMocks     func(f *serverFixture)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "successful registration",
			requestBody: map[string]interface{}{
				"name":     "Ahmed Al-Rashidi",
				"email":    "ahmed@example.com",
				"password": "secret123",
				"role":     "customer",
			},
			setupMocks: func(f *serverFixture) {
				f.users.EXPECT().
					GetByEmail(gomock.Any(), "ahmed@example.com").
					Return(nil, repository.ErrObjectNotFound)
				f.users.EXPECT().
					Create(gomock.Any(), "Ahmed Al-Rashidi", "ahmed@example.com", "secret123", "customer").
					Return(&repository.User{ID: 1, Name: "Ahmed Al-Rashidi", Email: "ahmed@example.com", Role: "customer"}, nil)
				f.tokens.EXPECT().
					GenerateToken(int64(1), "customer").
					Return("signed-token", nil)
			},
			expectedStatus: http.StatusCreated,
			expectedBody:   `"token":"signed-token"`,
		},
		{
			name: "missing fields",
			requestBody: map[string]interface{}{
				"email": "not-an-email",
			},
			setupMocks: func(f *serverFixture) {
				f.users.EXPECT().
					GetByEmail(gomock.Any(), "not-an-email").
					Return(nil, repository.ErrObjectNotFound)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"name"`,
		},
		{
			name: "duplicate email",
			requestBody: map[string]interface{}{
				"name":     "Ahmed Al-Rashidi",
				"email":    "ahmed@example.com",
				"password": "secret123",
				"role":     "customer",
			},
			setupMocks: func(f *serverFixture) {
				f.users.EXPECT().
					GetByEmail(gomock.Any(), "ahmed@example.com").
					Return(&repository.User{ID: 1}, nil)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"The email has already been taken."`,
		},
		{
			name: "unknown role",
			requestBody: map[string]interface{}{
				"name":     "Ahmed Al-Rashidi",
				"email":    "ahmed@example.com",
				"password": "secret123",
				"role":     "dispatcher",
			},
			setupMocks: func(f *serverFixture) {
				f.users.EXPECT().
					GetByEmail(gomock.Any(), "ahmed@example.com").
					Return(nil, repository.ErrObjectNotFound)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"role"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newServerFixture(t)
			tc.setupMocks(f)

			body, err := json.Marshal(tc.requestBody)
			require.NoError(t, err)
			req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			rr := httptest.NewRecorder()
			f.server.handleRegister(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tc.expectedBody)
		})
	}
}

func TestHandleLogin(t *testing.T) {
	t.Run("successful login", func(t *testing.T) {
		f := newServerFixture(t)
		f.users.EXPECT().
			Authenticate(gomock.Any(), "ahmed@example.com", "secret123").
			Return(&repository.User{ID: 1, Name: "Ahmed Al-Rashidi", Email: "ahmed@example.com", Role: "customer"}, nil)
		f.tokens.EXPECT().
			GenerateToken(int64(1), "customer").
			Return("signed-token", nil)

		body := `{"email":"ahmed@example.com","password":"secret123"}`
		req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader([]byte(body)))
		rr := httptest.NewRecorder()

		f.server.handleLogin(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"token":"signed-token"`)
		assert.Contains(t, rr.Body.String(), `"success":true`)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		f := newServerFixture(t)
		f.users.EXPECT().
			Authenticate(gomock.Any(), "ahmed@example.com", "wrong").
			Return(nil, repository.ErrInvalidCredentials)

		body := `{"email":"ahmed@example.com","password":"wrong"}`
		req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader([]byte(body)))
		rr := httptest.NewRecorder()

		f.server.handleLogin(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.JSONEq(t, `{"success":false,"message":"Invalid credentials"}`, rr.Body.String())
	})
}

func TestHandleCreateRequest(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    string
		actor          towing.Actor
		setupMocks     func(f *serverFixture)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:        "anonymous creation",
			requestBody: `{"customer_name":"Ahmed","location":"King Fahd Road"}`,
			actor:       towing.Anonymous(),
			setupMocks: func(f *serverFixture) {
				record := &storage.Request{ID: 1, CustomerName: "Ahmed", Location: "King Fahd Road", Status: "pending"}
				f.storage.EXPECT().
					CreateRequest(gomock.Any(), gomock.Any(), towing.Anonymous()).
					DoAndReturn(func(_ context.Context, fields storage.CreateFields, _ towing.Actor) (*storage.Request, error) {
						assert.Equal(t, "Ahmed", fields.CustomerName)
						return record, nil
					})
				f.cache.EXPECT().Set(record)
				f.notifier.EXPECT().
					Notify(gomock.Any(), storage.Event{Name: storage.EventRequestCreated, Request: record})
			},
			expectedStatus: http.StatusCreated,
			expectedBody:   `"status":"pending"`,
		},
		{
			name:        "validation failure",
			requestBody: `{"customer_name":""}`,
			actor:       towing.Anonymous(),
			setupMocks: func(f *serverFixture) {
				verr := towing.NewValidationError()
				verr.Add("customer_name", "The customer name field is required.")
				f.storage.EXPECT().
					CreateRequest(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil, verr)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"errors"`,
		},
		{
			name:           "malformed body",
			requestBody:    `{`,
			actor:          towing.Anonymous(),
			setupMocks:     func(f *serverFixture) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"Invalid request body"`,
		},
		{
			name:        "storage error",
			requestBody: `{"customer_name":"Ahmed","location":"King Fahd Road"}`,
			actor:       towing.Customer(3),
			setupMocks: func(f *serverFixture) {
				f.storage.EXPECT().
					CreateRequest(gomock.Any(), gomock.Any(), towing.Customer(3)).
					Return(nil, errors.New("database error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"Internal server error"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newServerFixture(t)
			tc.setupMocks(f)

			req := httptest.NewRequest(http.MethodPost, "/requests", bytes.NewReader([]byte(tc.requestBody)))
			req.Header.Set("Content-Type", "application/json")
			req = withActor(req, tc.actor)

			rr := httptest.NewRecorder()
			f.server.handleCreateRequest(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tc.expectedBody)
		})
	}
}

func TestHandleAcceptRequest(t *testing.T) {
	tests := []struct {
		name           string
		actor          towing.Actor
		setupMocks     func(f *serverFixture)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:  "driver claims request",
			actor: towing.Driver(7),
			setupMocks: func(f *serverFixture) {
				driverID := int64(7)
				record := &storage.Request{ID: 1, Status: "assigned", DriverID: &driverID}
				f.storage.EXPECT().
					AcceptRequest(gomock.Any(), int64(1), towing.Driver(7)).
					Return(record, nil)
				f.cache.EXPECT().Set(record)
				f.notifier.EXPECT().
					Notify(gomock.Any(), storage.Event{Name: storage.EventRequestUpdated, Request: record})
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"assigned"`,
		},
		{
			name:  "customer is forbidden",
			actor: towing.Customer(3),
			setupMocks: func(f *serverFixture) {
				f.storage.EXPECT().
					AcceptRequest(gomock.Any(), int64(1), towing.Customer(3)).
					Return(nil, towing.ErrUnauthorized)
			},
			expectedStatus: http.StatusForbidden,
			expectedBody:   `"You are not allowed to perform this action"`,
		},
		{
			name:  "already claimed",
			actor: towing.Driver(8),
			setupMocks: func(f *serverFixture) {
				f.storage.EXPECT().
					AcceptRequest(gomock.Any(), int64(1), towing.Driver(8)).
					Return(nil, towing.ErrInvalidState)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"Request is not in a valid state for this action"`,
		},
		{
			name:  "unknown request",
			actor: towing.Driver(7),
			setupMocks: func(f *serverFixture) {
				f.storage.EXPECT().
					AcceptRequest(gomock.Any(), int64(1), towing.Driver(7)).
					Return(nil, towing.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"Towing request not found"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newServerFixture(t)
			tc.setupMocks(f)

			req := httptest.NewRequest(http.MethodPatch, "/requests/1/accept", nil)
			req = mux.SetURLVars(req, map[string]string{"id": "1"})
			req = withActor(req, tc.actor)

			rr := httptest.NewRecorder()
			f.server.handleAcceptRequest(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tc.expectedBody)
		})
	}
}

func TestHandleCompleteRequest(t *testing.T) {
	t.Run("assignee completes", func(t *testing.T) {
		f := newServerFixture(t)
		driverID := int64(7)
		record := &storage.Request{ID: 1, Status: "completed", DriverID: &driverID}
		f.storage.EXPECT().
			CompleteRequest(gomock.Any(), int64(1), towing.Driver(7)).
			Return(record, nil)
		f.cache.EXPECT().Set(record)
		f.notifier.EXPECT().
			Notify(gomock.Any(), storage.Event{Name: storage.EventRequestUpdated, Request: record})

		req := httptest.NewRequest(http.MethodPatch, "/requests/1/complete", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "1"})
		req = withActor(req, towing.Driver(7))

		rr := httptest.NewRecorder()
		f.server.handleCompleteRequest(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"status":"completed"`)
	})

	t.Run("other driver is forbidden", func(t *testing.T) {
		f := newServerFixture(t)
		f.storage.EXPECT().
			CompleteRequest(gomock.Any(), int64(1), towing.Driver(8)).
			Return(nil, towing.ErrUnauthorized)

		req := httptest.NewRequest(http.MethodPatch, "/requests/1/complete", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "1"})
		req = withActor(req, towing.Driver(8))

		rr := httptest.NewRecorder()
		f.server.handleCompleteRequest(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestHandleGetRequest(t *testing.T) {
	t.Run("cache hit skips storage", func(t *testing.T) {
		f := newServerFixture(t)
		f.cache.EXPECT().
			Get(int64(1)).
			Return(&storage.Request{ID: 1, CustomerName: "Ahmed", Status: "pending"}, true)

		req := httptest.NewRequest(http.MethodGet, "/requests/1", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "1"})

		rr := httptest.NewRecorder()
		f.server.handleGetRequest(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"customer_name":"Ahmed"`)
	})

	t.Run("cache miss falls through", func(t *testing.T) {
		f := newServerFixture(t)
		f.cache.EXPECT().Get(int64(1)).Return(nil, false)
		f.storage.EXPECT().
			GetRequest(gomock.Any(), int64(1)).
			Return(&storage.Request{ID: 1, Status: "completed"}, nil)

		req := httptest.NewRequest(http.MethodGet, "/requests/1", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "1"})

		rr := httptest.NewRecorder()
		f.server.handleGetRequest(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"status":"completed"`)
	})

	t.Run("not found", func(t *testing.T) {
		f := newServerFixture(t)
		f.cache.EXPECT().Get(int64(99)).Return(nil, false)
		f.storage.EXPECT().
			GetRequest(gomock.Any(), int64(99)).
			Return(nil, towing.ErrNotFound)

		req := httptest.NewRequest(http.MethodGet, "/requests/99", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "99"})

		rr := httptest.NewRecorder()
		f.server.handleGetRequest(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestHandleListRequests(t *testing.T) {
	f := newServerFixture(t)
	f.storage.EXPECT().
		ListRequests(gomock.Any(), towing.Driver(7)).
		Return([]*storage.Request{
			{ID: 2, CustomerName: "Sara", Status: "pending"},
			{ID: 1, CustomerName: "Ahmed", Status: "assigned"},
		}, nil)

	req := httptest.NewRequest(http.MethodGet, "/requests", nil)
	req = withActor(req, towing.Driver(7))

	rr := httptest.NewRecorder()
	f.server.handleListRequests(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"Sara"`)
	assert.Contains(t, rr.Body.String(), `"Ahmed"`)
}

func TestRequireAuth(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		f := newServerFixture(t)

		handler := f.server.requireAuth(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		})

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		f := newServerFixture(t)
		f.tokens.EXPECT().
			ParseToken("bad-token").
			Return(towing.Anonymous(), errors.New("invalid token"))

		handler := f.server.requireAuth(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		})

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer bad-token")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid token resolves actor", func(t *testing.T) {
		f := newServerFixture(t)
		f.tokens.EXPECT().
			ParseToken("good-token").
			Return(towing.Driver(7), nil)

		handler := f.server.requireAuth(func(w http.ResponseWriter, r *http.Request) {
			actor := actorFromContext(r.Context())
			assert.Equal(t, towing.Driver(7), actor)
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("token from query string", func(t *testing.T) {
		f := newServerFixture(t)
		f.tokens.EXPECT().
			ParseToken("ws-token").
			Return(towing.Customer(3), nil)

		handler := f.server.requireAuth(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/ws?token=ws-token", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestOptionalAuth(t *testing.T) {
	t.Run("no token passes through as anonymous", func(t *testing.T) {
		f := newServerFixture(t)

		handler := f.server.optionalAuth(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, towing.Anonymous(), actorFromContext(r.Context()))
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodPost, "/requests", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("invalid token still rejected", func(t *testing.T) {
		f := newServerFixture(t)
		f.tokens.EXPECT().
			ParseToken("bad-token").
			Return(towing.Anonymous(), errors.New("invalid token"))

		handler := f.server.optionalAuth(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		})

		req := httptest.NewRequest(http.MethodPost, "/requests", nil)
		req.Header.Set("Authorization", "Bearer bad-token")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestGetRequestRequiresToken(t *testing.T) {
	t.Run("anonymous read is rejected", func(t *testing.T) {
		f := newServerFixture(t)
		router := f.server.setupRoutes()

		req := httptest.NewRequest(http.MethodGet, "/requests/1", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.NotContains(t, rr.Body.String(), "@example.com")
	})

	t.Run("bearer token reads through", func(t *testing.T) {
		f := newServerFixture(t)
		f.tokens.EXPECT().
			ParseToken("good-token").
			Return(towing.Customer(3), nil).
			AnyTimes()
		f.cache.EXPECT().
			Get(int64(1)).
			Return(&storage.Request{ID: 1, CustomerName: "Ahmed", Status: "pending"}, true)

		router := f.server.setupRoutes()

		req := httptest.NewRequest(http.MethodGet, "/requests/1", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"customer_name":"Ahmed"`)
	})
}

func TestHandleMe(t *testing.T) {
	f := newServerFixture(t)
	f.users.EXPECT().
		GetByID(gomock.Any(), int64(7)).
		Return(&repository.User{ID: 7, Name: "Driver A", Email: "a@example.com", Role: "driver"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = withActor(req, towing.Driver(7))

	rr := httptest.NewRecorder()
	f.server.handleMe(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"role":"driver"`)
}
