package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/cache"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/domain/user"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/http/handlers"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Make sure Gin does not spam the console during the test

func init() {
	gin.SetMode(gin.TestMode)
	handlers.RegisterValidators()
}

// Fake store implementation of the handlers.UserStore interface

type fakeUserStore struct {
	listFn             func(ctx context.Context) ([]user.User, error)
	getByIDFn          func(ctx context.Context, id string) (user.User, error)
	getByUsernameFn    func(ctx context.Context, username string) (user.User, error)
	existsByEmailFn    func(ctx context.Context, email string) (bool, error)
	existsByUsernameFn func(ctx context.Context, username string) (bool, error)
	createFn           func(ctx context.Context, u user.User) error
	updateLastLoginFn  func(ctx context.Context, id string, at time.Time) error
	updatePasswordFn   func(ctx context.Context, id, hash string) error
	updateFn           func(ctx context.Context, id string, req user.UpdateUserRequest) (user.User, error)
	setRoleFn          func(ctx context.Context, id, role string) (user.User, error)
	deleteFn           func(ctx context.Context, id string) (user.User, error)

	listCalls            int
	updateLastLoginCalls int
	createCalls          int
}

func (f *fakeUserStore) List(ctx context.Context) ([]user.User, error) {
	f.listCalls++
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return []user.User{}, nil
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (user.User, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUserStore) GetByUsername(ctx context.Context, username string) (user.User, error) {
	if f.getByUsernameFn != nil {
		return f.getByUsernameFn(ctx, username)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if f.existsByEmailFn != nil {
		return f.existsByEmailFn(ctx, email)
	}
	return false, nil
}

func (f *fakeUserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if f.existsByUsernameFn != nil {
		return f.existsByUsernameFn(ctx, username)
	}
	return false, nil
}

func (f *fakeUserStore) Create(ctx context.Context, u user.User) error {
	f.createCalls++
	if f.createFn != nil {
		return f.createFn(ctx, u)
	}
	return nil
}

func (f *fakeUserStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	f.updateLastLoginCalls++
	if f.updateLastLoginFn != nil {
		return f.updateLastLoginFn(ctx, id, at)
	}
	return nil
}

func (f *fakeUserStore) UpdatePassword(ctx context.Context, id, hash string) error {
	if f.updatePasswordFn != nil {
		return f.updatePasswordFn(ctx, id, hash)
	}
	return nil
}

func (f *fakeUserStore) Update(ctx context.Context, id string, req user.UpdateUserRequest) (user.User, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, req)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUserStore) SetRole(ctx context.Context, id, role string) (user.User, error) {
	if f.setRoleFn != nil {
		return f.setRoleFn(ctx, id, role)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUserStore) Delete(ctx context.Context, id string) (user.User, error) {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return user.User{}, user.ErrNotFound
}

type fakeIssuer struct{}

func (fakeIssuer) GenerateToken(userID, role string) (string, time.Time, error) {
	return "test-token", time.Now().UTC().Add(72 * time.Hour), nil
}

func (fakeIssuer) TokenTTL() time.Duration {
	return 72 * time.Hour
}

type fakeRevoker struct {
	revoked []string
}

func (f *fakeRevoker) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	f.revoked = append(f.revoked, jti)
	return nil
}

func newUsersHandler(store *fakeUserStore) *handlers.UsersHandler {
	return handlers.NewUsersHandler(store, fakeIssuer{}, &fakeRevoker{}, cache.NewUserList(time.Minute), "auth_token")
}

// small helper function which returns the gin engine to mount one handler per test

func setupRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Handle(method, path, h)

	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

// Create user tests

func TestCreateUserHandler(t *testing.T) {
	validBody := `{
		"name": "Test",
		"username": "t1",
		"email": "t1@x.com",
		"password": "Password123",
		"role": "employee"
	}`

	tests := []struct {
		name           string
		body           string
		storeSetUp     func(*fakeUserStore)
		wantStatusCode int
		wantBody       string
		wantNoWrite    bool
	}{
		{
			name:           "success",
			body:           validBody,
			wantStatusCode: http.StatusCreated,
		},
		{
			name: "email_already_registered",
			body: validBody,
			storeSetUp: func(f *fakeUserStore) {
				f.existsByEmailFn = func(ctx context.Context, email string) (bool, error) {
					return true, nil
				}
			},
			wantStatusCode: http.StatusBadRequest,
			wantBody:       "Email already registered",
			wantNoWrite:    true,
		},
		{
			name: "username_already_registered",
			body: validBody,
			storeSetUp: func(f *fakeUserStore) {
				f.existsByUsernameFn = func(ctx context.Context, username string) (bool, error) {
					return true, nil
				}
			},
			wantStatusCode: http.StatusBadRequest,
			wantBody:       "Username already registered",
			wantNoWrite:    true,
		},
		{
			name:           "weak_password_rejected",
			body:           `{"name":"Test","username":"t1","email":"t1@x.com","password":"password","role":"employee"}`,
			wantStatusCode: http.StatusUnprocessableEntity,
			wantNoWrite:    true,
		},
		{
			name:           "invalid_role_rejected",
			body:           `{"name":"Test","username":"t1","email":"t1@x.com","password":"Password123","role":"superuser"}`,
			wantStatusCode: http.StatusUnprocessableEntity,
			wantNoWrite:    true,
		},
		{
			name: "write_time_store_error_is_500",
			body: validBody,
			storeSetUp: func(f *fakeUserStore) {
				// duplicate insert losing the uniqueness race lands here
				f.createFn = func(ctx context.Context, u user.User) error {
					return errors.New("duplicate key value violates unique constraint")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			store := &fakeUserStore{}

			if tt.storeSetUp != nil {
				tt.storeSetUp(store)
			}

			h := newUsersHandler(store)

			r := setupRouter(http.MethodPost, "/user/createUser", h.CreateUser)

			w := doJSON(r, http.MethodPost, "/user/createUser", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Fatalf("got body %q, want %q", w.Body.String(), tt.wantBody)
			}

			if tt.wantNoWrite && store.createCalls != 0 {
				t.Fatalf("expected no write, got %d create calls", store.createCalls)
			}
		})
	}
}

func TestCreateUserNeverLeaksPassword(t *testing.T) {
	store := &fakeUserStore{}
	h := newUsersHandler(store)

	r := setupRouter(http.MethodPost, "/user/createUser", h.CreateUser)

	w := doJSON(r, http.MethodPost, "/user/createUser",
		`{"name":"Test","username":"t1","email":"T1@X.com","password":"Password123","role":"employee"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	if strings.Contains(strings.ToLower(w.Body.String()), "password") {
		t.Fatalf("response body leaks a password field: %s", w.Body.String())
	}

	var body map[string]interface{}

	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal body: %v", err)
	}

	if body["username"] != "t1" {
		t.Fatalf("got username %v, want t1", body["username"])
	}

	// email is normalized to lowercase on the way in
	if body["email"] != "t1@x.com" {
		t.Fatalf("got email %v, want t1@x.com", body["email"])
	}

	cookies := w.Result().Cookies()

	found := false

	for _, c := range cookies {
		if c.Name == "auth_token" && c.Value != "" {
			found = true

			if !c.HttpOnly || !c.Secure || c.Path != "/" {
				t.Fatalf("auth cookie attributes wrong: %+v", c)
			}
		}
	}

	if !found {
		t.Fatalf("auth_token cookie not set on create")
	}
}

// Login tests

func TestLoginHandler(t *testing.T) {
	hash, err := security.HashPassword("Password123")

	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	stored := user.User{
		ID:           uuid.NewString(),
		Name:         "Test",
		Username:     "t1",
		Email:        "t1@x.com",
		PasswordHash: hash,
		Role:         user.RoleEmployee,
	}

	tests := []struct {
		name              string
		body              string
		storeSetUp        func(*fakeUserStore)
		wantStatusCode    int
		wantBody          string
		wantLastLoginSets int
	}{
		{
			name: "success",
			body: `{"username":"t1","password":"Password123"}`,
			storeSetUp: func(f *fakeUserStore) {
				f.getByUsernameFn = func(ctx context.Context, username string) (user.User, error) {
					return stored, nil
				}
			},
			wantStatusCode:    http.StatusOK,
			wantLastLoginSets: 1,
		},
		{
			name:           "unknown_user",
			body:           `{"username":"nobody","password":"Password123"}`,
			wantStatusCode: http.StatusUnauthorized,
			wantBody:       "User does not exist",
		},
		{
			name: "wrong_password",
			body: `{"username":"t1","password":"Wrong1234"}`,
			storeSetUp: func(f *fakeUserStore) {
				f.getByUsernameFn = func(ctx context.Context, username string) (user.User, error) {
					return stored, nil
				}
			},
			wantStatusCode:    http.StatusUnauthorized,
			wantBody:          "Invalid Credentials",
			wantLastLoginSets: 0,
		},
		{
			name:           "password_policy_applies_to_login",
			body:           `{"username":"t1","password":"short"}`,
			wantStatusCode: http.StatusUnprocessableEntity,
		},
		{
			name: "store_error",
			body: `{"username":"t1","password":"Password123"}`,
			storeSetUp: func(f *fakeUserStore) {
				f.getByUsernameFn = func(ctx context.Context, username string) (user.User, error) {
					return user.User{}, errors.New("db error")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			store := &fakeUserStore{}

			if tt.storeSetUp != nil {
				tt.storeSetUp(store)
			}

			h := newUsersHandler(store)

			r := setupRouter(http.MethodPost, "/user/login", h.Login)

			w := doJSON(r, http.MethodPost, "/user/login", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Fatalf("got body %q, want %q", w.Body.String(), tt.wantBody)
			}

			if store.updateLastLoginCalls != tt.wantLastLoginSets {
				t.Fatalf("got %d lastLogin updates, want %d", store.updateLastLoginCalls, tt.wantLastLoginSets)
			}

			if tt.wantStatusCode == http.StatusOK {
				var body map[string]interface{}

				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
					t.Fatalf("failed to unmarshal body: %v", err)
				}

				if body["name"] != stored.Name || body["role"] != stored.Role {
					t.Fatalf("unexpected login body: %v", body)
				}

				if _, ok := body["lastLogin"]; !ok {
					t.Fatalf("login body missing lastLogin: %v", body)
				}
			}
		})
	}
}

// List users tests

func TestListUsersHandler(t *testing.T) {
	now := time.Now().UTC()

	store := &fakeUserStore{
		listFn: func(ctx context.Context) ([]user.User, error) {
			// repo returns newest first; the handler must not reorder
			return []user.User{
				{ID: "2", Name: "Newer", Username: "u2", Email: "u2@x.com", Role: "employee", CreatedAt: now},
				{ID: "1", Name: "Older", Username: "u1", Email: "u1@x.com", Role: "manager", CreatedAt: now.Add(-time.Hour)},
			}, nil
		},
	}

	h := newUsersHandler(store)

	r := setupRouter(http.MethodGet, "/user", h.ListUsers)

	w := doJSON(r, http.MethodGet, "/user", "")

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	var body struct {
		Message string        `json:"message"`
		Users   []user.Public `json:"users"`
	}

	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal body: %v", err)
	}

	if len(body.Users) != 2 || body.Users[0].ID != "2" || body.Users[1].ID != "1" {
		t.Fatalf("unexpected ordering: %+v", body.Users)
	}

	if strings.Contains(strings.ToLower(w.Body.String()), "password") {
		t.Fatalf("list response leaks password data: %s", w.Body.String())
	}

	// second request is served from the list cache
	w = doJSON(r, http.MethodGet, "/user", "")

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d on cached read", w.Code)
	}

	if store.listCalls != 1 {
		t.Fatalf("got %d store reads, want 1 (cache miss only)", store.listCalls)
	}
}

func TestListUsersStoreError(t *testing.T) {
	store := &fakeUserStore{
		listFn: func(ctx context.Context) ([]user.User, error) {
			return nil, errors.New("db down")
		},
	}

	h := newUsersHandler(store)

	r := setupRouter(http.MethodGet, "/user", h.ListUsers)

	w := doJSON(r, http.MethodGet, "/user", "")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", w.Code)
	}

	var body map[string]interface{}

	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal body: %v", err)
	}

	if body["message"] != "Error" || body["cause"] != "db down" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

// Delete user tests

func TestDeleteUserHandler(t *testing.T) {
	employee := user.User{
		ID:       "123",
		Name:     "John Doe",
		Username: "johndoe",
		Email:    "john@example.com",
		Role:     user.RoleEmployee,
	}

	tests := []struct {
		name           string
		path           string
		routePath      string
		storeSetUp     func(*fakeUserStore)
		wantStatusCode int
	}{
		{
			name:      "success",
			path:      "/user/deleteUser/123",
			routePath: "/user/deleteUser/:id",
			storeSetUp: func(f *fakeUserStore) {
				f.getByIDFn = func(ctx context.Context, id string) (user.User, error) {
					return employee, nil
				}
				f.deleteFn = func(ctx context.Context, id string) (user.User, error) {
					return employee, nil
				}
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "not_found",
			path:           "/user/deleteUser/missing",
			routePath:      "/user/deleteUser/:id",
			wantStatusCode: http.StatusNotFound,
		},
		{
			name:           "missing_id",
			path:           "/user/deleteUser",
			routePath:      "/user/deleteUser",
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:      "admin_is_protected",
			path:      "/user/deleteUser/123",
			routePath: "/user/deleteUser/:id",
			storeSetUp: func(f *fakeUserStore) {
				f.getByIDFn = func(ctx context.Context, id string) (user.User, error) {
					adminUser := employee
					adminUser.Role = user.RoleAdmin
					return adminUser, nil
				}
			},
			wantStatusCode: http.StatusForbidden,
		},
		{
			name:      "store_error",
			path:      "/user/deleteUser/123",
			routePath: "/user/deleteUser/:id",
			storeSetUp: func(f *fakeUserStore) {
				f.getByIDFn = func(ctx context.Context, id string) (user.User, error) {
					return employee, nil
				}
				f.deleteFn = func(ctx context.Context, id string) (user.User, error) {
					return user.User{}, errors.New("db error")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			store := &fakeUserStore{}

			if tt.storeSetUp != nil {
				tt.storeSetUp(store)
			}

			h := newUsersHandler(store)

			r := setupRouter(http.MethodDelete, tt.routePath, h.DeleteUser)

			w := doJSON(r, http.MethodDelete, tt.path, "")

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantStatusCode == http.StatusOK {
				if strings.Contains(strings.ToLower(w.Body.String()), "password") {
					t.Fatalf("delete response leaks password data: %s", w.Body.String())
				}

				var body struct {
					User user.Public `json:"user"`
				}

				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
					t.Fatalf("failed to unmarshal body: %v", err)
				}

				if body.User.Username != "johndoe" {
					t.Fatalf("unexpected deleted user: %+v", body.User)
				}
			}
		})
	}
}

// Update user tests

func TestUpdateUserHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		storeSetUp     func(*fakeUserStore)
		wantStatusCode int
	}{
		{
			name: "success",
			body: `{"name":"Renamed"}`,
			storeSetUp: func(f *fakeUserStore) {
				f.updateFn = func(ctx context.Context, id string, req user.UpdateUserRequest) (user.User, error) {
					if req.Name == nil || *req.Name != "Renamed" {
						return user.User{}, errors.New("name not forwarded")
					}
					if req.Username != nil || req.Email != nil || req.Role != nil {
						return user.User{}, errors.New("absent fields must stay nil")
					}
					return user.User{ID: id, Name: *req.Name, Username: "t1", Email: "t1@x.com", Role: "employee"}, nil
				}
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "not_found",
			body:           `{"name":"Renamed"}`,
			wantStatusCode: http.StatusNotFound,
		},
		{
			name: "write_time_validation_is_500",
			body: `{"role":"superuser"}`,
			storeSetUp: func(f *fakeUserStore) {
				f.updateFn = func(ctx context.Context, id string, req user.UpdateUserRequest) (user.User, error) {
					return user.User{}, errors.New(`new row for relation "users" violates check constraint`)
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			store := &fakeUserStore{}

			if tt.storeSetUp != nil {
				tt.storeSetUp(store)
			}

			h := newUsersHandler(store)

			r := setupRouter(http.MethodPut, "/user/updateUser/:id", h.UpdateUser)

			w := doJSON(r, http.MethodPut, "/user/updateUser/123", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

// Role change tests

func TestSetRoleHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		storeSetUp     func(*fakeUserStore)
		wantStatusCode int
	}{
		{
			name: "success",
			body: `{"role":"manager"}`,
			storeSetUp: func(f *fakeUserStore) {
				f.setRoleFn = func(ctx context.Context, id, role string) (user.User, error) {
					return user.User{ID: id, Role: role, Username: "t1"}, nil
				}
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "invalid_role",
			body:           `{"role":"superuser"}`,
			wantStatusCode: http.StatusUnprocessableEntity,
		},
		{
			name:           "not_found",
			body:           `{"role":"manager"}`,
			wantStatusCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			store := &fakeUserStore{}

			if tt.storeSetUp != nil {
				tt.storeSetUp(store)
			}

			h := newUsersHandler(store)

			r := setupRouter(http.MethodPut, "/user/:id/role", h.SetRole)

			w := doJSON(r, http.MethodPut, "/user/123/role", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}
