package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/cache"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/config"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/domain/user"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/http/middlewares"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UserStore interface {
	List(ctx context.Context) ([]user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, u user.User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Update(ctx context.Context, id string, req user.UpdateUserRequest) (user.User, error)
	SetRole(ctx context.Context, id, role string) (user.User, error)
	Delete(ctx context.Context, id string) (user.User, error)
}

type TokenIssuer interface {
	GenerateToken(userID, role string) (string, time.Time, error)
	TokenTTL() time.Duration
}

type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

type UsersHandler struct {
	store      UserStore
	jwt        TokenIssuer
	revoker    TokenRevoker
	listCache  *cache.UserList
	cookieName string
}

func NewUsersHandler(store UserStore, jwt TokenIssuer, revoker TokenRevoker, listCache *cache.UserList, cookieName string) *UsersHandler {
	return &UsersHandler{
		store:      store,
		jwt:        jwt,
		revoker:    revoker,
		listCache:  listCache,
		cookieName: cookieName,
	}
}

// ListUsers returns every account, newest first. The password hash is
// stripped by the Public projection.
func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	users, ok := h.listCache.Get()

	if !ok {
		cctx, cancel := config.WithTimeout(3 * time.Second)
		defer cancel()

		var err error
		users, err = h.store.List(cctx)

		if err != nil {
			RespondServerError(ctx, err)
			return
		}

		h.listCache.Set(users)
	}

	publics := make([]user.Public, 0, len(users))

	for _, u := range users {
		publics = append(publics, u.Public())
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Successfully retrieved a list of users: ",
		"users":   publics,
	})
}

func (h *UsersHandler) GetUser(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.store.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondServerError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, u.Public())
}

// Me resolves the authenticated caller's own profile.
func (h *UsersHandler) Me(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok || id == "" {
		RespondMessage(ctx, http.StatusUnauthorized, "Not authenticated")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.store.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondServerError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, u.Public())
}

// CreateUser registers an account. The email/username probes are a
// fast path for a friendly 400; under a concurrent duplicate create the
// unique index rejects the insert and that surfaces as a store error.
func (h *UsersHandler) CreateUser(ctx *gin.Context) {
	var req user.CreateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	// email checked before username: clients depend on the order
	emailTaken, err := h.store.ExistsByEmail(cctx, email)

	if err != nil {
		RespondServerError(ctx, err)
		return
	}

	if emailTaken {
		RespondText(ctx, http.StatusBadRequest, "Email already registered")
		return
	}

	usernameTaken, err := h.store.ExistsByUsername(cctx, req.Username)

	if err != nil {
		RespondServerError(ctx, err)
		return
	}

	if usernameTaken {
		RespondText(ctx, http.StatusBadRequest, "Username already registered")
		return
	}

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondServerError(ctx, err)
		return
	}

	role := req.Role

	if role == "" {
		role = user.RoleEmployee
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Username:     req.Username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		LastLogin:    &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = h.store.Create(cctx, u)

	if err != nil {
		RespondServerError(ctx, err)
		return
	}

	h.listCache.Invalidate()

	token, _, err := h.jwt.GenerateToken(u.ID, u.Role)

	if err != nil {
		RespondServerError(ctx, err)
		return
	}

	h.setAuthCookie(ctx, token)

	ctx.JSON(http.StatusCreated, gin.H{
		"message":   fmt.Sprintf("Successfully created a user with role: %s", u.Role),
		"name":      u.Name,
		"username":  u.Username,
		"email":     u.Email,
		"role":      u.Role,
		"lastLogin": u.LastLogin,
	})
}

func (h *UsersHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.store.GetByUsername(cctx, req.Username)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondText(ctx, http.StatusUnauthorized, "User does not exist")
			return
		}

		RespondServerError(ctx, err)
		return
	}

	err = security.CheckPassword(u.PasswordHash, req.Password)

	if err != nil {
		RespondText(ctx, http.StatusUnauthorized, "Invalid Credentials")
		return
	}

	now := time.Now().UTC()

	err = h.store.UpdateLastLogin(cctx, u.ID, now)

	if err != nil {
		RespondServerError(ctx, err)
		return
	}

	h.listCache.Invalidate()

	token, _, err := h.jwt.GenerateToken(u.ID, u.Role)

	if err != nil {
		RespondServerError(ctx, err)
		return
	}

	h.setAuthCookie(ctx, token)

	ctx.JSON(http.StatusOK, gin.H{
		"message":   "Login successful",
		"name":      u.Name,
		"lastLogin": now,
		"role":      u.Role,
	})
}

// Logout clears the auth cookie and denylists the token id so the
// credential dies now instead of at natural expiry.
func (h *UsersHandler) Logout(ctx *gin.Context) {
	if jti, ok := middlewares.JTIFromContext(ctx); ok && jti != "" && h.revoker != nil {
		cctx, cancel := config.WithTimeout(2 * time.Second)

		// best effort: the cookie is cleared either way
		_ = h.revoker.Revoke(cctx, jti, h.jwt.TokenTTL())

		cancel()
	}

	h.clearAuthCookie(ctx)

	RespondMessage(ctx, http.StatusOK, "Logged out successfully")
}

func (h *UsersHandler) ChangePassword(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok || id == "" {
		RespondMessage(ctx, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req user.ChangePasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.store.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondServerError(ctx, err)
		return
	}

	err = security.CheckPassword(u.PasswordHash, req.CurrentPassword)

	if err != nil {
		RespondText(ctx, http.StatusUnauthorized, "Invalid Credentials")
		return
	}

	hash, err := security.HashPassword(req.NewPassword)

	if err != nil {
		RespondServerError(ctx, err)
		return
	}

	err = h.store.UpdatePassword(cctx, id, hash)

	if err != nil {
		RespondServerError(ctx, err)
		return
	}

	RespondMessage(ctx, http.StatusOK, "Password updated successfully")
}

// UpdateUser applies a partial update. Write-time schema violations
// (bad role, duplicate email) come back as the generic store error;
// only request-shape problems get the 422 treatment.
func (h *UsersHandler) UpdateUser(ctx *gin.Context) {
	id := ctx.Param("id")

	var req user.UpdateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.store.Update(cctx, id, req)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondServerError(ctx, err)
		return
	}

	h.listCache.Invalidate()

	ctx.JSON(http.StatusOK, gin.H{
		"message": "User updated successfully",
		"user":    u.Public(),
	})
}

// DeleteUser hard-deletes an account. The existence and non-admin
// checks run as explicit preconditions here rather than hiding a store
// lookup inside validation plumbing.
func (h *UsersHandler) DeleteUser(ctx *gin.Context) {
	id := ctx.Param("id")

	if id == "" {
		RespondMessage(ctx, http.StatusBadRequest, "User ID is required")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	existing, err := h.store.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondServerError(ctx, err)
		return
	}

	if existing.Role == user.RoleAdmin {
		RespondMessage(ctx, http.StatusForbidden, "Cannot delete admin user")
		return
	}

	deleted, err := h.store.Delete(cctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondServerError(ctx, err)
		return
	}

	h.listCache.Invalidate()

	ctx.JSON(http.StatusOK, gin.H{
		"message": "User deleted successfully",
		"user":    deleted.Public(),
	})
}

// SetRole is admin-only; the RBAC middleware enforces that before this
// handler runs.
func (h *UsersHandler) SetRole(ctx *gin.Context) {
	id := ctx.Param("id")

	var req user.SetRoleRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.store.SetRole(cctx, id, req.Role)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondServerError(ctx, err)
		return
	}

	h.listCache.Invalidate()

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Role updated successfully",
		"user":    u.Public(),
	})
}

// Cookie discipline: httpOnly, path=/, secure, SameSite=None; always
// clear-then-set so login/create rotates instead of refreshing in place.

func (h *UsersHandler) setAuthCookie(ctx *gin.Context, raw string) {
	ctx.SetSameSite(http.SameSiteNoneMode)

	h.clearAuthCookie(ctx)

	maxAge := int(h.jwt.TokenTTL().Seconds())

	ctx.SetCookie(
		h.cookieName,
		raw,
		maxAge,
		"/",
		"",
		true, // Secure
		true, // HttpOnly
	)
}

func (h *UsersHandler) clearAuthCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteNoneMode)
	ctx.SetCookie(
		h.cookieName,
		"",
		-1,
		"/",
		"",
		true,
		true,
	)
}
