package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mosegray/recordvault/internal/auth"
	"github.com/mosegray/recordvault/internal/config"
	"github.com/mosegray/recordvault/internal/domain/user"
	"github.com/mosegray/recordvault/internal/http/middlewares"
	"github.com/mosegray/recordvault/internal/observability"
	"github.com/mosegray/recordvault/internal/repo/postgres"
	"github.com/mosegray/recordvault/internal/security"
)

type UserReader interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
}

type UserWriter interface {
	Create(ctx context.Context, username, email, passwordHash, role string) (user.User, error)
	UpdateUsername(ctx context.Context, id, username string) (user.User, error)
}

type AuthHandler struct {
	users      UserReader
	userWriter UserWriter
	jwt        *auth.Manager
	prom       *observability.Prom
	cfg        config.Config
}

func NewAuthHandler(users UserReader, userWriter UserWriter, jwtManager *auth.Manager, prom *observability.Prom, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		users:      users,
		userWriter: userWriter,
		jwt:        jwtManager,
		prom:       prom,
		cfg:        cfg,
	}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateUsernameRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		h.prom.ObserveAuth("register", "error")
		RespondInternal(ctx, "Could not create user")
		return
	}

	u, err := h.userWriter.Create(cctx, req.Username, req.Email, hash, user.RoleUser)

	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrEmailTaken):
			h.prom.ObserveAuth("register", "denied")
			RespondConflict(ctx, "email_taken", "Email is already in use.")
		case errors.Is(err, postgres.ErrUsernameTaken):
			h.prom.ObserveAuth("register", "denied")
			RespondConflict(ctx, "username_taken", "Username is already in use.")
		default:
			h.prom.ObserveAuth("register", "error")
			RespondInternal(ctx, "Could not create user")
		}
		return
	}

	h.prom.ObserveAuth("register", "ok")

	h.issueSession(ctx, u, http.StatusCreated)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}
	// short timeout for DB lookup
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		h.prom.ObserveAuth("login", "denied")
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	err = security.CheckPassword(foundUser.PasswordHash, req.Password)

	if err != nil {
		h.prom.ObserveAuth("login", "denied")
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	h.prom.ObserveAuth("login", "ok")

	h.issueSession(ctx, foundUser, http.StatusOK)
}

// Refresh exchanges a valid refresh cookie for a fresh access token. The
// exchange is stateless: signature and expiry are the whole judgment, no
// credential-store lookup and no rotation, so concurrent refreshes from the
// same client simply each succeed.
func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(refreshCookieName)

	if err != nil || raw == "" {
		h.prom.ObserveAuth("refresh", "denied")
		RespondUnAuthorized(ctx, "no_refresh", "Missing refresh token")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)

	if err != nil {
		h.prom.ObserveAuth("refresh", "denied")
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(claims.UserID, claims.Username, claims.Role)

	if err != nil {
		h.prom.ObserveAuth("refresh", "error")
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	h.prom.ObserveAuth("refresh", "ok")

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": accessToken,
	})
}

// Logout clears the refresh cookie. There is no server-side session state to
// tear down; the refresh token stays valid until its own expiry.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	h.clearRefreshCookie(ctx)
	ctx.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	claims, ok := middlewares.ClaimsFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, claims.UserID)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Could not load profile")
		return
	}

	// password hash is json:"-" on the domain type
	ctx.JSON(http.StatusOK, gin.H{"user": u})
}

func (h *AuthHandler) UpdateUsername(ctx *gin.Context) {
	claims, ok := middlewares.ClaimsFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var req UpdateUsernameRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.userWriter.UpdateUsername(cctx, claims.UserID, req.Username)

	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrUserNotFound):
			RespondNotFound(ctx, "User not found")
		case errors.Is(err, postgres.ErrUsernameTaken):
			RespondConflict(ctx, "username_taken", "Username is already in use.")
		default:
			RespondInternal(ctx, "Could not update username")
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": u})
}

// session helpers

const refreshCookieName = "refresh_token"

func (h *AuthHandler) issueSession(ctx *gin.Context, u user.User, status int) {
	accessToken, err := h.jwt.GenerateAccessToken(u.ID, u.Username, u.Role)

	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	refreshToken, err := h.jwt.GenerateRefreshToken(u.ID, u.Username, u.Role)

	if err != nil {
		RespondInternal(ctx, "Could not generate refresh token")
		return
	}

	h.setRefreshCookie(ctx, refreshToken)

	ctx.JSON(status, gin.H{
		"accessToken": accessToken,
	})
}

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string) {
	secure := h.cfg.Env == "prod"

	maxAge := int(h.cfg.RefreshTTL.Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		refreshCookieName,
		raw,
		maxAge,
		"/auth",
		"",
		secure,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	secure := h.cfg.Env == "prod"
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(
		refreshCookieName,
		"",
		-1,
		"/auth",
		"",
		secure,
		true,
	)
}
