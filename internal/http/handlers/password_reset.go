package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mosegray/recordvault/internal/config"
	"github.com/mosegray/recordvault/internal/notifications"
	"github.com/mosegray/recordvault/internal/observability"
	"github.com/mosegray/recordvault/internal/otp"
	"github.com/mosegray/recordvault/internal/repo/postgres"
	"github.com/mosegray/recordvault/internal/security"
)

type PasswordWriter interface {
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

type OTPStore interface {
	Issue(ctx context.Context, email string) (string, error)
	Verify(ctx context.Context, email, code string) error
}

type PasswordResetHandler struct {
	users    UserReader
	writer   PasswordWriter
	codes    OTPStore
	notifier notifications.Notifier
	prom     *observability.Prom
}

func NewPasswordResetHandler(users UserReader, writer PasswordWriter, codes OTPStore, notifier notifications.Notifier, prom *observability.Prom) *PasswordResetHandler {
	return &PasswordResetHandler{
		users:    users,
		writer:   writer,
		codes:    codes,
		notifier: notifier,
		prom:     prom,
	}
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	OTP         string `json:"otp" binding:"required,len=6"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

// ForgotPassword answers 200 whether or not the email is registered, so the
// endpoint cannot be used to enumerate accounts.
func (h *PasswordResetHandler) ForgotPassword(ctx *gin.Context) {
	var req ForgotPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.users.GetByEmail(cctx, req.Email)

	if err != nil {
		if !errors.Is(err, postgres.ErrUserNotFound) {
			h.prom.ObserveAuth("forgot_password", "error")
			RespondInternal(ctx, "Could not process request")
			return
		}

		h.prom.ObserveAuth("forgot_password", "ok")
		ctx.JSON(http.StatusOK, gin.H{"message": "If the account exists, a reset code has been sent."})
		return
	}

	code, err := h.codes.Issue(cctx, u.Email)

	if err != nil {
		h.prom.ObserveAuth("forgot_password", "error")
		RespondInternal(ctx, "Could not process request")
		return
	}

	err = h.notifier.SendPasswordResetCode(cctx, notifications.SendPasswordResetCodeInput{
		Email:    u.Email,
		Username: u.Username,
		Code:     code,
	})

	if err != nil {
		slog.Default().ErrorContext(ctx.Request.Context(), "password_reset.delivery_failed", "err", err)
		h.prom.ObserveAuth("forgot_password", "error")
		RespondInternal(ctx, "Could not send reset code")
		return
	}

	h.prom.ObserveAuth("forgot_password", "ok")
	ctx.JSON(http.StatusOK, gin.H{"message": "If the account exists, a reset code has been sent."})
}

func (h *PasswordResetHandler) ResetPassword(ctx *gin.Context) {
	var req ResetPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	err := h.codes.Verify(cctx, req.Email, req.OTP)

	if err != nil {
		if errors.Is(err, otp.ErrCodeInvalid) || errors.Is(err, otp.ErrTooManyAttempts) {
			h.prom.ObserveAuth("reset_password", "denied")
			RespondUnAuthorized(ctx, "invalid_otp", "Invalid or expired reset code.")
			return
		}

		h.prom.ObserveAuth("reset_password", "error")
		RespondInternal(ctx, "Could not verify reset code")
		return
	}

	u, err := h.users.GetByEmail(cctx, req.Email)

	if err != nil {
		// code verified but account vanished in between
		h.prom.ObserveAuth("reset_password", "error")
		RespondNotFound(ctx, "User not found")
		return
	}

	hash, err := security.HashPassword(req.NewPassword)

	if err != nil {
		h.prom.ObserveAuth("reset_password", "error")
		RespondInternal(ctx, "Could not reset password")
		return
	}

	if err := h.writer.UpdatePassword(cctx, u.ID, hash); err != nil {
		h.prom.ObserveAuth("reset_password", "error")
		RespondInternal(ctx, "Could not reset password")
		return
	}

	h.prom.ObserveAuth("reset_password", "ok")
	ctx.JSON(http.StatusOK, gin.H{"message": "Password has been reset."})
}
