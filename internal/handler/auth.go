package handler

import (
	"context"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/angelshop/reservation-api/internal/config"
	"github.com/angelshop/reservation-api/internal/queue"
	"github.com/angelshop/reservation-api/internal/repository"
	"github.com/angelshop/reservation-api/internal/utils"
)

const maxOtpAttempts = 5

// AuthHandler bundles dependencies for the OTP and admin login endpoints.
// Mailer is optional; when nil, issued codes are written to the server
// log instead (useful in development without a broker).
type AuthHandler struct {
	Cfg    config.Config
	Otps   *repository.OtpRepo
	Admins *repository.AdminUserRepo
	Mailer *queue.Publisher
	Log    zerolog.Logger
}

func NewAuthHandler(cfg config.Config, otps *repository.OtpRepo, admins *repository.AdminUserRepo, mailer *queue.Publisher, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Otps: otps, Admins: admins, Mailer: mailer, Log: log}
}

// ----- DTOs -----

type otpRequestReq struct {
	Email string `json:"email"`
}
type otpVerifyReq struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}
type adminLoginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type sessionResp struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
	Email   string    `json:"email"`
	Role    string    `json:"role"`
}

// RequestOtp issues a one-time login code for a customer email. The
// response is identical whether or not the mail could be delivered, so
// the endpoint cannot be used to probe for registered addresses.
func (h *AuthHandler) RequestOtp(c echo.Context) error {
	var req otpRequestReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	email, ok := normalizeEmail(req.Email)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid email required"})
	}

	code, err := utils.NewOtpDigits()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue code"})
	}
	hash, err := utils.HashSecret(code, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue code"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Otps.Replace(ctx, email, hash, time.Now().UTC().Add(h.Cfg.OtpTTL)); err != nil {
		h.Log.Error().Err(err).Msg("store otp failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue code"})
	}

	if h.Mailer != nil {
		// Failures are logged inside the publisher; the code stays valid
		// and the customer can request a resend.
		_ = h.Mailer.NotifyOtp(ctx, email, code, h.Cfg.OtpTTL)
	} else {
		h.Log.Info().Str("email", email).Str("code", code).Msg("otp issued (no mailer configured)")
	}

	return c.JSON(http.StatusAccepted, echo.Map{"message": "code sent if the address is valid"})
}

// VerifyOtp exchanges a valid code for a customer session token. After
// maxOtpAttempts wrong guesses the code is invalidated.
func (h *AuthHandler) VerifyOtp(c echo.Context) error {
	var req otpVerifyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	email, ok := normalizeEmail(req.Email)
	code := strings.TrimSpace(req.Code)
	if !ok || code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and code required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	otp, err := h.Otps.Find(ctx, email)
	if err != nil {
		if repository.IsNoRows(err) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired code"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "verification failed"})
	}
	if time.Now().UTC().After(otp.ExpiresAt) || otp.Attempts >= maxOtpAttempts {
		_ = h.Otps.Consume(ctx, email)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired code"})
	}
	if !utils.VerifySecret(otp.CodeHash, code) {
		_ = h.Otps.RecordFailure(ctx, otp.ID)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired code"})
	}
	if err := h.Otps.Consume(ctx, email); err != nil {
		h.Log.Error().Err(err).Msg("consume otp failed")
	}

	tok, err := utils.NewSessionToken(h.Cfg.JWTOtpSecret, email, utils.RoleCustomer, h.Cfg.SessionTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue session"})
	}
	return c.JSON(http.StatusOK, sessionResp{Token: tok.Token, Expires: tok.Exp, Email: email, Role: utils.RoleCustomer})
}

// AdminLogin authenticates a staff account against its bcrypt password
// hash and returns an admin session token.
func (h *AuthHandler) AdminLogin(c echo.Context) error {
	var req adminLoginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	email, ok := normalizeEmail(req.Email)
	if !ok || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	admin, err := h.Admins.FindByEmail(ctx, email)
	if err != nil {
		if repository.IsNoRows(err) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	if !utils.VerifySecret(admin.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	tok, err := utils.NewSessionToken(h.Cfg.JWTAdminSecret, email, utils.RoleAdmin, h.Cfg.SessionTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue session"})
	}
	return c.JSON(http.StatusOK, sessionResp{Token: tok.Token, Expires: tok.Exp, Email: email, Role: utils.RoleAdmin})
}

func normalizeEmail(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return "", false
	}
	return s, true
}
