package handlers

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/orstracker/apiserver/internal/mail"
	"github.com/orstracker/apiserver/internal/services"
	"github.com/orstracker/apiserver/internal/store"
	"github.com/orstracker/apiserver/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
	resetTokenTTL   = 15 * time.Minute

	bcryptCost = 10

	resetPurpose = "password-reset"

	// Returned whether or not the account exists, so the endpoint cannot
	// be used to enumerate registered emails.
	forgotPasswordMessage = "If that email exists, a password reset code has been sent!"
)

// AuthHandler provides registration, login and password-reset endpoints.
type AuthHandler struct {
	userService   *services.UserService
	mailer        mail.Mailer
	accessSecret  []byte
	refreshSecret []byte
	frontendURL   string
	validate      *validator.Validate
	log           *zap.SugaredLogger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, mailer mail.Mailer, accessSecret, refreshSecret, frontendURL string, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{
		userService:   userService,
		mailer:        mailer,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		frontendURL:   strings.TrimRight(frontendURL, "/"),
		validate:      validator.New(),
		log:           log,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/refresh", handler.Refresh)
	r.Post("/forgot-password", handler.ForgotPassword)
	r.Post("/verify-otp", handler.VerifyOtp)
	r.Post("/reset-password", handler.ResetPassword)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
}

// AccessClaims are carried by the short-lived access token.
type AccessClaims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by the long-lived refresh token.
type RefreshClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// ResetClaims are carried by the signed reset token issued after OTP
// verification. Purpose keeps it from doubling as an access token.
type ResetClaims struct {
	UserID  string `json:"userId"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// RequireAuth enforces access-token authentication and injects the
// subject into the request context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		claims, err := parseAccessClaims(tokenString, h.accessSecret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), contextSubjectKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth injects the subject when a valid bearer token is present
// and otherwise passes the request through untouched.
func (h *AuthHandler) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenString, err := bearerToken(r); err == nil {
			if claims, err := parseAccessClaims(tokenString, h.accessSecret); err == nil {
				ctx := context.WithValue(r.Context(), contextSubjectKey, claims.UserID)
				r = r.WithContext(ctx)
			}
		}
		next.ServeHTTP(w, r)
	})
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required"`
}

type VerifyOtpRequest struct {
	Email string `json:"email" validate:"required"`
	Otp   string `json:"otp" validate:"required"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// Register creates a new user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Username, email and password are required")
		return
	}

	role := req.Role
	if role == "" {
		role = types.RoleViewer
	}
	if !types.ValidRole(role) {
		writeError(w, http.StatusBadRequest, "Invalid role")
		return
	}

	if _, err := h.userService.GetByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "A user with this email already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeServerError(w)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		writeServerError(w)
		return
	}

	user, err := h.userService.Create(r.Context(), types.User{
		Username:     req.Username,
		Email:        req.Email,
		Role:         role,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// The unique indexes cover both username and email; the
			// email case is normally caught by the lookup above.
			writeError(w, http.StatusConflict, "A user with this username or email already exists")
			return
		}
		writeServerError(w)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "User created successfully",
		"data":    user,
	})
}

// Login verifies credentials and issues the access/refresh token pair.
// The failure message never reveals which of the two inputs was wrong.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		writeServerError(w)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	accessToken, err := h.issueAccessToken(user)
	if err != nil {
		writeServerError(w)
		return
	}
	refreshToken, err := h.issueRefreshToken(user)
	if err != nil {
		writeServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Login successful",
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
		"user":         user,
	})
}

// Refresh exchanges a valid refresh token for a new access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	claims := RefreshClaims{}
	if err := parseClaims(req.RefreshToken, h.refreshSecret, &claims); err != nil || claims.UserID == "" {
		writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}

	id, err := objectIDFromHex(claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
			return
		}
		writeServerError(w)
		return
	}

	accessToken, err := h.issueAccessToken(user)
	if err != nil {
		writeServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"accessToken": accessToken,
	})
}

// ForgotPassword starts the reset flow: a one-time code is generated,
// hashed and stored with an expiry, then mailed to the account. The
// response is identical whether or not the account exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"message": forgotPasswordMessage,
			})
			return
		}
		writeServerError(w)
		return
	}

	otp, err := generateOtp()
	if err != nil {
		writeServerError(w)
		return
	}

	otpHash, err := bcrypt.GenerateFromPassword([]byte(otp), bcryptCost)
	if err != nil {
		writeServerError(w)
		return
	}

	expire := time.Now().Add(resetTokenTTL)
	if err := h.userService.SetResetState(r.Context(), user.ID, string(otpHash), expire); err != nil {
		writeServerError(w)
		return
	}

	resetLink := fmt.Sprintf("%s/reset-password?email=%s", h.frontendURL, user.Email)
	subject, text, html := mail.ResetMail(otp, resetLink)
	if err := h.mailer.Send(user.Email, subject, text, html); err != nil {
		if h.log != nil {
			h.log.Errorw("failed to send reset mail", "err", err)
		}
		writeServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": forgotPasswordMessage,
	})
}

// VerifyOtp checks the pending one-time code and, on success, issues the
// signed reset token that authorizes the actual password replacement.
func (h *AuthHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req VerifyOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Email and OTP are required")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "Invalid OTP or email")
			return
		}
		writeServerError(w)
		return
	}

	if user.ResetOtpHash == "" || user.ResetOtpExpire == nil {
		writeError(w, http.StatusBadRequest, "Invalid OTP or email")
		return
	}
	if user.ResetOtpExpire.Before(time.Now()) {
		writeError(w, http.StatusBadRequest, "OTP expired")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.ResetOtpHash), []byte(req.Otp)); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid OTP")
		return
	}

	if err := h.userService.MarkResetVerified(r.Context(), user.ID); err != nil {
		writeServerError(w)
		return
	}

	resetToken, err := h.issueResetToken(user)
	if err != nil {
		writeServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "OTP verified successfully",
		"resetToken": resetToken,
	})
}

// ResetPassword consumes a verified reset token and replaces the
// account's password hash, clearing the reset state.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Token and new password are required")
		return
	}

	claims := ResetClaims{}
	if err := parseClaims(req.Token, h.accessSecret, &claims); err != nil || claims.Purpose != resetPurpose {
		writeError(w, http.StatusBadRequest, "Invalid or expired token")
		return
	}

	id, err := objectIDFromHex(claims.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired token")
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeServerError(w)
		return
	}

	// The token is only issued after OTP verification; a cleared flag
	// means it was already consumed.
	if !user.IsResetOtpVerified {
		writeError(w, http.StatusBadRequest, "Invalid or expired token")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
	if err != nil {
		writeServerError(w)
		return
	}

	if err := h.userService.ReplacePassword(r.Context(), user.ID, string(hashed)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password reset successful!",
	})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		writeServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    user,
	})
}

func (h *AuthHandler) issueAccessToken(user types.User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: user.ID.Hex(),
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.accessSecret)
}

func (h *AuthHandler) issueRefreshToken(user types.User) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		UserID: user.ID.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(refreshTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.refreshSecret)
}

func (h *AuthHandler) issueResetToken(user types.User) (string, error) {
	now := time.Now()
	claims := ResetClaims{
		UserID:  user.ID.Hex(),
		Purpose: resetPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(resetTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.accessSecret)
}

func parseAccessClaims(tokenString string, secret []byte) (AccessClaims, error) {
	claims := AccessClaims{}
	if err := parseClaims(tokenString, secret, &claims); err != nil {
		return AccessClaims{}, err
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return AccessClaims{}, errors.New("missing subject")
	}
	return claims, nil
}

func parseClaims(tokenString string, secret []byte, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

// generateOtp returns a random 6-digit code.
func generateOtp() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
