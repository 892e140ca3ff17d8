package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/access-control-api/internal/middleware"
	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/service"
)

const requestTimeout = 5 * time.Second

// AuthHandler serves the /api/auth endpoints.
type AuthHandler struct {
	Provisioning    *service.Provisioning
	Accounts        *service.Accounts
	Sessions        *service.Sessions
	Reset           *service.PasswordReset
	Authz           *service.Authorizer
	ExposeResetCode bool
}

// ----- DTOs -----

type loginReq struct {
	Login       string `json:"login" validate:"required_without_all=Email PhoneNumber,max=255"`
	Email       string `json:"email" validate:"omitempty,max=255"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,max=20"`
	Password    string `json:"password" validate:"required,max=100"`
}

func (r loginReq) identifier() string {
	for _, v := range []string{r.Login, r.Email, r.PhoneNumber} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

type signupReq struct {
	FirstName       string `json:"firstName" validate:"required,max=100"`
	LastName        string `json:"lastName" validate:"required,max=100"`
	Email           string `json:"email" validate:"omitempty,email,max=255"`
	PhoneNumber     string `json:"phoneNumber" validate:"omitempty,max=20"`
	Password        string `json:"password" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

type externalLoginReq struct {
	Email         string `json:"email" validate:"required,email,max=255"`
	EmailVerified bool   `json:"emailVerified"`
	FirstName     string `json:"firstName" validate:"max=100"`
	LastName      string `json:"lastName" validate:"max=100"`
	DisplayName   string `json:"name" validate:"max=200"`
	Picture       string `json:"picture" validate:"omitempty,url,max=500"`
	ProviderID    string `json:"providerId" validate:"max=255"`
}

type emailReq struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

type verifyCodeReq struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type resetPasswordReq struct {
	Email           string `json:"email" validate:"required,email,max=255"`
	Code            string `json:"code" validate:"required,len=6,numeric"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// ----- handlers -----

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	s, err := h.Accounts.Login(ctx, req.identifier(), req.Password)
	if err != nil {
		return err
	}
	return ok(c, "login successful", toSession(s))
}

func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	s, err := h.Provisioning.Signup(ctx, service.SignupInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
	})
	if err != nil {
		return err
	}
	return created(c, "signup successful", toSession(s))
}

// ExternalLogin signs in an identity already verified by an external
// provider. The token exchange with the provider is not done here.
func (h *AuthHandler) ExternalLogin(c echo.Context) error {
	var req externalLoginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	s, err := h.Provisioning.SignupExternal(ctx, service.ExternalIdentity{
		Email:         req.Email,
		EmailVerified: req.EmailVerified,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		DisplayName:   req.DisplayName,
		PictureURL:    req.Picture,
		ProviderID:    req.ProviderID,
	})
	if err != nil {
		return err
	}
	return ok(c, "login successful", toSession(s))
}

const forgotPasswordMessage = "if the email is registered, a reset code has been sent"

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	t, err := h.Reset.Request(ctx, req.Email)
	if err != nil {
		return err
	}
	if h.ExposeResetCode && t != nil {
		return ok(c, forgotPasswordMessage, echo.Map{"code": t.Token, "expiresAt": t.ExpiresAt})
	}
	return ok(c, forgotPasswordMessage, nil)
}

func (h *AuthHandler) VerifyCode(c echo.Context) error {
	var req verifyCodeReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	valid, err := h.Reset.VerifyCode(ctx, req.Email, req.Code)
	if err != nil {
		return err
	}
	if !valid {
		return &service.Error{Kind: service.KindValidation, Message: "invalid or expired code", Fields: []string{"code"}}
	}
	return ok(c, "code verified", echo.Map{"valid": true})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Reset.Complete(ctx, req.Email, req.Code, req.NewPassword); err != nil {
		return err
	}
	return ok(c, "password has been reset", nil)
}

func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	s, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return err
	}
	return ok(c, "token refreshed", toSession(s))
}

// Logout revokes the caller's refresh tokens. Issued session tokens stay
// valid until they expire.
func (h *AuthHandler) Logout(c echo.Context) error {
	p := principal(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Sessions.RevokeAll(ctx, p.UserID); err != nil {
		return err
	}
	return ok(c, "logged out", nil)
}

func (h *AuthHandler) Me(c echo.Context) error {
	p := principal(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Accounts.Get(ctx, p.UserID)
	if err != nil {
		return err
	}
	return ok(c, "current user", toUser(u))
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := bind(c, &req); err != nil {
		return err
	}
	p := principal(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Accounts.ChangePassword(ctx, p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return ok(c, "password changed", nil)
}

// RoleCheck answers whether the caller currently holds the role named in
// the query. The answer comes from stored state, not from the token.
func (h *AuthHandler) RoleCheck(c echo.Context) error {
	role := c.QueryParam("role")
	if strings.TrimSpace(role) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "role query parameter is required")
	}
	p := principal(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	has, err := h.Authz.HasRole(ctx, p.UserID, role)
	if err != nil {
		return err
	}
	return ok(c, "role check", echo.Map{"hasRole": has, "role": role})
}

// principal returns the caller set by JWTAuth. Routes using it are always
// behind that middleware.
func principal(c echo.Context) model.Principal {
	p, _ := middleware.PrincipalFrom(c)
	return p
}
