package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/case-service/internal/api/dto"
	"github.com/spec-kit/case-service/internal/auth"
	"github.com/spec-kit/case-service/internal/service"
	apperrors "github.com/spec-kit/case-service/pkg/util"
)

// UsersHandler manages customer auth endpoints and the OTP gate.
type UsersHandler struct {
	auth *service.AuthService
	otp  *service.OTPService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService, otpService *service.OTPService) *UsersHandler {
	return &UsersHandler{auth: authService, otp: otpService}
}

// RequestCode POST /auth/otp/request.
func (h *UsersHandler) RequestCode(c *fiber.Ctx) error {
	var req dto.RequestCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Purpose == "" {
		return apperrors.NewValidationError("email and purpose required", nil)
	}
	if err := h.otp.CreateCode(c.UserContext(), req.Email, req.Purpose); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"sent": true}})
}

// VerifyCode POST /auth/otp/verify.
func (h *UsersHandler) VerifyCode(c *fiber.Ctx) error {
	var req dto.VerifyCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.otp.Verify(c.UserContext(), req.Email, req.Code, req.Purpose); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"verified": true}})
}

// Register POST /auth/users/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" || req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("name, email, password required", nil)
	}
	_, token, exp, err := h.auth.RegisterUser(c.UserContext(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.AuthResponse{Token: token, ExpiresAt: exp}})
}

// Login POST /auth/users/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	_, token, exp, err := h.auth.LoginUser(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{Token: token, ExpiresAt: exp}})
}

// ResetPassword POST /auth/password/reset.
func (h *UsersHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.NewPassword == "" {
		return apperrors.NewValidationError("email and new_password required", nil)
	}
	if err := h.auth.ResetPassword(c.UserContext(), req.Email, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"reset": true}})
}

// ChangePassword POST /auth/password/change.
func (h *UsersHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	subject := service.AuthSubject{Type: principal.SubjectType, ID: principal.SubjectID()}
	if err := h.auth.ChangePassword(c.UserContext(), subject, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"changed": true}})
}
