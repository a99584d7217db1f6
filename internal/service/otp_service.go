package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/config"
	"github.com/spec-kit/case-service/internal/repository"
	apperrors "github.com/spec-kit/case-service/pkg/util"
)

// OTP purposes gate dependent actions on a verified code.
const (
	PurposeRegistration   = "registration"
	PurposePasswordReset  = "password_reset"
	PurposePasswordChange = "password_change"
)

// CodeSender delivers a one-time code out of band.
type CodeSender interface {
	SendCode(ctx context.Context, email, purpose, code string) error
}

// OTPService issues 6-digit one-time codes, one active per (email, purpose),
// expiring after the configured TTL.
type OTPService struct {
	store  repository.OTPStore
	sender CodeSender
	cfg    config.OTPConfig
}

// NewOTPService constructs the service.
func NewOTPService(store repository.OTPStore, sender CodeSender, cfg config.OTPConfig) *OTPService {
	return &OTPService{store: store, sender: sender, cfg: cfg}
}

// CreateCode generates and stores a fresh code, replacing any active one
// for the same (email, purpose), and delivers it out of band.
func (s *OTPService) CreateCode(ctx context.Context, email, purpose string) error {
	code, err := generateCode()
	if err != nil {
		return apperrors.MapError(err)
	}
	if err := s.store.PutCode(ctx, email, purpose, code, s.cfg.CodeTTL()); err != nil {
		return apperrors.MapError(err)
	}
	if s.sender != nil {
		if err := s.sender.SendCode(ctx, email, purpose, code); err != nil {
			return apperrors.MapError(err)
		}
	}
	return nil
}

// Verify checks the submitted code and, on match, marks the (email, purpose)
// pair verified and consumes the code.
func (s *OTPService) Verify(ctx context.Context, email, code, purpose string) error {
	stored, err := s.store.GetCode(ctx, email, purpose)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return apperrors.NewExpiredOrInvalidCode()
		}
		return apperrors.MapError(err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return apperrors.NewExpiredOrInvalidCode()
	}
	if err := s.store.MarkVerified(ctx, email, purpose, s.cfg.VerifiedTTL()); err != nil {
		return apperrors.MapError(err)
	}
	if err := s.store.DeleteCode(ctx, email, purpose); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// IsVerified reports whether an unexpired verified record exists.
func (s *OTPService) IsVerified(ctx context.Context, email, purpose string) (bool, error) {
	ok, err := s.store.IsVerified(ctx, email, purpose)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	return ok, nil
}

// RequireVerified gates a dependent action on a verified record.
func (s *OTPService) RequireVerified(ctx context.Context, email, purpose string) error {
	ok, err := s.IsVerified(ctx, email, purpose)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewExpiredOrInvalidCode()
	}
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// LoggingCodeSender stands in for real email delivery; codes are logged at
// debug level only.
type LoggingCodeSender struct {
	logger *zap.Logger
	cfg    config.NotificationConfig
}

// NewLoggingCodeSender creates the stub sender.
func NewLoggingCodeSender(logger *zap.Logger, cfg config.NotificationConfig) *LoggingCodeSender {
	return &LoggingCodeSender{logger: logger, cfg: cfg}
}

// SendCode logs the delivery instead of sending mail.
func (s *LoggingCodeSender) SendCode(_ context.Context, email, purpose, code string) error {
	s.logger.Info("sending one-time code",
		zap.String("from", s.cfg.EmailFrom),
		zap.String("to", email),
		zap.String("purpose", purpose))
	s.logger.Debug("one-time code issued", zap.String("code", code))
	return nil
}
