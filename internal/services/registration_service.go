package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/jmercier/aegis/internal/models"
	"github.com/jmercier/aegis/pkg/auth"
)

const temporaryPasswordLength = 12

// RegistrationInput is the public self-service request payload.
type RegistrationInput struct {
	Email         string
	FirstName     string
	LastName      string
	CompanyName   string
	RequestReason string
}

// RegistrationService runs the request-review-provision workflow for new
// accounts.
type RegistrationService struct {
	registrations RegistrationRepository
	users         UserRepository
	roles         RoleRepository
	email         EmailService
	audit         *AuditService
	logger        *slog.Logger
	clock         Clock
}

func NewRegistrationService(
	registrations RegistrationRepository,
	users UserRepository,
	roles RoleRepository,
	email EmailService,
	audit *AuditService,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		registrations: registrations,
		users:         users,
		roles:         roles,
		email:         email,
		audit:         audit,
		logger:        logger,
		clock:         time.Now,
	}
}

func (s *RegistrationService) SetClock(clock Clock) {
	s.clock = clock
}

// Submit files a new registration request for review.
func (s *RegistrationService) Submit(ctx context.Context, input RegistrationInput, ipAddress, userAgent string) (*models.RegistrationRequest, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || input.FirstName == "" || input.LastName == "" {
		return nil, fmt.Errorf("%w: email, first name and last name are required", models.ErrBadRequest)
	}

	if taken, err := s.users.ExistsByEmail(ctx, email); err != nil {
		return nil, err
	} else if taken {
		return nil, fmt.Errorf("%w: an account with this email already exists", models.ErrConflict)
	}
	if pending, err := s.registrations.ExistsByEmail(ctx, email); err != nil {
		return nil, err
	} else if pending {
		return nil, fmt.Errorf("%w: a request for this email is already pending", models.ErrConflict)
	}

	req, err := s.registrations.Create(ctx, &models.RegistrationRequest{
		Email:         email,
		FirstName:     input.FirstName,
		LastName:      input.LastName,
		CompanyName:   input.CompanyName,
		RequestReason: input.RequestReason,
		Status:        models.RegistrationPending,
		RequestedAt:   s.clock(),
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogSuccess(ctx, email, models.ActionRegistrationSubmitted,
		"registration request submitted", ipAddress, userAgent)
	return req, nil
}

func (s *RegistrationService) Get(ctx context.Context, id string) (*models.RegistrationRequest, error) {
	return s.registrations.GetByID(ctx, id)
}

func (s *RegistrationService) List(ctx context.Context, status string) ([]*models.RegistrationRequest, error) {
	if status == "" {
		return s.registrations.List(ctx)
	}
	return s.registrations.ListByStatus(ctx, status)
}

// Approve provisions an account from a pending request: a username is derived
// from the requester's name and a temporary password is generated that must
// be changed at first login. The credentials go out by email.
func (s *RegistrationService) Approve(ctx context.Context, actor *models.User, id, comment, ipAddress, userAgent string) (*models.User, error) {
	req, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RegistrationPending {
		return nil, fmt.Errorf("%w: request already %s", models.ErrConflict, strings.ToLower(req.Status))
	}

	username, err := s.availableUsername(ctx, req.FirstName, req.LastName)
	if err != nil {
		return nil, err
	}

	tempPassword, err := auth.GenerateTemporaryPassword(temporaryPasswordLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate temporary password: %w", err)
	}
	hash, err := auth.HashPassword(tempPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash temporary password: %w", err)
	}

	userRole, err := s.roles.GetByName(ctx, models.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve default role: %w", err)
	}

	now := s.clock()
	user, err := s.users.Create(ctx, &models.User{
		Username:           username,
		Email:              req.Email,
		PasswordHash:       hash,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Enabled:            true,
		MustChangePassword: true,
		PasswordChangedAt:  &now,
		Roles:              []*models.Role{userRole},
	})
	if err != nil {
		return nil, err
	}

	req.Status = models.RegistrationApproved
	req.ProcessedAt = &now
	req.ProcessedBy = actor.Username
	req.AdminComment = comment
	if _, err := s.registrations.Update(ctx, req); err != nil {
		return nil, err
	}

	if err := s.email.SendWelcomeEmail(ctx, req.Email, username, tempPassword); err != nil {
		s.logger.ErrorContext(ctx, "failed to send welcome email",
			"email", req.Email, "error", err)
	}

	s.audit.LogSuccess(ctx, actor.Username, models.ActionRegistrationApproved,
		fmt.Sprintf("approved registration for %s as %s", req.Email, username), ipAddress, userAgent)
	return user, nil
}

// Reject closes a pending request without provisioning anything.
func (s *RegistrationService) Reject(ctx context.Context, actor *models.User, id, comment, ipAddress, userAgent string) error {
	req, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != models.RegistrationPending {
		return fmt.Errorf("%w: request already %s", models.ErrConflict, strings.ToLower(req.Status))
	}

	now := s.clock()
	req.Status = models.RegistrationRejected
	req.ProcessedAt = &now
	req.ProcessedBy = actor.Username
	req.AdminComment = comment
	if _, err := s.registrations.Update(ctx, req); err != nil {
		return err
	}

	if err := s.email.SendRejectionEmail(ctx, req.Email, comment); err != nil {
		s.logger.ErrorContext(ctx, "failed to send rejection email",
			"email", req.Email, "error", err)
	}

	s.audit.LogSuccess(ctx, actor.Username, models.ActionRegistrationRejected,
		fmt.Sprintf("rejected registration for %s", req.Email), ipAddress, userAgent)
	return nil
}

// availableUsername derives first-initial+lastname, appending a counter until
// it is free.
func (s *RegistrationService) availableUsername(ctx context.Context, firstName, lastName string) (string, error) {
	initial := ""
	if runes := []rune(firstName); len(runes) > 0 {
		initial = string(runes[0])
	}
	base := normalizeNamePart(initial) + normalizeNamePart(lastName)
	if base == "" {
		base = "user"
	}

	candidate := base
	for i := 1; ; i++ {
		taken, err := s.users.ExistsByUsername(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}

func normalizeNamePart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
