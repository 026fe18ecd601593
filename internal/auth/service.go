package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/swiftdrop/swiftdrop-backend/internal/users"
	pkgauth "github.com/swiftdrop/swiftdrop-backend/pkg/auth"
	"github.com/swiftdrop/swiftdrop-backend/pkg/auth/session"
	"github.com/swiftdrop/swiftdrop-backend/pkg/config"
	"github.com/swiftdrop/swiftdrop-backend/pkg/docstore"
	"github.com/swiftdrop/swiftdrop-backend/pkg/enums"
	pkgerrors "github.com/swiftdrop/swiftdrop-backend/pkg/errors"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
	"github.com/swiftdrop/swiftdrop-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controller.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Session, error)
	Login(ctx context.Context, req LoginRequest) (*Session, error)
	Logout(ctx context.Context, accessID string) error
	SendOTP(ctx context.Context, req SendOTPRequest) error
	VerifyOTP(ctx context.Context, userID string, req VerifyOTPRequest) (*users.User, error)
	UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*users.User, error)
	Profile(ctx context.Context, userID string) (*users.User, error)
}

type service struct {
	accounts    accountsRepository
	profiles    profileRepository
	sessions    sessionRegistry
	otp         *OTPRegistry
	log         *logger.Logger
	appCfg      config.AppConfig
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	seeder      demoSeeder
}

type accountsRepository interface {
	Create(ctx context.Context, email, passwordHash string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	AttachPhone(ctx context.Context, id, phone string) error
}

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
	UpsertProfile(ctx context.Context, id string, fields docstore.Document) (*users.User, error)
	SetPhone(ctx context.Context, id, phone string) (*users.User, error)
}

type sessionRegistry interface {
	Register(ctx context.Context, accessID, userID string) error
	Revoke(ctx context.Context, accessID string) error
}

type demoSeeder interface {
	Ensure(ctx context.Context) error
}

// ServiceParams bundles the dependencies required to build the auth service.
type ServiceParams struct {
	Accounts    accountsRepository
	Profiles    profileRepository
	Sessions    sessionRegistry
	OTP         *OTPRegistry
	Logger      *logger.Logger
	AppConfig   config.AppConfig
	JWTConfig   config.JWTConfig
	PasswordCfg config.PasswordConfig

	// Seeder is optional. When set, the demo dataset is loaded the first
	// time anyone signs up or gets auto-provisioned.
	Seeder demoSeeder
}

// NewService constructs the session lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Accounts == nil {
		return nil, fmt.Errorf("accounts repository is required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile repository is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if params.OTP == nil {
		return nil, fmt.Errorf("otp registry is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		accounts:    params.Accounts,
		profiles:    params.Profiles,
		sessions:    params.Sessions,
		otp:         params.OTP,
		log:         params.Logger,
		appCfg:      params.AppConfig,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordCfg,
		seeder:      params.Seeder,
	}, nil
}

// Register creates the account and a live session in one step. The profile
// row does not exist yet; onboarding writes it through UpdateProfile.
func (s *service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}

	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	} else if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup account")
	}

	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	account, err := s.accounts.Create(ctx, email, hash)
	if err != nil {
		return nil, err
	}
	s.seedDemoData(ctx)
	return s.openSession(ctx, account)
}

// Login restores a session for an existing account. Outside production an
// unseen email provisions a fresh account on the fly, mirroring how the
// emulated backend lets any credentials through during development.
func (s *service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup account")
		}
		if s.appCfg.IsProd() {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		account, err = s.provisionAccount(ctx, email, req.Password)
		if err != nil {
			return nil, err
		}
		return s.openSession(ctx, account)
	}

	valid, err := security.VerifyPassword(req.Password, account.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return s.openSession(ctx, account)
}

// Logout revokes the session marker, invalidating the token ahead of expiry.
func (s *service) Logout(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "no active session")
	}
	if err := s.sessions.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "revoke session")
	}
	return nil
}

// SendOTP issues a verification code for the phone. There is no SMS gateway
// behind the emulator, so the code lands in the development log instead.
func (s *service) SendOTP(ctx context.Context, req SendOTPRequest) error {
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "phone is required")
	}
	code, err := s.otp.Issue(phone)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue otp")
	}
	if !s.appCfg.IsProd() {
		s.log.Info(s.log.WithFields(ctx, map[string]any{"phone": phone, "code": code}), "otp issued")
	}
	return nil
}

// VerifyOTP consumes the code and attaches the phone to the current user.
func (s *service) VerifyOTP(ctx context.Context, userID string, req VerifyOTPRequest) (*users.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "no active session")
	}
	phone := strings.TrimSpace(req.Phone)
	if !s.otp.Verify(phone, strings.TrimSpace(req.Code)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid or expired verification code")
	}
	if err := s.accounts.AttachPhone(ctx, userID, phone); err != nil {
		return nil, err
	}
	// Mirror onto the profile row when onboarding already created one.
	profile, err := s.profiles.SetPhone(ctx, userID, phone)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return profile, nil
}

// UpdateProfile merges the request onto the profile row keyed by the session
// user id, creating the row on first write.
func (s *service) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*users.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "no active session")
	}
	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "no active session")
		}
		return nil, err
	}

	fields := docstore.Document{"email": account.Email}
	if req.FullName != nil {
		fields["full_name"] = strings.TrimSpace(*req.FullName)
	}
	if req.Role != nil {
		role, err := enums.ParseUserRole(*req.Role)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role")
		}
		fields["role"] = role.String()
	}
	if req.Phone != nil {
		fields["phone"] = strings.TrimSpace(*req.Phone)
	}
	if req.StripeAccountID != nil {
		fields["stripe_account_id"] = *req.StripeAccountID
	}
	if req.PushToken != nil {
		fields["push_token"] = *req.PushToken
	}

	return s.profiles.UpsertProfile(ctx, userID, fields)
}

// Profile fetches the row for the session user. A missing row is the
// expected new-user state, not an error, and comes back as a nil profile.
func (s *service) Profile(ctx context.Context, userID string) (*users.User, error) {
	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.log.Debug(s.log.WithUserID(ctx, userID), "no profile yet")
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fetch profile")
	}
	return profile, nil
}

func (s *service) provisionAccount(ctx context.Context, email, password string) (*Account, error) {
	hash, err := security.HashPassword(password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	account, err := s.accounts.Create(ctx, email, hash)
	if err != nil {
		return nil, err
	}
	s.log.Info(s.log.WithUserID(ctx, account.ID), "auto-provisioned account for unseen email")
	s.seedDemoData(ctx)
	return account, nil
}

// seedDemoData is best-effort. A failed seed should never block sign-in.
func (s *service) seedDemoData(ctx context.Context) {
	if s.seeder == nil {
		return
	}
	if err := s.seeder.Ensure(ctx); err != nil {
		s.log.Warn(s.log.WithField(ctx, "error", err.Error()), "demo data seed failed")
	}
}

func (s *service) openSession(ctx context.Context, account *Account) (*Session, error) {
	userID, err := uuid.Parse(account.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse account id")
	}

	profile, err := s.Profile(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	payload := pkgauth.AccessTokenPayload{
		UserID: userID,
		JTI:    session.NewAccessID(),
	}
	if profile != nil {
		payload.Role = profile.Role
		payload.CourierVerified = profile.CourierVerified
	}

	token, err := pkgauth.MintAccessToken(s.jwtCfg, time.Now().UTC(), payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if err := s.sessions.Register(ctx, payload.JTI, account.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "register session")
	}

	return &Session{AccessToken: token, Profile: profile}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
