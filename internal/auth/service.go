package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tazhibayda/learnpath-auth/internal/apperrors"
	"github.com/tazhibayda/learnpath-auth/internal/domain"
	"github.com/tazhibayda/learnpath-auth/internal/helper"
	"github.com/tazhibayda/learnpath-auth/internal/log"
	"github.com/tazhibayda/learnpath-auth/internal/mail"
	"github.com/tazhibayda/learnpath-auth/internal/metrics"
	"github.com/tazhibayda/learnpath-auth/internal/queue"
	"github.com/tazhibayda/learnpath-auth/internal/security"
	"go.uber.org/zap"
)

// UserStore is the credential store the service runs against.
// Implemented by repo.Store (MongoDB) and repo.MemoryStore.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
	ConfirmEmail(ctx context.Context, email, code string) (*domain.User, error)
	SetResetToken(ctx context.Context, id, token string) error
	FindUserByResetToken(ctx context.Context, id, token string) (*domain.User, error)
	ConsumeResetToken(ctx context.Context, id, token, passwordHash string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id string, p domain.ProfileUpdate) (*domain.User, error)
	FindOrCreateGoogleUser(ctx context.Context, u *domain.User) (*domain.User, bool, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) bool
}

type TokenIssuer interface {
	Issue(subject string, ttl time.Duration) (string, error)
	Verify(token string) (*security.Claims, error)
}

type Deps struct {
	Users    UserStore
	Hasher   PasswordHasher
	Sessions TokenIssuer // purpose "session"
	Resets   TokenIssuer // purpose "reset", separate secret
	Mail     mail.Dispatcher
	Events   queue.Publisher
}

type Options struct {
	FrontendURL     string
	SessionTTL      time.Duration
	OAuthSessionTTL time.Duration
	ResetTTL        time.Duration
	EventsExchange  string
}

type Service struct {
	users    UserStore
	hasher   PasswordHasher
	sessions TokenIssuer
	resets   TokenIssuer
	mail     mail.Dispatcher
	events   queue.Publisher
	validate *validator.Validate
	opts     Options
}

func NewService(d Deps, opts Options) *Service {
	if d.Events == nil {
		d.Events = queue.NewNoop()
	}
	opts.FrontendURL = strings.TrimRight(opts.FrontendURL, "/")
	return &Service{
		users:    d.Users,
		hasher:   d.Hasher,
		sessions: d.Sessions,
		resets:   d.Resets,
		mail:     d.Mail,
		events:   d.Events,
		validate: newValidator(),
		opts:     opts,
	}
}

// Session is a signed bearer token together with the account it was issued for.
type Session struct {
	Token string
	User  *domain.User
}

type RegisterInput struct {
	FullName        string `json:"fullName" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ProfileImageURL string `json:"profileImageUrl"`
}

type RegisterResult struct {
	Email       string
	VerifyToken string
}

// Register creates an unverified account and mails it a confirmation code.
// The account is kept if the mail cannot be sent.
func (s *Service) Register(ctx context.Context, in RegisterInput) (res *RegisterResult, err error) {
	defer func() { observe("register", err) }()

	in.FullName = strings.TrimSpace(in.FullName)
	if err := s.check(in); err != nil {
		return nil, err
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	switch _, err := s.users.FindUserByEmail(ctx, in.Email); {
	case err == nil:
		return nil, apperrors.ErrDuplicateEmail
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, apperrors.Downstream(fmt.Errorf("lookup email: %w", err))
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperrors.Downstream(fmt.Errorf("hash password: %w", err))
	}
	code, err := security.NewConfirmationCode()
	if err != nil {
		return nil, apperrors.Downstream(err)
	}
	token, err := security.NewVerificationToken()
	if err != nil {
		return nil, apperrors.Downstream(err)
	}

	u := &domain.User{
		Email:           in.Email,
		PasswordHash:    hash,
		FullName:        in.FullName,
		ProfileImageURL: strings.TrimSpace(in.ProfileImageURL),
		Status:          domain.StatusUnverified,
		Verification:    &domain.Verification{Code: code, Token: token},
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateEmail) {
			return nil, apperrors.ErrDuplicateEmail
		}
		return nil, apperrors.Downstream(fmt.Errorf("create user: %w", err))
	}

	if err := s.mail.SendVerificationCode(ctx, u.Email, u.FullName, code); err != nil {
		log.FromContext(ctx).Error("verification mail failed, account kept",
			zap.String("user_id", u.ID.Hex()), helper.EmailField(u.Email), zap.Error(err))
		return nil, apperrors.Wrap(apperrors.KindDownstream, "failed to send verification email", err)
	}

	s.publish(ctx, queue.KeyUserRegistered, queue.UserRegistered{UserID: u.ID.Hex(), Email: u.Email, Name: u.FullName})
	return &RegisterResult{Email: u.Email, VerifyToken: token}, nil
}

type VerifyInput struct {
	Email string `json:"email" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

// VerifyEmail consumes the confirmation code and signs the user in.
func (s *Service) VerifyEmail(ctx context.Context, in VerifyInput) (sess *Session, err error) {
	defer func() { observe("verify_email", err) }()

	in.Code = strings.TrimSpace(in.Code)
	if err := s.check(in); err != nil {
		return nil, err
	}

	if _, err := s.users.FindUserByEmail(ctx, in.Email); err != nil {
		return nil, s.notFound(err, "user not found")
	}
	u, err := s.users.ConfirmEmail(ctx, in.Email, in.Code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// wrong code, or the code was already used
			return nil, apperrors.New(apperrors.KindInvalidCode, "invalid code")
		}
		return nil, apperrors.Downstream(fmt.Errorf("confirm email: %w", err))
	}

	tok, err := s.sessions.Issue(u.ID.Hex(), s.opts.SessionTTL)
	if err != nil {
		return nil, apperrors.Downstream(fmt.Errorf("issue session: %w", err))
	}
	s.publish(ctx, queue.KeyUserVerified, queue.UserVerified{UserID: u.ID.Hex(), Email: u.Email})
	return &Session{Token: tok, User: u}, nil
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login checks the password first, then the verification gate, so an unverified
// account is only revealed to someone who knows its password.
func (s *Service) Login(ctx context.Context, in LoginInput) (sess *Session, err error) {
	defer func() { observe("login", err) }()

	if err := s.check(in); err != nil {
		return nil, err
	}

	invalid := apperrors.New(apperrors.KindInvalidCredentials, "invalid credentials")
	u, err := s.users.FindUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, invalid
		}
		return nil, apperrors.Downstream(fmt.Errorf("lookup email: %w", err))
	}
	if !u.HasPassword() || !s.hasher.Compare(u.PasswordHash, in.Password) {
		return nil, invalid
	}
	if !u.IsVerified() {
		return nil, apperrors.New(apperrors.KindEmailNotVerified, "please verify your email before logging in")
	}

	tok, err := s.sessions.Issue(u.ID.Hex(), s.opts.SessionTTL)
	if err != nil {
		return nil, apperrors.Downstream(fmt.Errorf("issue session: %w", err))
	}
	s.publish(ctx, queue.KeyUserLoggedIn, queue.UserLoggedIn{UserID: u.ID.Hex(), Email: u.Email, Method: "password"})
	return &Session{Token: tok, User: u}, nil
}

// RequestPasswordReset stores a fresh reset token on the account and mails the link.
// The token stays stored if the mail cannot be sent.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer func() { observe("request_reset", err) }()

	if email == "" {
		return apperrors.Validation("email is required")
	}
	u, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		return s.notFound(err, "user not found")
	}

	id := u.ID.Hex()
	tok, err := s.resets.Issue(id, s.opts.ResetTTL)
	if err != nil {
		return apperrors.Downstream(fmt.Errorf("issue reset token: %w", err))
	}
	if err := s.users.SetResetToken(ctx, id, tok); err != nil {
		return s.notFound(err, "user not found")
	}

	link := fmt.Sprintf("%s/forgotpassword/%s/%s", s.opts.FrontendURL, id, tok)
	if err := s.mail.SendPasswordReset(ctx, u.Email, u.FullName, link, s.opts.ResetTTL); err != nil {
		log.FromContext(ctx).Error("reset mail failed, token kept",
			zap.String("user_id", id), helper.EmailField(u.Email), zap.Error(err))
		return apperrors.Wrap(apperrors.KindDownstream, "failed to send password reset email", err)
	}
	s.publish(ctx, queue.KeyPasswordReset, queue.PasswordReset{UserID: id})
	return nil
}

// CheckResetLink validates an emailed reset link without consuming it.
func (s *Service) CheckResetLink(ctx context.Context, id, token string) (u *domain.User, err error) {
	defer func() { observe("check_reset_link", err) }()
	return s.resolveResetLink(ctx, id, token)
}

// ResetPassword consumes the reset link and sets a new password. Only one of
// several concurrent calls with the same link can succeed.
func (s *Service) ResetPassword(ctx context.Context, id, token, password string) (err error) {
	defer func() { observe("reset_password", err) }()

	if password == "" {
		return apperrors.Validation("password is required")
	}
	if err := checkPassword(password); err != nil {
		return err
	}
	if _, err := s.resolveResetLink(ctx, id, token); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return apperrors.Downstream(fmt.Errorf("hash password: %w", err))
	}
	if _, err := s.users.ConsumeResetToken(ctx, id, token, hash); err != nil {
		return s.notFound(err, "invalid or already used reset link")
	}
	return nil
}

func (s *Service) resolveResetLink(ctx context.Context, id, token string) (*domain.User, error) {
	u, err := s.users.FindUserByResetToken(ctx, id, token)
	if err != nil {
		return nil, s.notFound(err, "invalid reset link")
	}
	claims, err := s.resets.Verify(token)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, apperrors.Wrap(apperrors.KindTokenExpired, "reset link has expired", err)
		}
		return nil, apperrors.Wrap(apperrors.KindInvalidToken, "invalid reset token", err)
	}
	if claims.Subject != id {
		return nil, apperrors.New(apperrors.KindInvalidToken, "invalid reset token")
	}
	return u, nil
}

// GoogleLogin finds or creates the account for a verified Google identity and
// issues a long-lived session. Existing accounts are not modified.
func (s *Service) GoogleLogin(ctx context.Context, p domain.GoogleProfile) (sess *Session, created bool, err error) {
	defer func() { observe("google_login", err) }()

	if strings.TrimSpace(p.Email) == "" {
		return nil, false, apperrors.Validation("google profile has no email")
	}
	name := p.Name
	if name == "" {
		name = strings.SplitN(p.Email, "@", 2)[0]
	}
	u, created, err := s.users.FindOrCreateGoogleUser(ctx, &domain.User{
		Email:           p.Email,
		FullName:        name,
		ProfileImageURL: p.Picture,
		GoogleID:        p.Subject,
	})
	if err != nil {
		return nil, false, apperrors.Downstream(fmt.Errorf("find or create google user: %w", err))
	}

	tok, err := s.sessions.Issue(u.ID.Hex(), s.opts.OAuthSessionTTL)
	if err != nil {
		return nil, false, apperrors.Downstream(fmt.Errorf("issue session: %w", err))
	}
	if created {
		s.publish(ctx, queue.KeyUserRegistered, queue.UserRegistered{UserID: u.ID.Hex(), Email: u.Email, Name: u.FullName})
	}
	s.publish(ctx, queue.KeyUserLoggedIn, queue.UserLoggedIn{UserID: u.ID.Hex(), Email: u.Email, Method: "google"})
	return &Session{Token: tok, User: u}, created, nil
}

// Authenticate resolves a bearer token to its user. Any verification failure
// is reported as InvalidOrExpiredToken.
func (s *Service) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.sessions.Verify(token)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidOrExpiredToken, "invalid or expired token", err)
	}
	u, err := s.users.FindUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.New(apperrors.KindUserNotFound, "user not found")
		}
		return nil, apperrors.Downstream(fmt.Errorf("lookup user: %w", err))
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.users.FindUserByID(ctx, id)
	if err != nil {
		return nil, s.notFound(err, "user not found")
	}
	return u, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id string, p domain.ProfileUpdate) (u *domain.User, err error) {
	defer func() { observe("update_profile", err) }()

	if p.Empty() {
		return nil, apperrors.Validation("nothing to update")
	}
	if p.FullName != nil && strings.TrimSpace(*p.FullName) == "" {
		return nil, apperrors.Validation("name cannot be empty")
	}
	u, err = s.users.UpdateProfile(ctx, id, p)
	if err != nil {
		return nil, s.notFound(err, "user not found")
	}
	return u, nil
}

// notFound maps a store miss to NotFound with msg and anything else to a downstream failure.
func (s *Service) notFound(err error, msg string) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.New(apperrors.KindNotFound, msg)
	}
	return apperrors.Downstream(err)
}

func (s *Service) publish(ctx context.Context, key string, event any) {
	if err := s.events.Publish(ctx, s.opts.EventsExchange, key, event, log.RequestID(ctx)); err != nil {
		log.FromContext(ctx).Warn("publish event failed", zap.String("key", key), zap.Error(err))
	}
}

func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.KindOf(err))
	}
	metrics.AuthOps.WithLabelValues(op, outcome).Inc()
}
