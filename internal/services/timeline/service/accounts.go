package service

import (
	"context"
	"errors"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/identity"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
)

// DefaultSearchLimit caps user search results.
const DefaultSearchLimit = 20

var errUnknownTokenUser = apperrors.New(apperrors.CodeTokenVerificationFailed, "token user does not exist")

// Session is a signed bearer token with the user it was issued to.
type Session struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// SocialProfile is the identity returned by an external login provider.
type SocialProfile struct {
	Provider string
	Subject  string
	Email    string
	Name     domain.Name
}

// Register creates an inactive account and logs its confirmation key.
func (s *Service) Register(ctx context.Context, email string) (user domain.User, err error) {
	ctx, span := s.startSpan(ctx, "Register")
	defer func() { endSpan(span, err) }()

	key, err := s.newID()
	if err != nil {
		return domain.User{}, err
	}
	user, err = domain.NewRegistration(email, key, s.now, s.newID)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.store.PutUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.User{}, domain.ErrEmailAlreadyRegistered
		}
		return domain.User{}, storeErr(err, nil)
	}
	s.logger.WithField("user_id", user.ID).
		WithField("confirm_path", "/api/auth/confirm/"+key).
		Info("registration awaiting confirmation")
	return user, nil
}

// GetRegistration returns the pending registration for key.
func (s *Service) GetRegistration(ctx context.Context, key string) (domain.User, error) {
	if key == "" {
		return domain.User{}, domain.ErrConfirmationKeyMissing
	}
	user, err := s.store.GetUserByConfirmationKey(ctx, key)
	if err != nil {
		return domain.User{}, storeErr(err, domain.ErrConfirmationKeyMissing)
	}
	if user.Activated || s.registrationExpired(user) {
		return domain.User{}, domain.ErrConfirmationKeyMissing
	}
	return user, nil
}

// Confirm activates the registration for key and signs the user in.
func (s *Service) Confirm(ctx context.Context, key, password string, name domain.Name) (session Session, err error) {
	ctx, span := s.startSpan(ctx, "Confirm")
	defer func() { endSpan(span, err) }()

	user, err := s.GetRegistration(ctx, key)
	if err != nil {
		return Session{}, err
	}
	if err := domain.ValidatePassword(password); err != nil {
		return Session{}, err
	}
	hash, err := identity.HashPassword(password)
	if err != nil {
		return Session{}, err
	}
	user = user.Confirm(hash, name, s.now)
	now := domain.Stamp(s.now())
	user.LastLogin = &now
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return Session{}, storeErr(err, domain.ErrConfirmationKeyMissing)
	}
	return s.session(user)
}

// Login checks an email and password pair.
func (s *Service) Login(ctx context.Context, email, password string) (session Session, err error) {
	ctx, span := s.startSpan(ctx, "Login")
	defer func() { endSpan(span, err) }()

	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return Session{}, domain.ErrAuthenticationFailed
	}
	user, err := s.store.GetUserByEmail(ctx, normalized)
	if err != nil {
		return Session{}, storeErr(err, domain.ErrAuthenticationFailed)
	}
	if !user.Activated {
		return Session{}, domain.ErrUserNotActivated
	}
	ok, err := identity.CheckPassword(user.PasswordHash, password)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, domain.ErrAuthenticationFailed
	}
	return s.touchLogin(ctx, user)
}

// SocialLogin finds or creates the user behind an external identity.
func (s *Service) SocialLogin(ctx context.Context, profile SocialProfile) (session Session, err error) {
	ctx, span := s.startSpan(ctx, "SocialLogin")
	defer func() { endSpan(span, err) }()

	linked, err := s.store.GetSocialIdentity(ctx, profile.Provider, profile.Subject)
	switch {
	case err == nil:
		user, err := s.store.GetUser(ctx, linked.UserID)
		if err != nil {
			return Session{}, storeErr(err, domain.ErrAuthenticationFailed)
		}
		return s.touchLogin(ctx, user)
	case !errors.Is(err, storage.ErrNotFound):
		return Session{}, storeErr(err, nil)
	}

	normalized, err := domain.NormalizeEmail(profile.Email)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByEmail(ctx, normalized)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		user, err = domain.NewSocialUser(normalized, profile.Name, s.now, s.newID)
		if err != nil {
			return Session{}, err
		}
		if err := s.store.PutUser(ctx, user); err != nil {
			return Session{}, storeErr(err, nil)
		}
	case err != nil:
		return Session{}, storeErr(err, nil)
	case !user.Activated:
		user = user.Confirm(user.PasswordHash, profile.Name, s.now)
		if err := s.store.UpdateUser(ctx, user); err != nil {
			return Session{}, storeErr(err, nil)
		}
	}
	if err := s.store.PutSocialIdentity(ctx, domain.SocialIdentity{
		Provider:  profile.Provider,
		Subject:   profile.Subject,
		UserID:    user.ID,
		CreatedAt: domain.Stamp(s.now()),
	}); err != nil && !errors.Is(err, storage.ErrConflict) {
		return Session{}, storeErr(err, nil)
	}
	return s.touchLogin(ctx, user)
}

// Authenticate resolves a bearer token to an activated user.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.User, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		return domain.User{}, storeErr(err, errUnknownTokenUser)
	}
	if !user.Activated {
		return domain.User{}, domain.ErrUserNotActivated
	}
	return user, nil
}

// Me returns the caller's account.
func (s *Service) Me(ctx context.Context, actorID string) (domain.User, error) {
	user, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		return domain.User{}, storeErr(err, domain.ErrUserNotFound)
	}
	return user, nil
}

// ListUsers lists every account. Admin only.
func (s *Service) ListUsers(ctx context.Context, actorID string) ([]domain.User, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, storeErr(err, nil)
	}
	return users, nil
}

// SearchUsers finds activated users by email or name, for invites.
func (s *Service) SearchUsers(ctx context.Context, term string, limit int) ([]domain.UserSummary, error) {
	term = domain.FoldSearch(term)
	if term == "" {
		return []domain.UserSummary{}, nil
	}
	if limit <= 0 || limit > DefaultSearchLimit {
		limit = DefaultSearchLimit
	}
	users, err := s.store.SearchUsers(ctx, term, limit)
	if err != nil {
		return nil, storeErr(err, nil)
	}
	out := make([]domain.UserSummary, 0, len(users))
	for _, user := range users {
		out = append(out, user.Summary())
	}
	return out, nil
}

// SetAdmin grants or revokes admin rights. Admins can not revoke their own.
func (s *Service) SetAdmin(ctx context.Context, actorID, targetID string, admin bool) (domain.User, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return domain.User{}, err
	}
	if actorID == targetID && !admin {
		return domain.User{}, domain.ErrCannotRemoveOwnAdmin
	}
	target, err := s.store.GetUser(ctx, targetID)
	if err != nil {
		return domain.User{}, storeErr(err, domain.ErrUserNotFound)
	}
	return s.setAdmin(ctx, target, admin)
}

// GrantAdminByEmail promotes an account without an acting admin. Used by
// the command line to bootstrap the first admin.
func (s *Service) GrantAdminByEmail(ctx context.Context, email string) (domain.User, error) {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return domain.User{}, err
	}
	target, err := s.store.GetUserByEmail(ctx, normalized)
	if err != nil {
		return domain.User{}, storeErr(err, domain.ErrUserNotFound)
	}
	return s.setAdmin(ctx, target, true)
}

func (s *Service) setAdmin(ctx context.Context, target domain.User, admin bool) (domain.User, error) {
	switch {
	case admin && target.Admin:
		return domain.User{}, domain.ErrAlreadyAdmin
	case !admin && !target.Admin:
		return domain.User{}, domain.ErrNotAdmin
	}
	target.Admin = admin
	target.UpdatedAt = domain.Stamp(s.now())
	if err := s.store.UpdateUser(ctx, target); err != nil {
		return domain.User{}, storeErr(err, domain.ErrUserNotFound)
	}
	return target, nil
}

// PurgeUnconfirmed deletes registrations older than the confirmation TTL.
func (s *Service) PurgeUnconfirmed(ctx context.Context) (int64, error) {
	removed, err := s.store.DeleteUnconfirmedUsers(ctx, domain.Stamp(s.now()).Add(-s.confirmationTTL))
	if err != nil {
		return 0, storeErr(err, nil)
	}
	return removed, nil
}

func (s *Service) requireAdmin(ctx context.Context, actorID string) error {
	user, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		return storeErr(err, domain.ErrUserNotAdmin)
	}
	if !user.Admin {
		return domain.ErrUserNotAdmin
	}
	return nil
}

func (s *Service) registrationExpired(user domain.User) bool {
	if user.ConfirmationCreatedAt == nil {
		return true
	}
	return s.now().After(user.ConfirmationCreatedAt.Add(s.confirmationTTL))
}

func (s *Service) touchLogin(ctx context.Context, user domain.User) (Session, error) {
	now := domain.Stamp(s.now())
	user.LastLogin = &now
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return Session{}, storeErr(err, domain.ErrAuthenticationFailed)
	}
	return s.session(user)
}

func (s *Service) session(user domain.User) (Session, error) {
	token, err := s.tokens.Sign(user.ID, user.Admin)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user}, nil
}

