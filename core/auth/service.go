package auth

import (
	"context"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/member"
)

var (
	// errors
	ErrInvalidCredentials = errors.New("authentication failed")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrRefreshExpired     = errors.New("refresh has expired")
)

type Service struct {
	repo     Repository
	profiles ProfileProvisioner
	bus      EventBus
	mailSvc  core.EmailService
	validate *validator.Validate
	logger   core.Logger

	appName       string
	signingKey    []byte
	tokenTTL      time.Duration
	refreshWindow time.Duration
	now           func() time.Time
}

func NewService(
	repo Repository,
	profiles ProfileProvisioner,
	bus EventBus,
	mailSvc core.EmailService,
	validate *validator.Validate,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		repo:          repo,
		profiles:      profiles,
		bus:           bus,
		mailSvc:       mailSvc,
		validate:      validate,
		logger:        logger,
		appName:       conf.AppName,
		signingKey:    []byte(conf.SecretKey),
		tokenTTL:      conf.Server.JWTExpirationDelta,
		refreshWindow: conf.Server.JWTRefreshExpirationDelta,
		now:           time.Now,
	}
}

// SignUp creates an identity and provisions its profile.
// A failed profile provisioning is logged and does not fail the sign-up: the user then resolves from metadata.
func (svc *Service) SignUp(ctx context.Context, na member.NewAccount) (member.Identity, error) {
	if err := na.Validate(svc.validate); err != nil {
		return member.Identity{}, err
	}

	cred := Credentials{
		Identity: member.Identity{
			ID:        uuid.NewString(),
			Email:     na.Email,
			CreatedAt: svc.now().UTC(),
			Metadata:  na.Metadata(),
		},
	}
	if err := cred.SetPassword(na.Password); err != nil {
		return member.Identity{}, errors.Wrap(err, "hashing password")
	}

	cred, err := svc.repo.CreateIdentity(ctx, cred)
	if err != nil {
		if errors.Cause(err) == core.ErrConflict {
			return member.Identity{}, member.ErrEmailExists
		}
		return member.Identity{}, errors.Wrap(err, "creating identity")
	}

	if _, err = svc.profiles.CreateProfile(ctx, member.NewProfile(cred.Identity, na.IsAdmin)); err != nil {
		svc.logger.Error("provisioning profile", err, map[string]interface{}{"identity": cred.Identity.ID})
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: na.Name, Address: na.Email}},
		Subject:      "Welcome to " + svc.appName,
		TemplateName: "welcome",
		TemplateData: map[string]interface{}{"Name": na.Name, "Email": na.Email},
	})
	return cred.Identity, nil
}

// SignInWithPassword opens a session and returns its token.
func (svc *Service) SignInWithPassword(ctx context.Context, email, pwd string) (Token, member.Identity, error) {
	cred, err := svc.repo.GetIdentityByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return Token{}, member.Identity{}, ErrInvalidCredentials
		}
		return Token{}, member.Identity{}, errors.Wrap(err, "finding identity by email")
	}
	if err = cred.CheckPassword(pwd); err != nil {
		return Token{}, member.Identity{}, ErrInvalidCredentials
	}

	now := svc.now().UTC()
	sess := Session{
		ID:         uuid.NewString(),
		IdentityID: cred.Identity.ID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(svc.refreshWindow),
	}
	if err = svc.repo.CreateSession(ctx, sess); err != nil {
		return Token{}, member.Identity{}, errors.Wrap(err, "creating session")
	}
	if err = svc.repo.SetLastSignIn(ctx, cred.Identity.ID, now); err != nil {
		svc.logger.Warn("setting last sign-in", err)
	}

	token, err := svc.signClaims(svc.newClaims(cred.Identity.ID, cred.Identity.Email, sess.ID, now))
	if err != nil {
		return Token{}, member.Identity{}, err
	}

	identity := cred.Identity
	svc.publish(ctx, Event{Kind: SignedIn, IdentityID: identity.ID, SessionID: sess.ID, Identity: &identity})
	return token, identity, nil
}

// Verify checks the token and its session, and returns the claims and identity it stands for.
func (svc *Service) Verify(ctx context.Context, raw string) (*Claims, member.Identity, error) {
	claims, err := svc.parseToken(raw)
	if err != nil {
		return nil, member.Identity{}, err
	}

	sess, err := svc.repo.GetSession(ctx, claims.ID)
	if err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return nil, member.Identity{}, ErrInvalidToken
		}
		return nil, member.Identity{}, errors.Wrap(err, "getting session")
	}
	if sess.IdentityID != claims.Subject || !svc.now().Before(sess.ExpiresAt) {
		return nil, member.Identity{}, ErrInvalidToken
	}

	cred, err := svc.repo.GetIdentity(ctx, claims.Subject)
	if err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return nil, member.Identity{}, ErrInvalidToken
		}
		return nil, member.Identity{}, errors.Wrap(err, "getting identity")
	}
	return claims, cred.Identity, nil
}

// RefreshToken issues a new token for the same session, as long as the refresh window is open.
func (svc *Service) RefreshToken(ctx context.Context, raw string) (Token, error) {
	claims, err := svc.parseToken(raw)
	if err != nil {
		return Token{}, err
	}
	origIssuedAt := time.Unix(claims.OrigIssuedAt, 0)
	if svc.now().After(origIssuedAt.Add(svc.refreshWindow)) {
		return Token{}, ErrRefreshExpired
	}

	claims, identity, err := svc.Verify(ctx, raw)
	if err != nil {
		return Token{}, err
	}

	token, err := svc.signClaims(svc.newClaims(identity.ID, identity.Email, claims.ID, origIssuedAt))
	if err != nil {
		return Token{}, err
	}
	svc.publish(ctx, Event{Kind: TokenRefreshed, IdentityID: identity.ID, SessionID: claims.ID, Identity: &identity})
	return token, nil
}

// SignOut revokes the session of the token. Signing out twice is not an error.
func (svc *Service) SignOut(ctx context.Context, raw string) error {
	claims, err := svc.parseToken(raw)
	if err != nil {
		return nil // nothing to revoke
	}
	if err = svc.repo.DeleteSession(ctx, claims.ID); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	svc.publish(ctx, Event{Kind: SignedOut, IdentityID: claims.Subject, SessionID: claims.ID})
	return nil
}

// SignOutEverywhere revokes every session of the identity.
func (svc *Service) SignOutEverywhere(ctx context.Context, identityID string) error {
	if err := svc.repo.DeleteIdentitySessions(ctx, identityID); err != nil {
		return errors.Wrap(err, "deleting sessions")
	}
	svc.publish(ctx, Event{Kind: SignedOut, IdentityID: identityID})
	return nil
}

// ResetPassword sets a new password and revokes every open session.
func (svc *Service) ResetPassword(ctx context.Context, email, pwd string) error {
	cred, err := svc.repo.GetIdentityByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return errors.Wrap(err, "finding identity by email")
	}
	if tag := member.CheckPassword(pwd, cred.Identity.Metadata.String("name"), cred.Identity.Email); tag != "" {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: member.PasswordErrorText(tag)})
	}
	if err = cred.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	if err = svc.repo.UpdatePassword(ctx, cred.Identity.ID, cred.PasswordHash); err != nil {
		return errors.Wrap(err, "updating password")
	}
	return svc.SignOutEverywhere(ctx, cred.Identity.ID)
}

// NotifyUserUpdated tells every session of the identity that its user data changed.
func (svc *Service) NotifyUserUpdated(ctx context.Context, identityID string) error {
	cred, err := svc.repo.GetIdentity(ctx, identityID)
	if err != nil {
		return errors.Wrap(err, "getting identity")
	}
	identity := cred.Identity
	return svc.bus.Publish(ctx, Event{Kind: UserUpdated, IdentityID: identityID, Identity: &identity, At: svc.now().UTC()})
}

func (svc *Service) Subscribe(fn Subscriber) func() {
	return svc.bus.Subscribe(fn)
}

func (svc *Service) publish(ctx context.Context, ev Event) {
	ev.At = svc.now().UTC()
	if err := svc.bus.Publish(ctx, ev); err != nil {
		svc.logger.Warn("publishing auth event", err, map[string]interface{}{"kind": ev.Kind, "identity": ev.IdentityID})
	}
}
