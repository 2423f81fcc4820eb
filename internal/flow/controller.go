// ABOUTME: Authentication flow controller over the account gateway and merge protocol
// ABOUTME: Session check, credential sign-in with signup fallback, OAuth exchange, sign-out

package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/2389/lamp/internal/account"
	"github.com/2389/lamp/internal/apperr"
	"github.com/2389/lamp/internal/auth"
	"github.com/2389/lamp/internal/latch"
	"github.com/2389/lamp/internal/merge"
	"github.com/2389/lamp/internal/route"
)

var (
	// ErrDuplicateAttempt is returned when an OAuth code has already been
	// submitted. Callers treat it as a no-op.
	ErrDuplicateAttempt = errors.New("authorization code already attempted")
	// ErrSuperseded is returned when the session changed while a request
	// was in flight and its response was dropped.
	ErrSuperseded = errors.New("response belongs to a superseded session")
)

// Gateway is the account gateway surface the controller needs.
type Gateway interface {
	SessionToken() string
	ClearCredentials(ctx context.Context) error
	Login(ctx context.Context, creds account.Credentials) (*account.AuthResponse, error)
	Signup(ctx context.Context, creds account.Credentials) (*account.AuthResponse, error)
	Logout(ctx context.Context) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	ExchangeCode(ctx context.Context, code, redirectURI string) (*account.AuthResponse, error)
	GetUser(ctx context.Context) (*account.UserRecord, error)
	CreateUser(ctx context.Context, patch account.ProfilePatch) (*account.UserRecord, error)
	UpdateUser(ctx context.Context, patch account.ProfilePatch) (*account.UserRecord, error)
	Checkout(ctx context.Context, priceID string) (*account.Redirect, error)
	Portal(ctx context.Context) (*account.Redirect, error)
	Prices(ctx context.Context) ([]account.Price, error)
}

// Merger links identities after authentication.
type Merger interface {
	OnAuthenticated(ctx context.Context, transitionID string, user *account.UserRecord) merge.Report
	MergeSMS(ctx context.Context, transitionID, userID, phone string) bool
	Reset(ctx context.Context)
}

// Result is where a transition left the user.
type Result struct {
	Session     auth.Session
	Destination route.Destination
}

// Controller owns the auth session. It is safe for concurrent use; at most
// one transition runs at a time.
type Controller struct {
	gw     Gateway
	merger Merger
	once   latch.Latch
	group  singleflight.Group
	logger *slog.Logger

	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	session auth.Session
}

// New creates a controller in the signed-out state.
func New(gw Gateway, merger Merger, once latch.Latch, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		gw:      gw,
		merger:  merger,
		once:    once,
		logger:  logger.With("component", "flow"),
		now:     time.Now,
		newID:   uuid.NewString,
		session: auth.NewSession(),
	}
}

// Session returns the current session value.
func (c *Controller) Session() auth.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// State returns the current flow state.
func (c *Controller) State() auth.State {
	return c.Session().State
}

// CheckSession resumes a stored session without user interaction.
// Concurrent calls share one check. Without usable credentials the session
// stays signed out and the error is nil.
func (c *Controller) CheckSession(ctx context.Context) (Result, error) {
	v, err, shared := c.group.Do("check-session", func() (any, error) {
		return c.checkSession(ctx)
	})
	if shared {
		c.logger.Debug("session check shared with concurrent caller")
	}
	res, _ := v.(Result)
	return res, err
}

func (c *Controller) checkSession(ctx context.Context) (Result, error) {
	if s := c.Session(); s.State.SignedIn() {
		return Result{Session: s, Destination: route.Dispatch(route.Route(s.User))}, nil
	}

	raw := c.gw.SessionToken()
	if raw == "" {
		c.logger.Debug("no stored session")
		return Result{Session: c.Session()}, nil
	}
	if cred, err := auth.CheckToken(raw, c.now()); errors.Is(err, auth.ErrExpiredToken) {
		c.logger.Info("stored session expired", "expired_at", cred.ExpiresAt)
		if err := c.gw.ClearCredentials(ctx); err != nil {
			c.logger.Warn("clearing expired credentials failed", "error", err)
		}
		return Result{Session: c.Session()}, nil
	}

	res, err := c.transition(ctx, "session_check", nil)
	if apperr.IsKind(err, apperr.KindAuth) {
		c.logger.Info("stored session rejected", "code", apperr.CodeOf(err))
		if cerr := c.gw.ClearCredentials(ctx); cerr != nil {
			c.logger.Warn("clearing rejected credentials failed", "error", cerr)
		}
		return Result{Session: c.Session()}, nil
	}
	return res, err
}

// SignIn logs in, and if the gateway does not recognise the credentials,
// signs up with them instead. A failed signup is surfaced as is.
func (c *Controller) SignIn(ctx context.Context, email, password string) (Result, error) {
	if err := auth.ValidateCredentials(email, password); err != nil {
		return Result{Session: c.Session()}, err
	}
	creds := account.Credentials{Email: email, Password: password}

	return c.transition(ctx, "credentials", func(ctx context.Context) error {
		_, err := c.gw.Login(ctx, creds)
		if apperr.CodeOf(err) != apperr.CodeInvalidCredentials {
			return err
		}
		c.logger.Info("login rejected, trying signup")
		_, err = c.gw.Signup(ctx, creds)
		return err
	})
}

// ExchangeCode trades an OAuth authorization code for a session. Each code
// is submitted at most once; a repeat returns ErrDuplicateAttempt. The code
// is released for another try after a transport failure, or when it was
// never sent because another transition was running.
func (c *Controller) ExchangeCode(ctx context.Context, code, redirectURI string) (Result, error) {
	if code == "" {
		return Result{Session: c.Session()}, apperr.Auth(apperr.CodeCodeExpired, "")
	}

	key := "oauth:" + code
	first, err := c.once.Acquire(ctx, key)
	if err != nil {
		return Result{Session: c.Session()}, apperr.Wrap(fmt.Errorf("acquiring oauth latch: %w", err), apperr.KindInternal, "latch")
	}
	if !first {
		c.logger.Debug("oauth code already attempted")
		return Result{Session: c.Session()}, ErrDuplicateAttempt
	}

	attempted := false
	res, err := c.transition(ctx, "oauth", func(ctx context.Context) error {
		attempted = true
		_, err := c.gw.ExchangeCode(ctx, code, redirectURI)
		return err
	})
	if !attempted || apperr.IsKind(err, apperr.KindNetwork) {
		c.logger.Debug("releasing oauth code", "attempted", attempted, "error", err)
		if rerr := c.once.Release(ctx, key); rerr != nil {
			c.logger.Warn("releasing oauth latch failed", "error", rerr)
		}
	}
	return res, err
}

// SignOut ends the remote session, forgets local credentials, and starts a
// fresh anonymous analytics lineage. Local teardown happens even if the
// gateway call fails.
func (c *Controller) SignOut(ctx context.Context) error {
	if err := c.gw.Logout(ctx); err != nil {
		c.logger.Warn("remote logout failed", "error", err)
	}

	c.mu.Lock()
	c.session = c.session.End()
	c.mu.Unlock()

	c.merger.Reset(ctx)

	if err := c.gw.ClearCredentials(ctx); err != nil {
		return apperr.Wrap(fmt.Errorf("clearing credentials: %w", err), apperr.KindInternal, "credentials")
	}
	c.logger.Info("signed out")
	return nil
}

// transition runs one authentication transition. establish obtains the
// gateway session; nil means stored credentials are reused.
func (c *Controller) transition(ctx context.Context, kind string, establish func(context.Context) error) (Result, error) {
	c.mu.Lock()
	if c.session.State == auth.Authenticating {
		c.mu.Unlock()
		return Result{Session: c.Session()}, apperr.Validation(apperr.CodeTransitionRunning, "")
	}
	transitionID := c.newID()
	c.session = c.session.Begin(transitionID)
	epoch := c.session.Epoch
	c.mu.Unlock()

	logger := c.logger.With("transition_id", transitionID, "kind", kind)
	logger.Debug("transition started")

	fail := func(err error) (Result, error) {
		c.mu.Lock()
		if c.session.Epoch == epoch {
			c.session = c.session.End()
		}
		s := c.session
		c.mu.Unlock()
		logger.Info("transition failed", "error", err)
		return Result{Session: s}, err
	}

	if establish != nil {
		if err := establish(ctx); err != nil {
			return fail(err)
		}
	}

	// The gateway session exists: keep its credential on the session before
	// the record is fetched.
	cred, err := auth.InspectToken(c.gw.SessionToken())
	if err != nil {
		logger.Debug("session token not inspectable", "error", err)
		cred = nil
	}
	c.mu.Lock()
	if c.session.Epoch == epoch {
		c.session = c.session.Establish(cred)
	}
	c.mu.Unlock()

	user, err := c.fetchOrCreate(ctx)
	if err != nil {
		return fail(err)
	}
	if !c.current(epoch) {
		logger.Debug("dropping user record for superseded session")
		return Result{Session: c.Session()}, ErrSuperseded
	}

	c.merger.OnAuthenticated(ctx, transitionID, user)

	dest := route.Dispatch(route.Route(user))

	c.mu.Lock()
	if c.session.Epoch != epoch {
		s := c.session
		c.mu.Unlock()
		return Result{Session: s}, ErrSuperseded
	}
	c.session = c.session.Resolve(user, cred, c.now())
	s := c.session
	c.mu.Unlock()

	logger.Info("transition complete", "state", s.State, "destination", dest.Decision)
	return Result{Session: s, Destination: dest}, nil
}

// fetchOrCreate returns the caller's user record, creating an empty one when
// the gateway has none yet.
func (c *Controller) fetchOrCreate(ctx context.Context) (*account.UserRecord, error) {
	user, err := c.gw.GetUser(ctx)
	if apperr.CodeOf(err) == apperr.CodeNotFound {
		c.logger.Debug("no user record, creating")
		return c.gw.CreateUser(ctx, account.ProfilePatch{})
	}
	return user, err
}

// current reports whether epoch is still the session's epoch.
func (c *Controller) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Epoch == epoch
}

// signedIn returns the session if it is signed in.
func (c *Controller) signedIn() (auth.Session, error) {
	s := c.Session()
	if !s.State.SignedIn() {
		return s, apperr.Auth(apperr.CodeNotSignedIn, "")
	}
	return s, nil
}
