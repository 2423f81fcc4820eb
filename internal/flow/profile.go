// ABOUTME: Registration, profile updates, password reset, and subscription redirects
// ABOUTME: Profile writes re-route the fresh record; a new phone triggers the SMS merge

package flow

import (
	"context"
	"strings"

	"github.com/2389/lamp/internal/account"
	"github.com/2389/lamp/internal/apperr"
	"github.com/2389/lamp/internal/auth"
	"github.com/2389/lamp/internal/route"
)

// Register completes registration with the collected form.
func (c *Controller) Register(ctx context.Context, form auth.RegistrationForm) (Result, error) {
	if _, err := c.signedIn(); err != nil {
		return Result{Session: c.Session()}, err
	}
	if err := form.Validate(); err != nil {
		return Result{Session: c.Session()}, err
	}
	return c.UpdateProfile(ctx, form.Patch())
}

// UpdateProfile patches profile fields and re-routes on the returned record.
// A phone number the record did not already carry is merged into the
// user's analytics identity.
func (c *Controller) UpdateProfile(ctx context.Context, patch account.ProfilePatch) (Result, error) {
	s, err := c.signedIn()
	if err != nil {
		return Result{Session: s}, err
	}

	if patch.PhoneNumber != nil {
		phone, err := auth.NormalizePhone(*patch.PhoneNumber)
		if err != nil {
			return Result{Session: s}, err
		}
		patch.PhoneNumber = &phone
	}
	if patch.Email != nil && strings.TrimSpace(*patch.Email) == "" {
		return Result{Session: s}, apperr.Validation(apperr.CodeEmailRequired, "")
	}

	previousPhone := ""
	if s.User != nil {
		previousPhone = s.User.PhoneNumber
	}

	user, err := c.gw.UpdateUser(ctx, patch)
	if err != nil {
		return Result{Session: s}, err
	}

	c.mu.Lock()
	if c.session.Epoch != s.Epoch {
		cur := c.session
		c.mu.Unlock()
		c.logger.Debug("dropping profile update for superseded session")
		return Result{Session: cur}, ErrSuperseded
	}
	c.session = c.session.WithUser(user)
	s = c.session
	c.mu.Unlock()

	if user.PhoneNumber != "" && user.PhoneNumber != previousPhone {
		c.merger.MergeSMS(ctx, s.TransitionID, user.UserID, user.PhoneNumber)
	}

	dest := route.Dispatch(route.Route(user))
	c.logger.Info("profile updated", "state", s.State, "destination", dest.Decision)
	return Result{Session: s, Destination: dest}, nil
}

// ForgotPassword asks the gateway to email a reset link.
func (c *Controller) ForgotPassword(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" || !strings.Contains(email, "@") {
		return apperr.Validation(apperr.CodeEmailRequired, "Enter your email address.")
	}
	return c.gw.ForgotPassword(ctx, email)
}

// ResetPassword sets a new password using the token from the reset link.
func (c *Controller) ResetPassword(ctx context.Context, token, password string) error {
	if strings.TrimSpace(token) == "" {
		return apperr.Auth(apperr.CodeCodeExpired, "")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}
	return c.gw.ResetPassword(ctx, token, password)
}

// Checkout returns the billing redirect for priceID.
func (c *Controller) Checkout(ctx context.Context, priceID string) (*account.Redirect, error) {
	if _, err := c.signedIn(); err != nil {
		return nil, err
	}
	return c.gw.Checkout(ctx, priceID)
}

// Portal returns the billing portal redirect.
func (c *Controller) Portal(ctx context.Context) (*account.Redirect, error) {
	if _, err := c.signedIn(); err != nil {
		return nil, err
	}
	return c.gw.Portal(ctx)
}

// Prices lists subscription options. No session is needed.
func (c *Controller) Prices(ctx context.Context) ([]account.Price, error) {
	return c.gw.Prices(ctx)
}
