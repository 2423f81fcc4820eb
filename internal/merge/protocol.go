// ABOUTME: Identity merge protocol run once per authentication transition
// ABOUTME: Identify, guarded web alias, and best-effort SMS alias against the analytics backend

package merge

import (
	"context"
	"errors"
	"log/slog"

	"github.com/2389/lamp/internal/account"
	"github.com/2389/lamp/internal/analytics"
	"github.com/2389/lamp/internal/identity"
	"github.com/2389/lamp/internal/latch"
	"github.com/2389/lamp/internal/store"
)

// Ledger is the store surface the protocol needs.
type Ledger interface {
	store.IdentityStore
	store.AliasStore
}

// Config holds protocol settings.
type Config struct {
	SMSPrefix   string
	Environment string
}

// Protocol runs identity merges.
type Protocol struct {
	backend analytics.Backend
	ledger  Ledger
	once    latch.Latch
	cfg     Config
	logger  *slog.Logger
}

// New creates a Protocol. once guards transitions and may be shared with
// other one-shot operations; keys are namespaced.
func New(backend analytics.Backend, ledger Ledger, once latch.Latch, cfg Config, logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SMSPrefix == "" {
		cfg.SMSPrefix = identity.DefaultSMSPrefix
	}
	return &Protocol{
		backend: backend,
		ledger:  ledger,
		once:    once,
		cfg:     cfg,
		logger:  logger.With("component", "merge"),
	}
}

// Report describes what one transition's merge did.
type Report struct {
	Skipped    bool // transition already merged
	Identified bool
	WebAliased bool
	SMSAliased bool
}

// OnAuthenticated runs the merge for transitionID. A second call with the
// same transitionID does nothing.
func (p *Protocol) OnAuthenticated(ctx context.Context, transitionID string, user *account.UserRecord) Report {
	var rep Report
	if user == nil || user.UserID == "" {
		p.logger.Warn("merge skipped: no user record", "transition_id", transitionID)
		rep.Skipped = true
		return rep
	}

	first, err := p.once.Acquire(ctx, "merge:"+transitionID)
	if err != nil {
		p.logger.Warn("merge latch unavailable", "transition_id", transitionID, "error", err)
		rep.Skipped = true
		return rep
	}
	if !first {
		p.logger.Debug("merge already ran for transition", "transition_id", transitionID)
		rep.Skipped = true
		return rep
	}

	// The pre-sign-in lineage must be read before identify replaces it.
	previous, err := p.backend.CurrentDistinctID(ctx)
	if err != nil {
		p.logger.Warn("reading current distinct id failed", "error", err)
	}

	if err := p.Identify(ctx, user.UserID, profileProperties(user)); err == nil {
		rep.Identified = true
	}
	if err := p.backend.Register(ctx, map[string]any{
		"environment": p.cfg.Environment,
		"plan":        user.EffectivePlan(),
	}); err != nil {
		p.logger.Warn("registering super properties failed", "error", err)
	}

	if previous != "" {
		rep.WebAliased = p.Alias(ctx, transitionID, user.UserID, previous)
	}
	if user.PhoneNumber != "" {
		rep.SMSAliased = p.MergeSMS(ctx, transitionID, user.UserID, user.PhoneNumber)
	}

	p.logger.Info("identity merge complete",
		"transition_id", transitionID,
		"identified", rep.Identified,
		"web_aliased", rep.WebAliased,
		"sms_aliased", rep.SMSAliased,
	)
	return rep
}

// Identify upserts properties under userID. Failures are logged and returned
// for callers that care; the flow ignores them.
func (p *Protocol) Identify(ctx context.Context, userID string, properties map[string]any) error {
	if err := p.backend.Identify(ctx, userID, properties); err != nil {
		p.logger.Warn("identify failed", "error", err)
		return err
	}
	return nil
}

// Alias links previousKey to userID when previousKey is an anonymous web
// key different from userID and the pair has not been linked before.
// It reports whether an alias was sent.
func (p *Protocol) Alias(ctx context.Context, transitionID, userID, previousKey string) bool {
	prev := identity.Identity{Key: previousKey, Kind: p.kindOf(ctx, previousKey)}
	if err := identity.CanAliasWeb(prev, userID); err != nil {
		p.logger.Debug("web alias not applicable", "reason", err)
		return false
	}
	return p.link(ctx, transitionID, userID, prev)
}

// MergeSMS aliases the SMS key derived from phone to userID. Having no prior
// history under that key is normal; the alias is simply a no-op upstream.
func (p *Protocol) MergeSMS(ctx context.Context, transitionID, userID, phone string) bool {
	sms, err := identity.SMSKey(p.cfg.SMSPrefix, phone)
	if err != nil {
		p.logger.Debug("sms alias not applicable", "reason", err)
		return false
	}
	if err := p.ledger.RecordIdentity(ctx, sms); err != nil {
		p.logger.Warn("recording sms identity failed", "error", err)
	}
	if kind := p.kindOf(ctx, sms.Key); kind != identity.KindAnonymousSMS {
		p.logger.Debug("sms alias not applicable", "reason", identity.ErrNotSMSIdentity, "kind", kind)
		return false
	}
	if err := identity.CanAlias(sms, userID); err != nil {
		p.logger.Debug("sms alias not applicable", "reason", err)
		return false
	}
	if !p.link(ctx, transitionID, userID, sms) {
		return false
	}
	if err := p.backend.Capture(ctx, "phone_linked", map[string]any{"sms_key": sms.Key}); err != nil {
		p.logger.Warn("capturing phone_linked failed", "error", err)
	}
	return true
}

// Reset starts a fresh anonymous lineage, used on sign-out.
func (p *Protocol) Reset(ctx context.Context) {
	if err := p.backend.Reset(ctx); err != nil {
		p.logger.Warn("analytics reset failed", "error", err)
	}
}

// link records prev -> userID in the ledger and sends the alias if the pair
// is new. The ledger row is written first so a pair is sent at most once.
func (p *Protocol) link(ctx context.Context, transitionID, userID string, prev identity.Identity) bool {
	inserted, err := p.ledger.RecordAlias(ctx, &identity.AliasLink{
		PreviousKey:  prev.Key,
		PreviousKind: prev.Kind,
		UserID:       userID,
		TransitionID: transitionID,
	})
	if err != nil {
		p.logger.Warn("recording alias failed", "error", err)
		return false
	}
	if !inserted {
		p.logger.Debug("alias already recorded", "previous_kind", prev.Kind)
		return false
	}
	if err := p.backend.Alias(ctx, userID, prev.Key); err != nil {
		p.logger.Warn("alias failed", "previous_kind", prev.Kind, "error", err)
		return false
	}
	return true
}

// kindOf prefers the stored kind tag and falls back to key shape.
func (p *Protocol) kindOf(ctx context.Context, key string) identity.Kind {
	known, err := p.ledger.IdentityKind(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		p.logger.Warn("reading identity kind failed", "error", err)
	}
	return identity.Classify(key, known, p.cfg.SMSPrefix)
}

func profileProperties(u *account.UserRecord) map[string]any {
	props := map[string]any{
		"email":         u.Email,
		"is_registered": u.IsRegistered,
		"is_subscribed": u.IsSubscribed,
		"plan":          u.EffectivePlan(),
	}
	if u.FirstName != "" {
		props["first_name"] = u.FirstName
	}
	if u.LastName != "" {
		props["last_name"] = u.LastName
	}
	if u.BibleVersion != "" {
		props["bible_version"] = u.BibleVersion
	}
	if u.PhoneNumber != "" {
		props["phone_number"] = u.PhoneNumber
	}
	return props
}
