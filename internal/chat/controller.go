// ABOUTME: Chat session lifecycle controller: list, select, draft, send, delete
// ABOUTME: Optimistic send with exact rollback, optimistic delete, epoch-guarded responses

package chat

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/2389/lamp/internal/account"
	"github.com/2389/lamp/internal/apperr"
	"github.com/2389/lamp/internal/auth"
)

// ErrSuperseded is returned when a response arrived for a superseded view
// and was dropped.
var ErrSuperseded = errors.New("response belongs to a superseded chat view")

// Gateway is the chat surface of the account gateway.
type Gateway interface {
	ListSessions(ctx context.Context) ([]account.Session, error)
	GetSession(ctx context.Context, id string) (*account.SessionDetail, error)
	DeleteSession(ctx context.Context, id string) error
	SendMessage(ctx context.Context, req account.SendRequest) (*account.SendResult, error)
}

// SessionSource exposes the current auth session.
type SessionSource interface {
	Session() auth.Session
}

// State is a snapshot of the controller.
type State struct {
	Sessions   []account.Session
	Active     *account.Session
	Transcript []account.Message
	Pending    bool
	Epoch      uint64
}

func (s State) clone() State {
	out := s
	out.Sessions = slices.Clone(s.Sessions)
	out.Transcript = slices.Clone(s.Transcript)
	if s.Active != nil {
		a := *s.Active
		out.Active = &a
	}
	return out
}

// Controller owns chat state for one signed-in user.
type Controller struct {
	gw      Gateway
	auth    SessionSource
	bc      *Broadcaster
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.Mutex
	state   State
	sendSeq uint64

	// deleteSeq counts deletions; deletedAt maps a deleted id to its count.
	deleteSeq uint64
	deletedAt map[string]uint64
}

// New creates a controller. sessions may be nil, in which case no sign-in check
// is made.
func New(gw Gateway, sessions SessionSource, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		gw:     gw,
		auth:   sessions,
		bc:     NewBroadcaster(logger),
		logger: logger.With("component", "chat"),
		now:    time.Now,
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe streams snapshots until ctx is done.
func (c *Controller) Subscribe(ctx context.Context) <-chan State {
	ch, _ := c.bc.Subscribe(ctx)
	return ch
}

// Close releases subscribers.
func (c *Controller) Close() {
	c.bc.Close()
}

// token identifies the views a request was issued under.
type token struct {
	epoch     uint64
	authEpoch uint64
	deletes   uint64
}

func (c *Controller) authEpoch() uint64 {
	if c.auth == nil {
		return 0
	}
	return c.auth.Session().Epoch
}

// issuedEpoch is the auth epoch a request runs under: the session pinned on
// ctx with auth.WithSession, else the live one.
func (c *Controller) issuedEpoch(ctx context.Context) uint64 {
	if s, ok := auth.FromContext(ctx); ok {
		return s.Epoch
	}
	return c.authEpoch()
}

// requireSignedIn checks the session ctx was issued under. A pinned session
// that has since been replaced yields ErrSuperseded before any request.
func (c *Controller) requireSignedIn(ctx context.Context) error {
	s, pinned := auth.FromContext(ctx)
	if !pinned {
		if c.auth == nil {
			return nil
		}
		s = c.auth.Session()
	}
	if !s.State.SignedIn() {
		return apperr.Auth(apperr.CodeNotSignedIn, "")
	}
	if pinned && c.auth != nil && s.Epoch != c.authEpoch() {
		c.logger.Debug("request pinned to a superseded sign-in", "epoch", s.Epoch)
		return ErrSuperseded
	}
	return nil
}

// tokenLocked must be called with mu held.
func (c *Controller) tokenLocked(ctx context.Context) token {
	return token{epoch: c.state.Epoch, authEpoch: c.issuedEpoch(ctx), deletes: c.deleteSeq}
}

// staleLocked reports whether t no longer matches. Must be called with mu held.
func (c *Controller) staleLocked(t token, sameView bool) bool {
	if c.auth != nil && c.authEpoch() != t.authEpoch {
		return true
	}
	return sameView && c.state.Epoch != t.epoch
}

// publishLocked must be called with mu held.
func (c *Controller) publishLocked() {
	c.bc.Publish(c.state.clone())
}

// ListSessions replaces the session list with the gateway's.
func (c *Controller) ListSessions(ctx context.Context) ([]account.Session, error) {
	if err := c.requireSignedIn(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	t := c.tokenLocked(ctx)
	c.mu.Unlock()

	sessions, err := c.gw.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(t, false) {
		c.logger.Debug("dropping session list for superseded sign-in")
		return nil, ErrSuperseded
	}
	if c.deleteSeq != t.deletes {
		sessions = slices.DeleteFunc(sessions, func(s account.Session) bool {
			return c.deletedAt[s.SessionID] > t.deletes
		})
	}
	c.state.Sessions = sessions
	c.publishLocked()
	return slices.Clone(sessions), nil
}

// SelectSession opens id, replacing the active session and transcript
// together with the gateway's copy.
func (c *Controller) SelectSession(ctx context.Context, id string) error {
	if err := c.requireSignedIn(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.state.Epoch++
	t := c.tokenLocked(ctx)
	c.mu.Unlock()

	detail, err := c.gw.GetSession(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(t, true) {
		c.logger.Debug("dropping session detail for superseded view", "session_id", id)
		return ErrSuperseded
	}
	active := detail.Session
	c.state.Active = &active
	c.state.Transcript = slices.Clone(detail.Messages)
	c.state.Pending = false
	c.publishLocked()
	return nil
}

// NewSessionDraft clears the active session locally. The gateway creates a
// session when the first message is sent.
func (c *Controller) NewSessionDraft() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Epoch++
	c.state.Active = nil
	c.state.Transcript = nil
	c.state.Pending = false
	c.publishLocked()
}

// SendMessage sends text in the active session, or starts a session from a
// draft. It fails without sending if a send is already in flight or text
// is blank.
func (c *Controller) SendMessage(ctx context.Context, text string) (*account.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation(apperr.CodeEmptyMessage, "")
	}
	if err := c.requireSignedIn(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.state.Pending {
		c.mu.Unlock()
		return nil, apperr.Validation(apperr.CodeSendInFlight, "")
	}
	optimistic := account.Message{Role: account.RoleUser, Content: text, Timestamp: c.now().UTC()}
	at := len(c.state.Transcript)
	c.state.Transcript = append(c.state.Transcript, optimistic)
	c.state.Pending = true
	c.sendSeq++
	seq := c.sendSeq
	sessionID := ""
	if c.state.Active != nil {
		sessionID = c.state.Active.SessionID
	}
	t := c.tokenLocked(ctx)
	c.publishLocked()
	c.mu.Unlock()

	res, err := c.gw.SendMessage(ctx, account.SendRequest{Message: text, SessionID: sessionID})

	c.mu.Lock()
	if c.sendSeq == seq {
		c.state.Pending = false
	}
	if c.staleLocked(t, true) {
		c.mu.Unlock()
		c.logger.Debug("dropping send result for superseded view", "failed", err != nil)
		return nil, ErrSuperseded
	}

	if err != nil {
		if at < len(c.state.Transcript) && c.state.Transcript[at] == optimistic {
			c.state.Transcript = slices.Delete(c.state.Transcript, at, at+1)
		}
		c.publishLocked()
		c.mu.Unlock()
		c.logger.Warn("send failed", "session_id", sessionID, "error", err)
		return nil, err
	}

	adopted := false
	if sessionID == "" {
		c.state.Active = &account.Session{
			SessionID: res.SessionID,
			ThreadID:  res.ThreadID,
			Title:     text,
			CreatedAt: optimistic.Timestamp,
		}
		adopted = true
	}
	c.state.Transcript = append(c.state.Transcript, res.Message)
	reply := res.Message
	c.publishLocked()
	c.mu.Unlock()

	if adopted {
		c.logger.Info("session started", "session_id", res.SessionID)
		if _, err := c.ListSessions(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
			c.logger.Warn("refreshing sessions after first send failed", "error", err)
		}
	}
	return &reply, nil
}

// DeleteSession removes id from the list and, if it is open, clears the
// active session. The removal is not rolled back if the gateway call fails.
func (c *Controller) DeleteSession(ctx context.Context, id string) {
	c.mu.Lock()
	c.deleteSeq++
	if c.deletedAt == nil {
		c.deletedAt = make(map[string]uint64)
	}
	c.deletedAt[id] = c.deleteSeq
	c.state.Sessions = slices.DeleteFunc(c.state.Sessions, func(s account.Session) bool {
		return s.SessionID == id
	})
	if c.state.Active != nil && c.state.Active.SessionID == id {
		c.state.Epoch++
		c.state.Active = nil
		c.state.Transcript = nil
		c.state.Pending = false
	}
	c.publishLocked()
	c.mu.Unlock()

	if err := c.gw.DeleteSession(ctx, id); err != nil {
		c.logger.Warn("delete session failed", "session_id", id, "error", err)
	}
}

// Reset forgets all chat state, as on sign-out.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = State{Epoch: c.state.Epoch + 1}
	c.publishLocked()
}
