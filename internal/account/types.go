// ABOUTME: Wire types exchanged with the account gateway
// ABOUTME: User records, chat sessions and messages, and subscription payloads

package account

import "time"

// SMSUsage is the monthly SMS allotment for free-tier accounts.
type SMSUsage struct {
	MessagesSent int `json:"messagesSent"`
	MessageLimit int `json:"messageLimit"`
}

// Exhausted reports whether every allotted message has been sent.
func (u *SMSUsage) Exhausted() bool {
	if u == nil {
		return false
	}
	return u.MessagesSent >= u.MessageLimit
}

// UserRecord is the gateway's account record. The client reads it and
// patches profile fields only.
type UserRecord struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	PhoneNumber  string    `json:"phoneNumber,omitempty"`
	IsRegistered bool      `json:"isRegistered"`
	IsSubscribed bool      `json:"isSubscribed"`
	Plan         string    `json:"plan,omitempty"`
	SMSUsage     *SMSUsage `json:"smsUsage,omitempty"`
	BibleVersion string    `json:"bibleVersion,omitempty"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PlanFree is assumed when a record carries no plan.
const PlanFree = "free"

// EffectivePlan returns Plan, defaulting to PlanFree.
func (u *UserRecord) EffectivePlan() string {
	if u.Plan == "" {
		return PlanFree
	}
	return u.Plan
}

// ProfilePatch holds the profile fields the client may write. Nil fields are
// left untouched. Subscription state is deliberately absent.
type ProfilePatch struct {
	Email        *string `json:"email,omitempty"`
	PhoneNumber  *string `json:"phoneNumber,omitempty"`
	FirstName    *string `json:"firstName,omitempty"`
	LastName     *string `json:"lastName,omitempty"`
	BibleVersion *string `json:"bibleVersion,omitempty"`
	SMSConsent   *bool   `json:"smsConsent,omitempty"`
}

// Credentials is the body of login and signup.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by login, signup and the OAuth callback.
type AuthResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Token  string `json:"token,omitempty"`
}

// Role of a chat message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a chat session's metadata.
type Session struct {
	SessionID string    `json:"sessionId"`
	ThreadID  string    `json:"threadId,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionDetail is a session with its full message history.
type SessionDetail struct {
	Session  Session   `json:"session"`
	Messages []Message `json:"messages"`
}

// SendRequest is the body of POST /chat/message.
type SendRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// SendResult is the gateway's reply to a sent message.
type SendResult struct {
	SessionID string  `json:"sessionId"`
	ThreadID  string  `json:"threadId"`
	Message   Message `json:"message"`
}

// Price is a purchasable subscription price.
type Price struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname,omitempty"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency,omitempty"`
	Interval string `json:"interval,omitempty"`
}

// Redirect carries an opaque URL the caller should open.
type Redirect struct {
	URL string `json:"url"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
