// ABOUTME: In-memory account gateway served over httptest for package tests
// ABOUTME: Implements auth, users, chat, and subscription endpoints with failure knobs

// Package gatewaytest provides a fake account gateway for tests.
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/2389/lamp/internal/account"
)

// CookieName is the session cookie the fake sets.
const CookieName = account.DefaultSessionCookie

type fakeUser struct {
	id       string
	email    string
	password string
	record   *account.UserRecord // nil until POST /users
}

type fakeSession struct {
	meta     account.Session
	messages []account.Message
}

// Server is a fake gateway. Zero-valued knobs mean "behave normally".
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	secret   []byte
	users    map[string]*fakeUser // by email
	byID     map[string]*fakeUser
	codes    map[string]string // oauth code -> email
	used     map[string]bool
	sessions map[string][]*fakeSession // by user id, newest first
	calls    map[string]int
	revoked  map[string]bool

	// FailSend makes POST /chat/message return 500.
	FailSend bool
	// FailDelete makes DELETE /chat/sessions/{id} return 500.
	FailDelete bool
	// FailUser makes GET and POST /users return 500.
	FailUser bool
	// FailSignup makes POST /auth/signup return 500.
	FailSignup bool
	// SendGate, when set, blocks POST /chat/message until it is closed.
	SendGate chan struct{}
	// LoginGate, when set, blocks POST /auth/login until it is closed.
	LoginGate chan struct{}
	// TokenTTL is the lifetime of issued session tokens. Defaults to an hour.
	TokenTTL time.Duration
}

// New starts a fake gateway. It is closed by t.Cleanup via the caller.
func New() *Server {
	s := &Server{
		secret:   []byte("gatewaytest-secret"),
		users:    make(map[string]*fakeUser),
		byID:     make(map[string]*fakeUser),
		codes:    make(map[string]string),
		used:     make(map[string]bool),
		sessions: make(map[string][]*fakeSession),
		calls:    make(map[string]int),
		revoked:  make(map[string]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("POST /auth/forgot-password", s.handleForgot)
	mux.HandleFunc("POST /auth/reset-password", s.handleReset)
	mux.HandleFunc("POST /auth/callback", s.handleCallback)
	mux.HandleFunc("GET /users", s.handleGetUser)
	mux.HandleFunc("POST /users", s.handleCreateUser)
	mux.HandleFunc("PUT /users", s.handleUpdateUser)
	mux.HandleFunc("GET /chat/sessions", s.handleListSessions)
	mux.HandleFunc("GET /chat/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /chat/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /chat/message", s.handleMessage)
	mux.HandleFunc("POST /subscription/checkout", s.handleCheckout)
	mux.HandleFunc("POST /subscription/portal", s.handlePortal)
	mux.HandleFunc("GET /subscription/prices", s.handlePrices)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	return s
}

// AddUser registers credentials. A non-nil record means the user record
// already exists; its UserID and Email are filled in.
func (s *Server) AddUser(email, password string, record *account.UserRecord) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, password, record)
}

func (s *Server) addUserLocked(email, password string, record *account.UserRecord) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if record != nil {
		record.UserID = id
		record.Email = email
		if record.CreatedAt.IsZero() {
			record.CreatedAt = time.Now().UTC()
		}
	}
	u := &fakeUser{id: id, email: email, password: password, record: record}
	s.users[email] = u
	s.byID[id] = u
	return id
}

// AddCode makes code exchangeable once for email, creating the user if needed.
func (s *Server) AddCode(code, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = email
}

// UpdateRecord mutates the stored record of userID.
func (s *Server) UpdateRecord(userID string, fn func(*account.UserRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[userID]; ok && u.record != nil {
		fn(u.record)
	}
}

// Record returns a copy of the stored record of userID, or nil.
func (s *Server) Record(userID string) *account.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok || u.record == nil {
		return nil
	}
	cp := *u.record
	return &cp
}

// UserID returns the ID for email, or "".
func (s *Server) UserID(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[email]; ok {
		return u.id
	}
	return ""
}

// AddSession seeds a chat session for userID.
func (s *Server) AddSession(userID string, meta account.Session, messages ...account.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = append([]*fakeSession{{meta: meta, messages: messages}}, s.sessions[userID]...)
}

// Calls reports how many times "METHOD /path" was requested.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Token mints a session token for userID that expires after ttl.
func (s *Server) Token(userID string, ttl time.Duration) string {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	signed, _ := tok.SignedString(s.secret)
	return signed
}

func (s *Server) issue(w http.ResponseWriter, u *fakeUser) {
	ttl := s.TokenTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.Token(u.id, ttl),
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(ttl),
	})
	writeJSON(w, http.StatusOK, account.AuthResponse{UserID: u.id, Email: u.email})
}

// current resolves the user from the session cookie. Must be called with mu held.
func (s *Server) current(r *http.Request) *fakeUser {
	c, err := r.Cookie(CookieName)
	if err != nil || s.revoked[c.Value] {
		return nil
	}
	tok, err := jwt.Parse(c.Value, func(*jwt.Token) (interface{}, error) { return s.secret, nil })
	if err != nil || !tok.Valid {
		return nil
	}
	sub, _ := tok.Claims.GetSubject()
	return s.byID[sub]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// wait blocks on the gate returned by pick, if any.
func (s *Server) wait(pick func() chan struct{}) {
	s.mu.Lock()
	gate := pick()
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds account.Credentials
	json.NewDecoder(r.Body).Decode(&creds) //nolint:errcheck
	s.wait(func() chan struct{} { return s.LoginGate })

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[creds.Email]
	if !ok {
		writeError(w, http.StatusNotFound, "", "no such user")
		return
	}
	if u.password != creds.Password {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "wrong password")
		return
	}
	s.issue(w, u)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var creds account.Credentials
	json.NewDecoder(r.Body).Decode(&creds) //nolint:errcheck

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSignup {
		writeError(w, http.StatusInternalServerError, "", "boom")
		return
	}
	if _, exists := s.users[creds.Email]; exists {
		writeError(w, http.StatusConflict, "", "account exists")
		return
	}
	id := s.addUserLocked(creds.Email, creds.Password, nil)
	s.issue(w, s.byID[id])
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if c, err := r.Cookie(CookieName); err == nil {
		s.revoked[c.Value] = true
	}
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleForgot(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
	if body.Token == "" {
		writeError(w, http.StatusBadRequest, "", "missing token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code        string `json:"code"`
		RedirectURI string `json:"redirectUri"`
	}
	json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck

	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.codes[body.Code]
	if !ok {
		writeError(w, http.StatusBadRequest, "", "unknown code")
		return
	}
	if s.used[body.Code] {
		writeError(w, http.StatusBadRequest, "code_consumed", "code already used")
		return
	}
	s.used[body.Code] = true
	u, exists := s.users[email]
	if !exists {
		u = s.byID[s.addUserLocked(email, "", nil)]
	}
	s.issue(w, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUser {
		writeError(w, http.StatusInternalServerError, "", "boom")
		return
	}
	u := s.current(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "", "not signed in")
		return
	}
	if u.record == nil {
		writeError(w, http.StatusNotFound, "", "no record")
		return
	}
	writeJSON(w, http.StatusOK, u.record)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var patch account.ProfilePatch
	json.NewDecoder(r.Body).Decode(&patch) //nolint:errcheck

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUser {
		writeError(w, http.StatusInternalServerError, "", "boom")
		return
	}
	u := s.current(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "", "not signed in")
		return
	}
	if u.record == nil {
		u.record = &account.UserRecord{
			UserID:    u.id,
			Email:     u.email,
			SMSUsage:  &account.SMSUsage{MessagesSent: 0, MessageLimit: 5},
			CreatedAt: time.Now().UTC(),
		}
	}
	applyPatch(u.record, patch)
	writeJSON(w, http.StatusOK, u.record)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var patch account.ProfilePatch
	json.NewDecoder(r.Body).Decode(&patch) //nolint:errcheck

	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.current(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "", "not signed in")
		return
	}
	if u.record == nil {
		writeError(w, http.StatusNotFound, "", "no record")
		return
	}
	applyPatch(u.record, patch)
	writeJSON(w, http.StatusOK, u.record)
}

// applyPatch writes profile fields. A phone number plus SMS consent
// completes registration.
func applyPatch(rec *account.UserRecord, p account.ProfilePatch) {
	if p.Email != nil {
		rec.Email = *p.Email
	}
	if p.PhoneNumber != nil {
		rec.PhoneNumber = *p.PhoneNumber
	}
	if p.FirstName != nil {
		rec.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		rec.LastName = *p.LastName
	}
	if p.BibleVersion != nil {
		rec.BibleVersion = *p.BibleVersion
	}
	if p.SMSConsent != nil && *p.SMSConsent && rec.PhoneNumber != "" {
		rec.IsRegistered = true
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.current(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "", "not signed in")
		return
	}
	out := make([]account.Session, 0, len(s.sessions[u.id]))
	for _, fs := range s.sessions[u.id] {
		out = append(out, fs.meta)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) findSession(userID, id string) *fakeSession {
	for _, fs := range s.sessions[userID] {
		if fs.meta.SessionID == id {
			return fs
		}
	}
	return nil
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.current(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "", "not signed in")
		return
	}
	fs := s.findSession(u.id, r.PathValue("id"))
	if fs == nil {
		writeError(w, http.StatusNotFound, "", "no session")
		return
	}
	writeJSON(w, http.StatusOK, account.SessionDetail{Session: fs.meta, Messages: fs.messages})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete {
		writeError(w, http.StatusInternalServerError, "", "boom")
		return
	}
	u := s.current(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "", "not signed in")
		return
	}
	id := r.PathValue("id")
	list := s.sessions[u.id]
	for i, fs := range list {
		if fs.meta.SessionID == id {
			s.sessions[u.id] = append(list[:i:i], list[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "", "no session")
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req account.SendRequest
	json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck

	s.wait(func() chan struct{} { return s.SendGate })

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSend {
		writeError(w, http.StatusInternalServerError, "", "assistant unavailable")
		return
	}
	u := s.current(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "", "not signed in")
		return
	}

	now := time.Now().UTC()
	var fs *fakeSession
	if req.SessionID != "" {
		fs = s.findSession(u.id, req.SessionID)
		if fs == nil {
			writeError(w, http.StatusNotFound, "", "no session")
			return
		}
	} else {
		fs = &fakeSession{meta: account.Session{
			SessionID: "sess_" + uuid.NewString()[:8],
			ThreadID:  "thread_" + uuid.NewString()[:8],
			Title:     req.Message,
			CreatedAt: now,
		}}
		s.sessions[u.id] = append([]*fakeSession{fs}, s.sessions[u.id]...)
	}

	reply := account.Message{
		Role:      account.RoleAssistant,
		Content:   fmt.Sprintf("**Psalm 23:1** in answer to: %s", req.Message),
		Timestamp: now,
	}
	fs.messages = append(fs.messages,
		account.Message{Role: account.RoleUser, Content: req.Message, Timestamp: now},
		reply,
	)
	writeJSON(w, http.StatusOK, account.SendResult{
		SessionID: fs.meta.SessionID,
		ThreadID:  fs.meta.ThreadID,
		Message:   reply,
	})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PriceID string `json:"priceId"`
	}
	json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
	if body.PriceID == "" {
		writeError(w, http.StatusBadRequest, "", "price required")
		return
	}
	writeJSON(w, http.StatusOK, account.Redirect{URL: "https://billing.example/checkout/" + body.PriceID})
}

func (s *Server) handlePortal(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, account.Redirect{URL: "https://billing.example/portal"})
}

func (s *Server) handlePrices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prices": []account.Price{
		{ID: "price_monthly", Nickname: "Monthly", Amount: 499, Currency: "usd", Interval: "month"},
		{ID: "price_yearly", Nickname: "Yearly", Amount: 3999, Currency: "usd", Interval: "year"},
	}})
}
