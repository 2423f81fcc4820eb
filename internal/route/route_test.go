// ABOUTME: Tests for the routing decision precedence and destination dispatch
// ABOUTME: Table-driven over registration, subscription, and SMS usage combinations

package route

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/lamp/internal/account"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		name string
		user *account.UserRecord
		want Decision
	}{
		{
			name: "nil record routes to registration",
			user: nil,
			want: Registration,
		},
		{
			name: "registration dominates subscription",
			user: &account.UserRecord{IsRegistered: false, IsSubscribed: true},
			want: Registration,
		},
		{
			name: "registration dominates exhaustion",
			user: &account.UserRecord{IsRegistered: false, SMSUsage: &account.SMSUsage{MessagesSent: 9, MessageLimit: 5}},
			want: Registration,
		},
		{
			name: "exhausted at the limit",
			user: &account.UserRecord{IsRegistered: true, SMSUsage: &account.SMSUsage{MessagesSent: 5, MessageLimit: 5}},
			want: FreeTierExhausted,
		},
		{
			name: "exhausted past the limit",
			user: &account.UserRecord{IsRegistered: true, SMSUsage: &account.SMSUsage{MessagesSent: 6, MessageLimit: 5}},
			want: FreeTierExhausted,
		},
		{
			name: "usage remaining",
			user: &account.UserRecord{IsRegistered: true, SMSUsage: &account.SMSUsage{MessagesSent: 3, MessageLimit: 5}},
			want: GettingStarted,
		},
		{
			name: "absent usage is not exhausted",
			user: &account.UserRecord{IsRegistered: true},
			want: GettingStarted,
		},
		{
			name: "plan does not affect routing",
			user: &account.UserRecord{IsRegistered: true, Plan: "premium"},
			want: GettingStarted,
		},
		{
			name: "subscription overrides exhaustion",
			user: &account.UserRecord{IsRegistered: true, IsSubscribed: true, SMSUsage: &account.SMSUsage{MessagesSent: 100, MessageLimit: 5}},
			want: PrimaryApp,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.user))
		})
	}
}

func TestRoute_DoesNotMutate(t *testing.T) {
	u := &account.UserRecord{IsRegistered: true, SMSUsage: &account.SMSUsage{MessagesSent: 5, MessageLimit: 5}}
	before := *u.SMSUsage
	Route(u)
	Route(u)
	assert.Equal(t, before, *u.SMSUsage)
}

func TestDispatch(t *testing.T) {
	for _, d := range []Decision{Registration, FreeTierExhausted, GettingStarted, PrimaryApp} {
		dest := Dispatch(d)
		assert.Equal(t, d, dest.Decision)
		assert.NotEmpty(t, dest.Path)
	}
	assert.Equal(t, "/chat", Dispatch(PrimaryApp).Path)
	assert.Equal(t, Registration, Dispatch(Decision(0)).Decision)
	assert.Equal(t, "unknown", Decision(42).String())
}
