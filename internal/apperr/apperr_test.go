// ABOUTME: Tests for error classification and user message mapping
// ABOUTME: Covers kind/code extraction through wrapping and errors.Is matching

package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindAndCodeSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("login: %w", Auth(CodeInvalidCredentials, "bad password"))

	assert.Equal(t, KindAuth, KindOf(err))
	assert.Equal(t, CodeInvalidCredentials, CodeOf(err))
	assert.True(t, IsKind(err, KindAuth))
	assert.False(t, IsKind(err, KindNetwork))
}

func TestErrorsIsMatchesKindAndCode(t *testing.T) {
	err := fmt.Errorf("signup: %w", Auth(CodeAccountExists, ""))

	assert.True(t, errors.Is(err, Auth(CodeAccountExists, "")))
	assert.True(t, errors.Is(err, &Error{Kind: KindAuth}), "empty target code matches any auth error")
	assert.False(t, errors.Is(err, Auth(CodeInvalidCredentials, "")))
	assert.False(t, errors.Is(err, Validation(CodeAccountExists, "")))
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"merge is silent", Merge(CodeTransport, errors.New("boom")), ""},
		{"network is generic", Network(CodeTransport, errors.New("dial")), genericNetworkMessage},
		{"unclassified is generic", errors.New("mystery"), genericNetworkMessage},
		{"known auth code", Auth(CodeAccountExists, "dup"), userMessages[CodeAccountExists]},
		{"unknown auth code uses msg", Auth("weird", "server said no"), "server said no"},
		{"validation", Validation(CodePhoneInvalid, ""), userMessages[CodePhoneInvalid]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestNilCauseStaysNil(t *testing.T) {
	assert.Nil(t, Network(CodeTransport, nil))
	assert.Nil(t, Merge(CodeTransport, nil))
	assert.Nil(t, Wrap(nil, KindInternal, "x"))
}
