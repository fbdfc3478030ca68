package sshutil

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/orion-fleet/orion/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode errors.Code
		wantMsg  string
	}{
		{
			name:     "auth failure",
			err:      stderrors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password], no supported methods remain"),
			wantCode: errors.ErrAuth,
			wantMsg:  "Authentication Failed",
		},
		{
			name:     "permission denied",
			err:      stderrors.New("Permission denied (publickey)"),
			wantCode: errors.ErrAuth,
		},
		{
			name:     "auth wins over timeout",
			err:      stderrors.New("authentication timed out"),
			wantCode: errors.ErrAuth,
		},
		{
			name:     "io timeout",
			err:      stderrors.New("dial tcp 10.0.0.5:22: i/o timeout"),
			wantCode: errors.ErrTimeout,
			wantMsg:  "Connection Timed Out",
		},
		{
			name:     "timed out",
			err:      stderrors.New("operation timed out"),
			wantCode: errors.ErrTimeout,
		},
		{
			name:     "connection refused",
			err:      stderrors.New("dial tcp 10.0.0.5:22: connect: connection refused"),
			wantCode: errors.ErrUnreachable,
			wantMsg:  "host unreachable or port closed",
		},
		{
			name:     "no route",
			err:      stderrors.New("dial tcp 10.0.0.5:22: connect: no route to host"),
			wantCode: errors.ErrUnreachable,
		},
		{
			name:     "network unreachable",
			err:      stderrors.New("connect: network is unreachable"),
			wantCode: errors.ErrUnreachable,
		},
		{
			name:     "unable to open",
			err:      stderrors.New("Unable to open TCP connection"),
			wantCode: errors.ErrUnreachable,
		},
		{
			name:     "uncategorized keeps the raw message",
			err:      stderrors.New("ssh: handshake failed: EOF"),
			wantCode: errors.ErrSSH,
			wantMsg:  "ssh: handshake failed: EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, got.Message)
			}
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestClassify_StructuredPassesThrough(t *testing.T) {
	original := errors.New(errors.ErrConfig, "privateKeyPath required for key auth", "")
	wrapped := fmt.Errorf("connect: %w", original)

	assert.Same(t, original, Classify(original))
	assert.Same(t, original, Classify(wrapped))
}

func TestClassify_PreservesCause(t *testing.T) {
	cause := stderrors.New("connect: connection refused")
	got := Classify(cause)

	assert.True(t, stderrors.Is(got, cause))
}

func TestSuggestionForDialError(t *testing.T) {
	tests := []struct {
		err      string
		contains string
	}{
		{"connect: connection refused", "Is SSH running"},
		{"connect: no route to host", "Can't route"},
		{"connect: network is unreachable", "Can't route"},
		{"something else", "ping"},
	}

	for _, tt := range tests {
		t.Run(tt.err, func(t *testing.T) {
			assert.Contains(t, suggestionForDialError(stderrors.New(tt.err)), tt.contains)
		})
	}
}
