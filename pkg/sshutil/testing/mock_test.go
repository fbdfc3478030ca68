package testing

import (
	"errors"
	"testing"

	"github.com/orion-fleet/orion/pkg/sshutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockConn_Builtins(t *testing.T) {
	m := NewMockConn("orin")

	_, _, code, err := m.Exec("true")
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	_, _, code, err = m.Exec("false")
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	stdout, _, code, err := m.Exec("echo hi")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "hi\n", string(stdout))
}

func TestMockConn_ExactBeatsPattern(t *testing.T) {
	m := NewMockConn("orin")
	m.SetPatternResponse(`^nvpmodel`, CommandResponse{Stdout: []byte("pattern")})
	m.SetCommandResponse("nvpmodel -q", CommandResponse{Stdout: []byte("exact")})

	stdout, _, _, _ := m.Exec("nvpmodel -q")
	assert.Equal(t, "exact", string(stdout))

	stdout, _, _, _ = m.Exec("nvpmodel -m 0")
	assert.Equal(t, "pattern", string(stdout))
}

func TestMockConn_PatternsInOrder(t *testing.T) {
	m := NewMockConn("orin")
	m.SetPatternResponse(`tegrastats`, CommandResponse{Stdout: []byte("first")})
	m.SetPatternResponse(`.*`, CommandResponse{Stdout: []byte("second")})

	stdout, _, _, _ := m.Exec("tegrastats --count 1")
	assert.Equal(t, "first", string(stdout))
}

func TestMockConn_ShellMetacharactersAreLiteral(t *testing.T) {
	m := NewMockConn("orin")
	cmd := "sh -lc 'a || b'"
	m.SetCommandResponse(cmd, CommandResponse{Stdout: []byte("ok")})

	stdout, _, _, _ := m.Exec(cmd)
	assert.Equal(t, "ok", string(stdout))

	stdout, _, _, _ = m.Exec("uptime")
	assert.Empty(t, stdout, "an exact command never matches other commands")
}

func TestMockConn_ExecErrorAndClose(t *testing.T) {
	m := NewMockConn("orin")
	boom := errors.New("ssh: unexpected packet in response to channel open")

	m.SetExecError(boom)
	_, _, code, err := m.Exec("true")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, -1, code)

	m.SetExecError(nil)
	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())

	_, _, _, err = m.Exec("true")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMockConn_Calls(t *testing.T) {
	m := NewMockConn("orin")
	m.Exec("true")
	m.Exec("uptime")
	m.Exec("true")

	assert.Equal(t, []string{"true", "uptime", "true"}, m.Calls())
	assert.Equal(t, 2, m.CallCount("true"))
}

func TestFakeTransport(t *testing.T) {
	cred := sshutil.Credential{Host: "10.0.0.5", Port: 22, Username: "jetson", AuthType: sshutil.AuthPassword}

	t.Run("hands out connections", func(t *testing.T) {
		f := NewFakeTransport()
		conn, err := f.Authenticate(cred)
		require.NoError(t, err)

		assert.Equal(t, 1, f.Calls())
		assert.Same(t, f.LastConn(), conn)
		assert.Equal(t, "10.0.0.5", conn.GetHost())
	})

	t.Run("configured error", func(t *testing.T) {
		f := NewFakeTransport()
		boom := errors.New("Authentication Failed")
		f.SetError(boom)

		conn, err := f.Authenticate(cred)
		assert.Nil(t, conn)
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, f.LastConn())
	})

	t.Run("validates credentials", func(t *testing.T) {
		f := NewFakeTransport()
		bad := cred
		bad.AuthType = "kerberos"

		_, err := f.Authenticate(bad)
		assert.Error(t, err)
		assert.Empty(t, f.Conns())
	})

	t.Run("factory", func(t *testing.T) {
		f := NewFakeTransport()
		custom := NewMockConn("custom")
		f.SetConnFactory(func(sshutil.Credential) *MockConn { return custom })

		conn, err := f.Authenticate(cred)
		require.NoError(t, err)
		assert.Same(t, custom, conn)
	})
}
