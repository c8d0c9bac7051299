package ssh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_Success(t *testing.T) {
	t.Parallel()
	assert.True(t, Result{ExitCode: 0}.Success())
	assert.False(t, Result{ExitCode: 1}.Success())
	assert.False(t, Result{ExitCode: 127}.Success())
}

func TestNewClient_DefaultPort(t *testing.T) {
	t.Parallel()
	c := NewClient("10.0.0.1", 0, "root", nil, "secret")
	assert.Equal(t, defaultRemotePort, c.port)

	c = NewClient("10.0.0.1", 2222, "root", nil, "secret")
	assert.Equal(t, 2222, c.port)
}

func TestAuthMethods(t *testing.T) {
	t.Parallel()

	t.Run("no credentials", func(t *testing.T) {
		t.Parallel()
		c := NewClient("10.0.0.1", 0, "root", nil, "")
		_, err := c.authMethods()
		require.Error(t, err)
	})

	t.Run("password only", func(t *testing.T) {
		t.Parallel()
		c := NewClient("10.0.0.1", 0, "root", nil, "secret")
		methods, err := c.authMethods()
		require.NoError(t, err)
		assert.Len(t, methods, 1)
	})

	t.Run("malformed key", func(t *testing.T) {
		t.Parallel()
		c := NewClient("10.0.0.1", 0, "root", []byte("not a key"), "")
		_, err := c.authMethods()
		require.Error(t, err)
	})
}
