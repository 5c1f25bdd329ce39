package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &ConnectionError{Address: "db1:27017", Reason: ReasonCannotConnect, Err: cause}

	assert.Equal(t, "Cannot connect to the database", err.Error())
	assert.ErrorIs(t, err, cause)

	notConnected := &ConnectionError{Reason: ReasonNotConnected}
	assert.Equal(t, "Not connected to the database", notConnected.Error())
	assert.Nil(t, notConnected.Unwrap())
}

func TestReplicaError(t *testing.T) {
	cause := errors.New("timeout")
	err := &ReplicaError{Index: 2, Address: "db3:27017", Err: cause}

	assert.Equal(t, "replica 2 at 'db3:27017' excluded: timeout", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestAuthError(t *testing.T) {
	cause := errors.New("sasl conversation error: AuthenticationFailed")
	err := &AuthError{Address: "db1:27017", Database: "app", Username: "alice", Err: cause}

	assert.Equal(t, "authentication of 'alice' on database 'app' failed at db1:27017: sasl conversation error: AuthenticationFailed", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestReconfigureError(t *testing.T) {
	err := &ReconfigureError{Op: "connect", Reason: "database 'app' already selected"}
	assert.Equal(t, "cannot reconfigure during 'connect': database 'app' already selected", err.Error())
}

func TestConfigError(t *testing.T) {
	cause := errors.New("bad yaml")
	err := &ConfigError{Op: "read", Reason: "bad yaml", Err: cause}

	assert.Equal(t, "configuration error during 'read': bad yaml", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestFileIOError(t *testing.T) {
	cause := errors.New("permission denied")
	err := &FileIOError{Op: "read config file", Reason: "permission denied", Err: cause}

	assert.Equal(t, "file I/O error during 'read config file': permission denied", err.Error())
	assert.ErrorIs(t, err, cause)
}
