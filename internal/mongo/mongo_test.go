package mongo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"mongoconn/internal/common"
)

func TestNodeSettings_Address(t *testing.T) {
	s := NodeSettings{Host: "db1", Port: 27018}
	assert.Equal(t, "db1:27018", s.Address())
	assert.Equal(t, "mongodb://db1:27018", s.URI())

	v6 := NodeSettings{Host: "::1", Port: 27017}
	assert.Equal(t, "[::1]:27017", v6.Address())
}

func TestCredentials_Complete(t *testing.T) {
	assert.True(t, Credentials{Username: "u", Password: "p"}.Complete())
	assert.False(t, Credentials{Username: "u"}.Complete())
	assert.False(t, Credentials{Password: "p"}.Complete())
	assert.False(t, Credentials{}.Complete())
}

func TestClientOptions(t *testing.T) {
	poolSize := uint64(25)
	s := NodeSettings{
		Host:           "db1",
		Port:           27018,
		PoolSize:       &poolSize,
		Timeout:        3 * time.Second,
		NetworkTimeout: 7 * time.Second,
	}

	opts := ClientOptions(s, nil, "")

	assert.Equal(t, []string{"db1:27018"}, opts.Hosts)
	require.NotNil(t, opts.Direct)
	assert.True(t, *opts.Direct)
	require.NotNil(t, opts.MaxPoolSize)
	assert.Equal(t, uint64(25), *opts.MaxPoolSize)
	require.NotNil(t, opts.ConnectTimeout)
	assert.Equal(t, 3*time.Second, *opts.ConnectTimeout)
	require.NotNil(t, opts.ServerSelectionTimeout)
	assert.Equal(t, 3*time.Second, *opts.ServerSelectionTimeout)
	require.NotNil(t, opts.SocketTimeout)
	assert.Equal(t, 7*time.Second, *opts.SocketTimeout)
	assert.Nil(t, opts.Auth)
	assert.Equal(t, readpref.PrimaryMode, opts.ReadPreference.Mode())
}

func TestClientOptions_UnsetValuesKeepDriverDefaults(t *testing.T) {
	opts := ClientOptions(NodeSettings{Host: "db1", Port: 27017}, nil, "")

	assert.Nil(t, opts.MaxPoolSize)
	assert.Nil(t, opts.ConnectTimeout)
	assert.Nil(t, opts.SocketTimeout)
}

func TestClientOptions_Credentials(t *testing.T) {
	opts := ClientOptions(NodeSettings{Host: "db1", Port: 27017}, &Credentials{Username: "alice", Password: "secret"}, "app")

	require.NotNil(t, opts.Auth)
	assert.Equal(t, "alice", opts.Auth.Username)
	assert.Equal(t, "secret", opts.Auth.Password)
	assert.Equal(t, "app", opts.Auth.AuthSource)
}

func TestReadPreference(t *testing.T) {
	assert.Equal(t, readpref.SecondaryPreferredMode, ReadPreference(NodeSettings{SlaveOkay: true}).Mode())
	assert.Equal(t, readpref.PrimaryMode, ReadPreference(NodeSettings{}).Mode())
}

func TestDialer_Dial_Unreachable(t *testing.T) {
	timeout := 200 * time.Millisecond
	s := NodeSettings{Host: "unreachable.invalid", Port: 27017, Timeout: timeout}

	client, err := NewDialer().Dial(context.Background(), s, nil, "")

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to ping MongoDB at unreachable.invalid:27017")
}

func TestDialer_Dial_UnreachableWithCredentialsIsNotAuthError(t *testing.T) {
	s := NodeSettings{Host: "unreachable.invalid", Port: 27017, Timeout: 200 * time.Millisecond}

	client, err := NewDialer().Dial(context.Background(), s, &Credentials{Username: "alice", Password: "secret"}, "app")

	require.Error(t, err)
	assert.Nil(t, client)
	var authErr *common.AuthError
	assert.False(t, errors.As(err, &authErr))
	assert.True(t, IsConnectivityError(err))
}

func TestIsConnectivityError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "wrapped deadline", err: fmt.Errorf("failed to ping MongoDB at db1:27017: %w", context.DeadlineExceeded), want: true},
		{name: "canceled", err: context.Canceled, want: true},
		{name: "server answered", err: errors.New("sasl conversation error: AuthenticationFailed"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectivityError(tt.err))
		})
	}
}
