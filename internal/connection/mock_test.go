package connection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	goMongo "go.mongodb.org/mongo-driver/mongo"

	"mongoconn/internal/common"
	"mongoconn/internal/mongo"
)

var (
	errUnreachable = errors.New("server selection timeout")
	errAuth        = &common.AuthError{
		Address:  "db1:27017",
		Database: "app",
		Username: "alice",
		Err:      errors.New("sasl conversation error: AuthenticationFailed"),
	}
)

// MockDialer is a mock implementation of Dialer interface.
type MockDialer struct {
	mock.Mock
}

func (d *MockDialer) Dial(ctx context.Context, s mongo.NodeSettings, creds *mongo.Credentials, authSource string) (*goMongo.Client, error) {
	args := d.Called(ctx, s, creds, authSource)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	return args.Get(0).(*goMongo.Client), nil
}

// authCalls returns how many dials carried credentials.
func (d *MockDialer) authCalls() int {
	n := 0
	for _, call := range d.Calls {
		if creds, _ := call.Arguments.Get(2).(*mongo.Credentials); creds != nil {
			n++
		}
	}
	return n
}

func hostIs(host string) any {
	return mock.MatchedBy(func(s mongo.NodeSettings) bool { return s.Host == host })
}

func noCreds() any {
	return mock.MatchedBy(func(c *mongo.Credentials) bool { return c == nil })
}

func credsFor(username, password string) any {
	return mock.MatchedBy(func(c *mongo.Credentials) bool {
		return c != nil && c.Username == username && c.Password == password
	})
}

// newTestClient returns a client that never dialed; the driver connects lazily.
func newTestClient(t *testing.T, host string) *goMongo.Client {
	t.Helper()
	s := mongo.NodeSettings{Host: host, Port: mongo.DefaultPort}
	client, err := goMongo.Connect(context.Background(), mongo.ClientOptions(s, nil, ""))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})
	return client
}
