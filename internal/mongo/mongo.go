package mongo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"mongoconn/internal/common"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 27017
)

// NodeSettings is the normalized connection settings of a single node.
type NodeSettings struct {
	Host           string
	Port           int
	PoolSize       *uint64
	Timeout        time.Duration // Zero leaves the driver default.
	NetworkTimeout time.Duration // Zero leaves the driver default.
	SlaveOkay      bool
}

// Address returns host:port.
func (s NodeSettings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URI returns the connection string for the node.
func (s NodeSettings) URI() string {
	return "mongodb://" + s.Address()
}

// Credentials is a username/password pair used to authenticate against a database.
type Credentials struct {
	Username string
	Password string
}

// Complete reports whether both username and password are present.
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != ""
}

// ClientOptions builds driver options for a direct connection to one node.
// When creds is non-nil the client authenticates against authSource.
func ClientOptions(s NodeSettings, creds *Credentials, authSource string) *options.ClientOptions {
	opts := options.Client().
		ApplyURI(s.URI()).
		SetDirect(true).
		SetReadPreference(ReadPreference(s))

	if s.PoolSize != nil {
		opts.SetMaxPoolSize(*s.PoolSize)
	}
	if s.Timeout > 0 {
		opts.SetConnectTimeout(s.Timeout)
		opts.SetServerSelectionTimeout(s.Timeout)
	}
	if s.NetworkTimeout > 0 {
		opts.SetSocketTimeout(s.NetworkTimeout)
	}
	if creds != nil {
		opts.SetAuth(options.Credential{
			AuthSource: authSource,
			Username:   creds.Username,
			Password:   creds.Password,
		})
	}
	return opts
}

// ReadPreference returns secondary-preferred reads for slave-okay nodes and primary otherwise.
func ReadPreference(s NodeSettings) *readpref.ReadPref {
	if s.SlaveOkay {
		return readpref.SecondaryPreferred()
	}
	return readpref.Primary()
}

// Dialer connects to single nodes with the official driver.
type Dialer struct{}

// NewDialer creates a new Dialer.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Dial establishes a connection to the node and pings it. When creds is set
// and the node answered but refused them, the error is a *common.AuthError.
func (d *Dialer) Dial(ctx context.Context, s NodeSettings, creds *Credentials, authSource string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, ClientOptions(s, creds, authSource))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB at %s: %w", s.Address(), err)
	}

	// Ping the node to verify connection.
	if err := client.Ping(ctx, ReadPreference(s)); err != nil {
		_ = client.Disconnect(context.Background())
		if creds != nil && !IsConnectivityError(err) {
			return nil, &common.AuthError{
				Address:  s.Address(),
				Database: authSource,
				Username: creds.Username,
				Err:      err,
			}
		}
		return nil, fmt.Errorf("failed to ping MongoDB at %s: %w", s.Address(), err)
	}

	return client, nil
}

// IsConnectivityError reports whether err means the node could not be
// reached in time, as opposed to a node that answered with an error.
func IsConnectivityError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}
