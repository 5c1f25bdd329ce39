//go:build integration

package integration

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap/zaptest"

	"mongoconn/internal/common"
	"mongoconn/internal/config"
	"mongoconn/internal/connection"
)

const (
	rootUser     = "root"
	rootPassword = "secret"
)

// setupMongoContainer starts MongoDB with authentication enabled.
func setupMongoContainer(t *testing.T) (host string, port int) {
	ctx := context.Background()
	mongoC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:latest",
			ExposedPorts: []string{"27017/tcp"},
			Env: map[string]string{
				"MONGO_INITDB_ROOT_USERNAME": rootUser,
				"MONGO_INITDB_ROOT_PASSWORD": rootPassword,
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort(nat.Port("27017/tcp")),
				wait.ForLog("Waiting for connections").WithOccurrence(2),
			),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = mongoC.Terminate(context.Background())
	})

	host, err = mongoC.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := mongoC.MappedPort(ctx, "27017")
	require.NoError(t, err)

	return host, mappedPort.Int()
}

func newManager(t *testing.T, cfg config.TopologyConfig) *connection.Manager {
	m := connection.NewManager(cfg, connection.WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(func() {
		_ = m.Close(context.Background())
	})
	return m
}

func TestConnect_AuthenticatedRoundTrip(t *testing.T) {
	host, port := setupMongoContainer(t)
	ctx := context.Background()

	m := newManager(t, config.TopologyConfig{Default: &config.NodeConfig{Host: host, Port: port}})

	db, err := m.Connect(ctx, "admin", connection.WithCredentials(rootUser, rootPassword))
	require.NoError(t, err)
	assert.True(t, db.Authenticated())

	_, err = db.Collection("items").InsertOne(ctx, bson.M{"name": "test", "value": 123})
	require.NoError(t, err)

	var got bson.M
	require.NoError(t, db.Reader().Collection("items").FindOne(ctx, bson.M{"name": "test"}).Decode(&got))
	assert.EqualValues(t, 123, got["value"])

	again, err := m.Connect(ctx, "admin", connection.WithCredentials(rootUser, rootPassword))
	require.NoError(t, err)
	assert.Same(t, db, again)

	topo, err := m.Connection(ctx)
	require.NoError(t, err)
	assert.Same(t, db.Topology(), topo)

	require.NoError(t, connection.Healthcheck(m)(ctx))
}

func TestConnect_WrongPassword(t *testing.T) {
	host, port := setupMongoContainer(t)

	m := newManager(t, config.TopologyConfig{Default: &config.NodeConfig{Host: host, Port: port}})

	db, err := m.Connect(context.Background(), "admin", connection.WithCredentials(rootUser, "wrong"))
	require.Error(t, err)
	assert.Nil(t, db)

	var connErr *common.ConnectionError
	assert.False(t, errors.As(err, &connErr), "authentication failures are not connection errors")
	var authErr *common.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "admin", authErr.Database)
	assert.Equal(t, rootUser, authErr.Username)
}

func TestConnect_UnreachableReplicaExcluded(t *testing.T) {
	host, port := setupMongoContainer(t)
	timeout := 500 * time.Millisecond

	m := newManager(t, config.TopologyConfig{
		Master: &config.NodeConfig{Host: host, Port: port},
		Slaves: []config.NodeConfig{
			{Host: host, Port: port},
			{Host: "127.0.0.1", Port: 1, Timeout: &timeout},
		},
	})

	topo, err := m.Connection(context.Background())
	require.NoError(t, err)
	assert.Len(t, topo.Replicas(), 1)
	require.Len(t, topo.Excluded(), 1)
	assert.Equal(t, "127.0.0.1:1", topo.Excluded()[0].Address)
}

func TestConnect_UnreachableMaster(t *testing.T) {
	timeout := 500 * time.Millisecond
	m := newManager(t, config.TopologyConfig{
		Master: &config.NodeConfig{Host: "127.0.0.1", Port: 1, Timeout: &timeout},
	})

	_, err := m.Connect(context.Background(), "app")

	var connErr *common.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, common.ReasonCannotConnect, connErr.Error())
}

// TestConnectCommand runs the CLI against the container.
func TestConnectCommand(t *testing.T) {
	host, port := setupMongoContainer(t)

	cmd := exec.Command("go", "run", "../main.go", "connect",
		"--host", host,
		"--port", strconv.Itoa(port),
		"--db", "admin",
		"--user", rootUser,
		"--password", rootPassword,
		"--log-format", "console",
	)
	output, err := cmd.Output()
	require.NoError(t, err, string(output))

	assert.Contains(t, string(output), "Database:      admin")
	assert.Contains(t, string(output), "Authenticated: true")
}
