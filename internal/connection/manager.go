package connection

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	goMongo "go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"mongoconn/internal/common"
	"mongoconn/internal/config"
	"mongoconn/internal/metrics"
	"mongoconn/internal/mongo"
)

const (
	RoleDefault = "default"
	RoleMaster  = "master"
	RoleReplica = "replica"
)

// Dialer connects to a single node. A non-nil creds authenticates the
// connection against authSource.
type Dialer interface {
	Dial(ctx context.Context, s mongo.NodeSettings, creds *mongo.Credentials, authSource string) (*goMongo.Client, error)
}

// Manager owns the topology and database handles of one process.
// Both handles are built lazily, at most once, and kept until Close.
type Manager struct {
	mu sync.Mutex

	dialer  Dialer
	logger  *zap.Logger
	metrics *metrics.Metrics

	cfg    config.TopologyConfig
	dbName string
	creds  mongo.Credentials

	conn     *Topology
	connCfg  config.TopologyConfig
	connAuth *mongo.Credentials
	connDB   string
	db       *Database
	dbCreds  mongo.Credentials
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the driver-backed dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithLogger sets the logger for the manager.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the manager.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithDatabase preselects the database so that Database works without Connect.
func WithDatabase(name string, creds mongo.Credentials) Option {
	return func(m *Manager) {
		m.dbName = name
		m.creds = creds
	}
}

// NewManager creates a manager for the given topology configuration.
func NewManager(cfg config.TopologyConfig, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg.Merge(config.TopologyConfig{}),
		dialer: mongo.NewDialer(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewManagerFromConfig creates a manager from loaded application configuration.
func NewManagerFromConfig(cfg *config.Config, opts ...Option) *Manager {
	base := []Option{WithDatabase(cfg.Database, mongo.Credentials{Username: cfg.Username, Password: cfg.Password})}
	return NewManager(cfg.Topology, append(base, opts...)...)
}

// ConnectOption adjusts a single Connect call.
type ConnectOption func(*connectRequest)

type connectRequest struct {
	topology config.TopologyConfig
	creds    mongo.Credentials
}

// WithCredentials authenticates the database handle against the selected
// database. Every node of the topology is dialed with them. Authentication
// only happens when both username and password are non-empty.
func WithCredentials(username, password string) ConnectOption {
	return func(r *connectRequest) {
		r.creds = mongo.Credentials{Username: username, Password: password}
	}
}

// WithTopology merges groups into the manager configuration.
func WithTopology(t config.TopologyConfig) ConnectOption {
	return func(r *connectRequest) {
		r.topology = r.topology.Merge(t)
	}
}

// WithDefault sets the default group.
func WithDefault(node config.NodeConfig) ConnectOption {
	return WithTopology(config.TopologyConfig{Default: &node})
}

// WithMaster sets the master group.
func WithMaster(node config.NodeConfig) ConnectOption {
	return WithTopology(config.TopologyConfig{Master: &node})
}

// WithSlaves sets the slaves group.
func WithSlaves(nodes ...config.NodeConfig) ConnectOption {
	return WithTopology(config.TopologyConfig{Slaves: append([]config.NodeConfig{}, nodes...)})
}

// Connect merges opts into the configuration, selects database name and
// returns its handle. Calling Connect again with the same arguments returns
// the same handle; arguments that would change an established handle are
// rejected with *common.ReconfigureError until Close is called.
func (m *Manager) Connect(ctx context.Context, name string, opts ...ConnectOption) (*Database, error) {
	var req connectRequest
	for _, opt := range opts {
		opt(&req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	merged := m.cfg.Merge(req.topology)
	if err := m.checkReconfigure(merged, name, req.creds); err != nil {
		m.logger.Warn("connect rejected", zap.String("database", name), zap.Error(err))
		return nil, err
	}

	m.cfg = merged
	m.dbName = name
	m.creds = req.creds

	return m.resolveDatabase(ctx)
}

// Connection returns the topology, building it if necessary.
func (m *Manager) Connection(ctx context.Context) (*Topology, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveConnection(ctx)
}

// Database returns the database handle, building it if necessary.
func (m *Manager) Database(ctx context.Context) (*Database, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveDatabase(ctx)
}

// Close disconnects every client and forgets both handles. A later Connect
// builds a fresh topology from the current configuration.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.conn != nil {
		err = m.conn.Disconnect(ctx)
		m.logger.Info("topology closed", zap.Stringer("topology", m.conn))
	}
	m.conn = nil
	m.connCfg = config.TopologyConfig{}
	m.connAuth = nil
	m.connDB = ""
	m.db = nil
	m.dbCreds = mongo.Credentials{}
	m.metrics.SetActiveReplicas(0)

	return err
}

// established returns the cached topology without building one.
func (m *Manager) established() *Topology {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// checkReconfigure relies on Merge keeping nil and empty Slaves distinct, so
// that an unchanged configuration compares equal to connCfg.
func (m *Manager) checkReconfigure(merged config.TopologyConfig, name string, creds mongo.Credentials) error {
	if m.conn != nil && !reflect.DeepEqual(merged, m.connCfg) {
		return &common.ReconfigureError{Op: "connect", Reason: "topology already established; call Close first"}
	}
	if m.db != nil && (name != m.db.name || creds != m.dbCreds) {
		return &common.ReconfigureError{
			Op:     "connect",
			Reason: fmt.Sprintf("database '%s' already selected; call Close first", m.db.name),
		}
	}
	return nil
}

// resolveConnection must be called with m.mu held. When a database with
// complete credentials is already selected, the topology is dialed
// authenticated so that it can serve that database directly.
func (m *Manager) resolveConnection(ctx context.Context) (*Topology, error) {
	if m.conn != nil {
		return m.conn, nil
	}

	cfg := m.cfg.Merge(config.TopologyConfig{})
	creds := m.pendingAuth()
	topo, err := m.buildTopology(ctx, cfg, creds)
	if err != nil {
		return nil, err
	}
	m.setConnection(topo, cfg, creds)
	return topo, nil
}

// resolveDatabase must be called with m.mu held.
func (m *Manager) resolveDatabase(ctx context.Context) (*Database, error) {
	topo, err := m.resolveConnection(ctx)
	if err != nil {
		return nil, err
	}
	if m.db != nil {
		return m.db, nil
	}
	if m.dbName == "" {
		return nil, &common.ConnectionError{Reason: common.ReasonNotConnected}
	}

	creds := m.pendingAuth()
	if creds != nil && !m.authenticatedWith(*creds) {
		if topo, err = m.reauthenticate(ctx, creds); err != nil {
			return nil, err
		}
	}

	m.db = &Database{name: m.dbName, topology: topo, authenticated: creds != nil}
	m.dbCreds = m.creds
	return m.db, nil
}

// pendingAuth returns the credentials the selected database authenticates
// with, or nil when it does not authenticate.
func (m *Manager) pendingAuth() *mongo.Credentials {
	if m.dbName == "" || !m.creds.Complete() {
		return nil
	}
	creds := m.creds
	return &creds
}

func (m *Manager) authenticatedWith(creds mongo.Credentials) bool {
	return m.connAuth != nil && *m.connAuth == creds && m.connDB == m.dbName
}

// reauthenticate dials the established configuration again with creds and
// replaces the unauthenticated topology, which is disconnected. On failure
// the established topology is kept.
func (m *Manager) reauthenticate(ctx context.Context, creds *mongo.Credentials) (*Topology, error) {
	topo, err := m.buildTopology(ctx, m.connCfg, creds)
	if err != nil {
		return nil, err
	}

	old := m.conn
	if err := old.Disconnect(ctx); err != nil {
		m.logger.Warn("failed to close replaced topology", zap.Stringer("topology", old), zap.Error(err))
	}
	m.setConnection(topo, m.connCfg, creds)
	return topo, nil
}

// buildTopology dials cfg, authenticating against the selected database when
// creds is set. Rejected credentials are returned unchanged; any other
// failure of the master or default node becomes a *common.ConnectionError.
func (m *Manager) buildTopology(ctx context.Context, cfg config.TopologyConfig, creds *mongo.Credentials) (*Topology, error) {
	authSource := ""
	if creds != nil {
		authSource = m.dbName
	}

	topo, err := m.dialTopology(ctx, cfg, creds, authSource)

	var authErr *common.AuthError
	switch {
	case err == nil:
		if creds != nil {
			m.metrics.ObserveAuthentication(authSource, nil)
			m.logger.Info("authenticated",
				zap.String("database", authSource),
				zap.String("username", creds.Username),
			)
		}
		return topo, nil
	case errors.As(err, &authErr):
		m.metrics.ObserveAuthentication(authSource, err)
		m.logger.Error("authentication failed",
			zap.String("database", authSource),
			zap.String("username", authErr.Username),
			zap.String("address", authErr.Address),
			zap.Error(err),
		)
		return nil, err
	default:
		address := masterSettings(cfg).Address()
		m.logger.Error("cannot connect to the database", zap.String("address", address), zap.Error(err))
		return nil, &common.ConnectionError{Address: address, Reason: common.ReasonCannotConnect, Err: err}
	}
}

func (m *Manager) setConnection(topo *Topology, cfg config.TopologyConfig, creds *mongo.Credentials) {
	m.conn = topo
	m.connCfg = cfg
	m.connAuth = creds
	m.connDB = ""
	if creds != nil {
		m.connDB = m.dbName
	}
	m.metrics.SetActiveReplicas(len(topo.replicas))
	m.logger.Info("topology established",
		zap.Stringer("topology", topo),
		zap.Int("replicas", len(topo.replicas)),
		zap.Int("excluded", len(topo.excluded)),
		zap.Bool("authenticated", creds != nil),
	)
}

// dialTopology builds a topology from cfg. Only master or default failures
// are returned; replica failures, rejected credentials included, are
// recorded on the topology.
func (m *Manager) dialTopology(ctx context.Context, cfg config.TopologyConfig, creds *mongo.Credentials, authSource string) (*Topology, error) {
	if !cfg.HasMaster() {
		if len(cfg.Slaves) > 0 {
			m.logger.Warn("slaves configured without master; using the default node only",
				zap.Int("slaves", len(cfg.Slaves)))
		}
		node, err := m.dialNode(ctx, RoleDefault, masterSettings(cfg), creds, authSource)
		if err != nil {
			return nil, err
		}
		return newSingleTopology(node), nil
	}

	master, err := m.dialNode(ctx, RoleMaster, masterSettings(cfg), creds, authSource)
	if err != nil {
		return nil, err
	}

	var (
		replicas []Member
		excluded []*common.ReplicaError
	)
	for i, raw := range cfg.Slaves {
		s := BuildNodeSettings(raw, true)
		replica, err := m.dialNode(ctx, RoleReplica, s, creds, authSource)
		if err != nil {
			replicaErr := &common.ReplicaError{Index: i, Address: s.Address(), Err: err}
			excluded = append(excluded, replicaErr)
			m.metrics.IncrementReplicaExclusions(s.Address())
			m.logger.Warn("replica excluded from topology",
				zap.Int("index", i),
				zap.String("address", s.Address()),
				zap.Error(err),
			)
			continue
		}
		replicas = append(replicas, replica)
	}

	return newMasterSlaveTopology(master, replicas, excluded), nil
}

func (m *Manager) dialNode(ctx context.Context, role string, s mongo.NodeSettings, creds *mongo.Credentials, authSource string) (Member, error) {
	start := time.Now()
	client, err := m.dialer.Dial(ctx, s, creds, authSource)
	m.metrics.ObserveNodeConnect(role, err, time.Since(start))
	if err != nil {
		return Member{}, err
	}
	m.logger.Debug("node connected",
		zap.String("role", role),
		zap.String("address", s.Address()),
		zap.Bool("slave_okay", s.SlaveOkay),
	)
	return Member{Settings: s, Client: client}, nil
}

// masterSettings returns the settings of the master, or of the default node
// when no master is declared.
func masterSettings(cfg config.TopologyConfig) mongo.NodeSettings {
	if cfg.Master != nil {
		return BuildNodeSettings(*cfg.Master, false)
	}
	var node config.NodeConfig
	if cfg.Default != nil {
		node = *cfg.Default
	}
	return BuildNodeSettings(node, false)
}
