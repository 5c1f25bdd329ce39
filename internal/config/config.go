package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"mongoconn/internal/common"
)

const (
	GroupDefault = "default"
	GroupMaster  = "master"
	GroupSlaves  = "slaves"
)

// NodeConfig is the raw configuration of a single database node.
// Nil pointers mean the key was absent. Timeouts given as bare numbers are
// seconds; strings with a unit ("500ms", "2m") are parsed as durations.
type NodeConfig struct {
	Host           string         `mapstructure:"host"`
	Port           int            `mapstructure:"port"`
	PoolSize       *uint64        `mapstructure:"pool_size"`
	Timeout        *time.Duration `mapstructure:"timeout"`
	NetworkTimeout *time.Duration `mapstructure:"network_timeout"`
	SlaveOkay      *bool          `mapstructure:"slave_okay"`
}

// TopologyConfig maps the server groups to their node configuration.
type TopologyConfig struct {
	Default *NodeConfig  `mapstructure:"default"`
	Master  *NodeConfig  `mapstructure:"master"`
	Slaves  []NodeConfig `mapstructure:"slaves"`
}

// Merge returns a new TopologyConfig in which every group set in other replaces
// the group of the same name. Groups are replaced whole, never merged field by field.
// Nil and empty Slaves stay distinct; the manager compares merged values with
// reflect.DeepEqual to detect a reconfiguration.
func (t TopologyConfig) Merge(other TopologyConfig) TopologyConfig {
	merged := t.clone()
	if other.Default != nil {
		n := *other.Default
		merged.Default = &n
	}
	if other.Master != nil {
		n := *other.Master
		merged.Master = &n
	}
	if other.Slaves != nil {
		merged.Slaves = append([]NodeConfig{}, other.Slaves...)
	}
	return merged
}

// HasMaster reports whether an explicit master/slave split is declared.
func (t TopologyConfig) HasMaster() bool {
	return t.Master != nil
}

func (t TopologyConfig) clone() TopologyConfig {
	var c TopologyConfig
	if t.Default != nil {
		n := *t.Default
		c.Default = &n
	}
	if t.Master != nil {
		n := *t.Master
		c.Master = &n
	}
	if t.Slaves != nil {
		c.Slaves = append([]NodeConfig{}, t.Slaves...)
	}
	return c
}

// Config holds all configuration for the application.
type Config struct {
	// Path to an explicit config file. Empty means ~/.mongoconn/config.yaml.
	File string

	// Topology configuration.
	Topology TopologyConfig

	// Database selection.
	Database string
	Username string
	Password string

	// Application configuration.
	MetricsAddr    string
	LogLevel       string
	LogFormat      string
	HealthInterval time.Duration
}

// Load loads configuration from environment variables and config file.
func (c *Config) Load() error {
	v := viper.New()

	// Set default values.
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("health_interval", 30*time.Second)

	// Read from environment variables.
	v.SetEnvPrefix("MONGOCONN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if c.File != "" {
		v.SetConfigFile(c.File)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return &common.FileIOError{Op: "get user home dir", Reason: err.Error(), Err: err}
		}
		v.AddConfigPath(filepath.Join(home, ".mongoconn"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		// Ignore error if config file doesn't exist, but wrap other errors.
		var notFoundErr viper.ConfigFileNotFoundError
		if c.File != "" || !errors.As(err, &notFoundErr) {
			return &common.FileIOError{Op: "read config file", Reason: err.Error(), Err: err}
		}
	}

	// Only set values if they are not already set by flags.
	if c.Database == "" {
		c.Database = v.GetString("database")
	}
	if c.Username == "" {
		c.Username = v.GetString("username")
	}
	if c.Password == "" {
		c.Password = v.GetString("password")
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = v.GetString("metrics_addr")
	}
	if c.LogLevel == "" {
		c.LogLevel = v.GetString("log_level")
	}
	if c.LogFormat == "" {
		c.LogFormat = v.GetString("log_format")
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = v.GetDuration("health_interval")
	}

	if c.Topology.Default == nil {
		node, err := nodeFromViper(v, GroupDefault)
		if err != nil {
			return err
		}
		c.Topology.Default = node
	}
	if c.Topology.Master == nil {
		node, err := nodeFromViper(v, GroupMaster)
		if err != nil {
			return err
		}
		c.Topology.Master = node
	}
	if c.Topology.Slaves == nil && v.IsSet(GroupSlaves) {
		var slaves []NodeConfig
		if err := v.UnmarshalKey(GroupSlaves, &slaves, viper.DecodeHook(timeoutDecodeHook())); err != nil {
			return &common.ConfigError{Op: "decode slaves", Reason: err.Error(), Err: err}
		}
		c.Topology.Slaves = slaves
	}

	return nil
}

// nodeFromViper reads one node group key by key, so that both nested file
// values and MONGOCONN_<GROUP>_<KEY> environment variables are honored.
// It returns nil when no key of the group is set.
func nodeFromViper(v *viper.Viper, group string) (*NodeConfig, error) {
	key := func(name string) string { return group + "." + name }

	var (
		node  NodeConfig
		found bool
	)
	if v.IsSet(key("host")) {
		node.Host = v.GetString(key("host"))
		found = true
	}
	if v.IsSet(key("port")) {
		node.Port = v.GetInt(key("port"))
		found = true
	}
	if v.IsSet(key("pool_size")) {
		size := v.GetUint64(key("pool_size"))
		node.PoolSize = &size
		found = true
	}
	if v.IsSet(key("timeout")) {
		d, err := parseTimeout(v.Get(key("timeout")))
		if err != nil {
			return nil, &common.ConfigError{Op: "decode " + key("timeout"), Reason: err.Error(), Err: err}
		}
		node.Timeout = &d
		found = true
	}
	if v.IsSet(key("network_timeout")) {
		d, err := parseTimeout(v.Get(key("network_timeout")))
		if err != nil {
			return nil, &common.ConfigError{Op: "decode " + key("network_timeout"), Reason: err.Error(), Err: err}
		}
		node.NetworkTimeout = &d
		found = true
	}
	if v.IsSet(key("slave_okay")) {
		ok := v.GetBool(key("slave_okay"))
		node.SlaveOkay = &ok
		found = true
	}
	if !found {
		return nil, nil
	}
	return &node, nil
}

// parseTimeout reads a timeout value. Numbers, including numeric strings
// from the environment, are seconds.
func parseTimeout(raw any) (time.Duration, error) {
	if d, ok := raw.(time.Duration); ok {
		return d, nil
	}
	if _, ok := raw.(bool); !ok {
		if secs, err := cast.ToFloat64E(raw); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
	}
	return cast.ToDurationE(raw)
}

// timeoutDecodeHook applies parseTimeout to every time.Duration field.
func timeoutDecodeHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}
		return parseTimeout(data)
	}
}

// Validate checks that every configured node is usable.
func (c *Config) Validate() error {
	if err := validateNode(GroupDefault, c.Topology.Default); err != nil {
		return err
	}
	if err := validateNode(GroupMaster, c.Topology.Master); err != nil {
		return err
	}
	for i := range c.Topology.Slaves {
		if err := validateNode(fmt.Sprintf("%s[%d]", GroupSlaves, i), &c.Topology.Slaves[i]); err != nil {
			return err
		}
	}
	if c.HealthInterval < 0 {
		return &common.ConfigError{Op: "validate", Reason: "health_interval must not be negative"}
	}
	return nil
}

func validateNode(name string, n *NodeConfig) error {
	if n == nil {
		return nil
	}
	if n.Port < 0 || n.Port > 65535 {
		return &common.ConfigError{Op: "validate", Reason: fmt.Sprintf("%s: port %d out of range", name, n.Port)}
	}
	if n.PoolSize != nil && *n.PoolSize == 0 {
		return &common.ConfigError{Op: "validate", Reason: fmt.Sprintf("%s: pool_size must be greater than 0", name)}
	}
	if n.Timeout != nil && *n.Timeout < 0 {
		return &common.ConfigError{Op: "validate", Reason: fmt.Sprintf("%s: timeout must not be negative", name)}
	}
	if n.NetworkTimeout != nil && *n.NetworkTimeout < 0 {
		return &common.ConfigError{Op: "validate", Reason: fmt.Sprintf("%s: network_timeout must not be negative", name)}
	}
	return nil
}
