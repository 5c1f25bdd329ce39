package flags

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"mongoconn/internal/common"
	"mongoconn/internal/config"
	"mongoconn/internal/connection"
)

// AddGlobalFlags adds flags shared by every command.
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "Config file (default is $HOME/.mongoconn/config.yaml).")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error).")
	cmd.PersistentFlags().String("log-format", "", "Log format (json, console).")
}

// AddConnectionFlags adds MongoDB connection flags to the command.
func AddConnectionFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "MongoDB host of the default node.")
	cmd.Flags().Int("port", 0, "MongoDB port of the default node.")
	cmd.Flags().String("master", "", "Master node as host:port; enables master/slave topology.")
	cmd.Flags().StringSlice("slave", nil, "Replica node as host:port (repeatable).")
	cmd.Flags().String("user", "", "MongoDB username.")
	cmd.Flags().String("password", "", "MongoDB password.")
	cmd.Flags().String("db", "", "MongoDB database name.")
}

// LoadConfig builds the application configuration from global flags, env and config file.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := &config.Config{}
	cfg.File, _ = cmd.Flags().GetString("config")
	cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	cfg.LogFormat, _ = cmd.Flags().GetString("log-format")
	if f := cmd.Flags().Lookup("db"); f != nil {
		cfg.Database = f.Value.String()
	}
	if f := cmd.Flags().Lookup("user"); f != nil {
		cfg.Username = f.Value.String()
	}
	if f := cmd.Flags().Lookup("password"); f != nil {
		cfg.Password = f.Value.String()
	}

	if err := cfg.Load(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConnectOptions translates explicitly set topology flags into connect options.
// Credentials are always passed so that configured ones are used.
func ConnectOptions(cmd *cobra.Command, cfg *config.Config) ([]connection.ConnectOption, error) {
	opts := []connection.ConnectOption{connection.WithCredentials(cfg.Username, cfg.Password)}

	if cmd.Flags().Changed("host") || cmd.Flags().Changed("port") {
		var node config.NodeConfig
		node.Host, _ = cmd.Flags().GetString("host")
		node.Port, _ = cmd.Flags().GetInt("port")
		opts = append(opts, connection.WithDefault(node))
	}
	if cmd.Flags().Changed("master") {
		addr, _ := cmd.Flags().GetString("master")
		node, err := ParseNode(addr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, connection.WithMaster(node))
	}
	if cmd.Flags().Changed("slave") {
		addrs, _ := cmd.Flags().GetStringSlice("slave")
		nodes := make([]config.NodeConfig, 0, len(addrs))
		for _, addr := range addrs {
			node, err := ParseNode(addr)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		}
		opts = append(opts, connection.WithSlaves(nodes...))
	}
	return opts, nil
}

// ParseNode parses "host" or "host:port" into a node configuration.
func ParseNode(addr string) (config.NodeConfig, error) {
	if addr == "" {
		return config.NodeConfig{}, &common.ConfigError{Op: "parse node", Reason: "empty address"}
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port given.
		return config.NodeConfig{Host: addr}, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return config.NodeConfig{}, &common.ConfigError{
			Op:     "parse node",
			Reason: fmt.Sprintf("invalid port in '%s'", addr),
			Err:    err,
		}
	}
	return config.NodeConfig{Host: host, Port: port}, nil
}
