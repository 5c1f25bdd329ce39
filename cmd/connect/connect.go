package connect

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mongoconn/internal/common"
	"mongoconn/internal/connection"
	"mongoconn/internal/flags"
	"mongoconn/internal/logging"
)

// ConnectCmd represents the connect command.
var ConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to the database and show the topology",
	Long: `Build the configured topology, select the database, authenticate if
credentials are given and print what was established.`,
	RunE: runConnect,
}

func runConnect(cmd *cobra.Command, _ []string) error {
	cfg, err := flags.LoadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database == "" {
		return &common.ConfigError{Op: "validate", Reason: "database name is required (--db or 'database' in config)"}
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	opts, err := flags.ConnectOptions(cmd, cfg)
	if err != nil {
		return err
	}

	manager := connection.NewManagerFromConfig(cfg, connection.WithLogger(logger))
	defer func() {
		if err := manager.Close(context.Background()); err != nil {
			logger.Warn("failed to close connection", zap.Error(err))
		}
	}()

	db, err := manager.Connect(cmd.Context(), cfg.Database, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	PrintSummary(cmd.OutOrStdout(), db)
	return nil
}

// PrintSummary writes a human readable description of the database handle.
func PrintSummary(w io.Writer, db *connection.Database) {
	topo := db.Topology()
	fmt.Fprintf(w, "Database:      %s\n", db.Name())
	fmt.Fprintf(w, "Topology:      %s\n", topo)
	fmt.Fprintf(w, "Authenticated: %t\n", db.Authenticated())
	for _, r := range topo.Replicas() {
		fmt.Fprintf(w, "Replica:       %s (slave okay: %t)\n", r.Settings.Address(), r.Settings.SlaveOkay)
	}
	for _, e := range topo.Excluded() {
		fmt.Fprintf(w, "Excluded:      %s\n", e.Error())
	}
}

func init() {
	flags.AddConnectionFlags(ConnectCmd)
}
