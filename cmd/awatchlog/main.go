package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/MuchTitan/awatchlog/internal/config"
	"github.com/MuchTitan/awatchlog/internal/state"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "awatchlog",
		Short:        "Ship growing log files to CloudWatch Logs",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the config file")
	root.AddCommand(newStateCmd(&configPath))
	return root
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	closeLog := config.SetupLogging(cfg.System)
	defer closeLog()

	agent, err := config.NewAgent(cfg, afero.NewOsFs())
	if err != nil {
		return err
	}

	logrus.WithField("files", len(cfg.Files)).Info("Starting awatchlog")
	if err := agent.Start(); err != nil {
		return err
	}

	// Wait for shutdown signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	allFailed := false
	select {
	case <-ctx.Done():
		logrus.Info("Stopping awatchlog")
	case <-agent.Done():
		allFailed = true
		logrus.Error("Every shipper has stopped")
	}

	if err := agent.Stop(); err != nil {
		logrus.WithError(err).Warn("Shutdown was not clean")
	}

	if allFailed {
		return fmt.Errorf("all shippers failed: %w", errors.Join(agent.Failed()...))
	}
	return nil
}

type stateRecord struct {
	File   string `json:"file"`
	Key    string `json:"key"`
	Token  string `json:"token"`
	Offset uint64 `json:"offset"`
	Found  bool   `json:"found"`
}

func newStateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "state <file>...",
		Short: "Print the saved offset and sequence token of watched files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			store, err := config.NewStore(cfg.System, afero.NewOsFs())
			if err != nil {
				return err
			}
			defer store.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, path := range args {
				rec := stateRecord{File: path, Key: state.FileKey(path)}
				st, err := store.Load(rec.Key)
				switch {
				case errors.Is(err, state.ErrNotFound):
				case err != nil:
					return fmt.Errorf("%s: %w", path, err)
				default:
					rec.Found = true
					rec.Token = st.Token
					rec.Offset = st.Offset
				}
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
