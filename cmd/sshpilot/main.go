package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"sshpilot/internal/app"
	"sshpilot/internal/config"
	"sshpilot/internal/crypto"
	"sshpilot/internal/logging"
)

const logFileName = "sshpilot.log"

var (
	flagConfig   string
	flagLog      bool
	flagLogLevel string
)

func main() {
	root := &cobra.Command{
		Use:          "sshpilot",
		Short:        "Interactive SSH client with transfers and tunnels",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	root.Flags().StringVar(&flagConfig, "config", "", "config file (default ~/.config/sshpilot/config.json)")
	root.Flags().BoolVar(&flagLog, "log", false, "write a log to ./"+logFileName)
	root.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level, only used with --log (error, warn, info, debug, trace)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	if flagLog {
		if err := logging.Init(logFileName, flagLogLevel); err != nil {
			return err
		}
		defer logging.Close()
	}

	path := flagConfig
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	store, err := config.Open(path, crypto.NewCipher())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	model := app.New(store)
	program := tea.NewProgram(model, tea.WithAltScreen())
	model.SetProgram(program)

	logging.Infof("app", "starting with config %s", path)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
