package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"sitcomledger/internal/config"
	"sitcomledger/internal/ledger"
)

type rootFlags struct {
	configFile string
	envFiles   []string
	logLevel   string
	storage    string
}

type cli struct {
	flags rootFlags
	cfg   *config.Config
	app   *app
}

// skipApp marks commands that run without opening the ledger.
const skipApp = "sitcomctl/skip-app"

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sitcomctl",
		Short:         "Student achievement ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `sitcomctl records staff granted competences, approved activities and
automatically awarded competences, and answers per-student and per-term queries.

Settings come from an optional config file, .env files and SITCOM_* variables,
for example SITCOM_STORAGE_DRIVER, SITCOM_SQLITE_PATH, SITCOM_JWT_SECRET.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	pf := root.PersistentFlags()
	pf.StringVarP(&c.flags.configFile, "config", "c", "", "config file (toml, yaml or json)")
	pf.StringSliceVar(&c.flags.envFiles, "env-file", nil, "env files to load before reading SITCOM_* variables")
	pf.StringVar(&c.flags.logLevel, "log-level", "", "override log.level")
	pf.StringVar(&c.flags.storage, "storage", "", "override storage.driver (memory, sqlite, postgres)")

	root.AddCommand(
		c.serveCmd(),
		c.grantCmd(),
		c.approveCmd(),
		c.competenciesCmd(),
		c.activitiesCmd(),
		c.termCmd(),
		c.recordCmd(),
		c.archiveCmd(),
		c.restoreCmd(),
		c.tokenCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command) error {
	if cmd.Name() == "help" {
		return nil
	}
	cfg, err := config.Load(c.flags.configFile, c.flags.envFiles...)
	if err != nil {
		return err
	}
	if c.flags.logLevel != "" {
		cfg.Log.Level = c.flags.logLevel
	}
	if c.flags.storage != "" {
		cfg.Storage.Driver = ledger.StorageDriver(c.flags.storage)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	if _, skip := cmd.Annotations[skipApp]; skip {
		return nil
	}
	a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
