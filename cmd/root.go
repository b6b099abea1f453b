/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mycloud-app/mycloud/config"
	"github.com/mycloud-app/mycloud/internal/logging"
	"github.com/mycloud-app/mycloud/internal/session"
	"github.com/mycloud-app/mycloud/internal/workspace"
)

// clientFlags override the client config loaded from the environment.
var clientFlags struct {
	apiURL      string
	authMode    string
	state       string
	downloadDir string
	debug       bool
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mycloud",
	Short: "Personal cloud storage server and client",
	Long: `mycloud stores files per user behind an HTTP API and ships a client
for it. Usage:

	mycloud server
	mycloud login jane
	mycloud files upload report.pdf --comment "Q1"
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&clientFlags.apiURL, "api-url", "", "API base url (default $MYCLOUD_API_URL)")
	flags.StringVar(&clientFlags.authMode, "auth-mode", "", "bearer or csrf (default $MYCLOUD_AUTH_MODE)")
	flags.StringVar(&clientFlags.state, "state", "", "credential database path (default $MYCLOUD_STATE)")
	flags.StringVar(&clientFlags.downloadDir, "download-dir", "", "directory for downloads (default $MYCLOUD_DOWNLOAD_DIR)")
	flags.BoolVar(&clientFlags.debug, "debug", false, "verbose client logging")
}

func loadClientConfig() (config.ClientConfig, error) {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		return cfg, err
	}
	if clientFlags.apiURL != "" {
		cfg.APIURL = clientFlags.apiURL
	}
	if clientFlags.authMode != "" {
		cfg.AuthMode = clientFlags.authMode
	}
	if clientFlags.state != "" {
		cfg.StatePath = clientFlags.state
	}
	if clientFlags.downloadDir != "" {
		cfg.DownloadDir = clientFlags.downloadDir
	}
	if clientFlags.debug {
		cfg.Debug = true
	}
	return cfg, nil
}

// openWorkspace builds the client stack from config and flags.
func openWorkspace(cmd *cobra.Command) (*workspace.Workspace, *zap.Logger, error) {
	cfg, err := loadClientConfig()
	if err != nil {
		return nil, nil, err
	}
	mode, err := session.ParseMode(cfg.AuthMode)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewClient(cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	ws, err := workspace.Open(cmd.Context(), workspace.Options{
		APIURL:      cfg.APIURL,
		Mode:        mode,
		StatePath:   cfg.StatePath,
		DownloadDir: cfg.DownloadDir,
		Timeout:     cfg.Timeout,
		Logger:      logger,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return ws, logger, nil
}

// withSession opens the workspace, restores the saved session and runs fn.
func withSession(cmd *cobra.Command, fn func(ws *workspace.Workspace) error) error {
	ws, logger, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = ws.Close()
		_ = logger.Sync()
	}()

	if _, err := ws.Restore(cmd.Context()); err != nil {
		if errors.Is(err, workspace.ErrNotLoggedIn) {
			return errors.New("not logged in, run `mycloud login` first")
		}
		return err
	}
	return fn(ws)
}

// withWorkspace opens the workspace without requiring a session.
func withWorkspace(cmd *cobra.Command, fn func(ws *workspace.Workspace) error) error {
	ws, logger, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = ws.Close()
		_ = logger.Sync()
	}()
	return fn(ws)
}
