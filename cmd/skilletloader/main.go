// Skilletloader - apply PAN-OS skillets
//
// A skillet is a directory holding a .meta-cnc.yaml file that declares
// variables and an ordered list of snippets. Each snippet renders to one
// XML API request; outputs captured from one response feed the variables of
// later snippets.
//
// Variables are read from the process environment. Only names the skillet
// declares are consulted; --var key=value overrides the environment.
//
// Examples:
//
//	skilletloader show ./skillets/base_config
//	skilletloader render ./templates/bootstrap > bootstrap.xml
//	skilletloader load ./skillets/base_config --host fw1 --dry-run
//	skilletloader load ./skillets/base_config --host fw1 --wait-ready
//	skilletloader content update --host fw1
//	skilletloader history list
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/newtron-network/skilletloader/pkg/audit"
	"github.com/newtron-network/skilletloader/pkg/cli"
	"github.com/newtron-network/skilletloader/pkg/settings"
	"github.com/newtron-network/skilletloader/pkg/util"
	"github.com/newtron-network/skilletloader/pkg/version"
)

var (
	// Device selection
	hostName string
	port     int
	apiKey   string
	insecure bool

	// Global option flags
	verbose    bool
	logJSON    bool
	noColor    bool
	jsonOutput bool

	// Global state
	userSettings = &settings.Settings{}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

// formatError prefixes skillet failures with their kind.
func formatError(err error) string {
	if errors.Is(err, context.Canceled) {
		return cli.Yellow("interrupted")
	}
	switch kind := util.ErrorKind(err); kind {
	case "", "error":
		return cli.Red("error") + ": " + err.Error()
	default:
		return cli.Red(kind) + ": " + err.Error()
	}
}

var rootCmd = &cobra.Command{
	Use:               "skilletloader",
	Short:             "Load and apply PAN-OS skillets",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Skilletloader renders skillet snippets and pushes them to a firewall or
Panorama through the XML API, one request per snippet, in order.

  skilletloader load <skillet-dir> --host <device> [--dry-run]`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Set log level: quiet by default, verbose on -v
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}
		if noColor {
			cli.SetColor(false)
		}
		if logJSON {
			util.SetJSONFormat()
		}

		if isSettingsOrHelp(cmd) {
			return nil
		}

		s, err := settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			s = &settings.Settings{}
		}
		userSettings = s

		auditLogger, err := audit.NewFileLogger(userSettings.GetAuditLog(), audit.RotationConfig{
			MaxSize:    10 * 1024 * 1024, // 10MB
			MaxBackups: 10,
		})
		if err != nil {
			util.Warnf("Could not initialize audit logging: %v", err)
		} else {
			audit.SetDefaultLogger(auditLogger)
		}
		return nil
	},
}

func isSettingsOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "settings", "help", "version":
			return true
		}
	}
	return false
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "skillet", Title: "Skillet Operations:"},
		&cobra.Group{ID: "device", Title: "Device Operations:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{loadCmd, loadConfigCmd, contentCmd, waitReadyCmd, factsCmd} {
		addDeviceFlags(cmd)
	}
	for _, cmd := range []*cobra.Command{showCmd, historyCmd, auditCmd, factsCmd} {
		addOutputFlags(cmd)
	}

	for _, cmd := range []*cobra.Command{loadCmd, loadConfigCmd, renderCmd, showCmd} {
		cmd.GroupID = "skillet"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{contentCmd, waitReadyCmd, factsCmd} {
		cmd.GroupID = "device"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{historyCmd, auditCmd, settingsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

func addDeviceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&hostName, "host", "", "Device host (default from settings)")
	cmd.Flags().IntVar(&port, "port", 0, "Device HTTPS port (default 443)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "XML API key (or "+apiKeyEnv+")")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Println("skilletloader dev build")
		} else {
			fmt.Printf("skilletloader %s\n", version.Info())
		}
	},
}
