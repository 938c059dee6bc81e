package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stackvity/mail-analyzer/internal/cli"
	"github.com/stackvity/mail-analyzer/internal/cli/config"
)

var (
	// These are set during build time using -ldflags
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mail-analyzer -d <data_path> -t <temp_dir> -o <output_file>",
	Short: "Counts who mails whom across a directory tree of mailboxes.",
	Long: `mail-analyzer walks a mail corpus laid out as one subdirectory per mailbox,
extracts the sender and recipients of every mail, and writes for each sender
how many mails went to each recipient.

The run has two parallel phases separated by barriers:
  1. every mailbox is enumerated into a manifest of mail files,
  2. every listed mail is parsed into a sender/recipients record,
and the records are finally aggregated into the report.

Workers are goroutines by default; --method process runs them as child
processes and --method direct spawns one goroutine per task.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cfgFile, _ := cmd.Flags().GetString(config.FlagConfig)
		profileName, _ := cmd.Flags().GetString(config.FlagProfile)
		verbose, _ := cmd.Flags().GetBool(config.FlagVerbose)

		opts, logger, err := config.LoadAndValidate(cfgFile, profileName, version, verbose, cmd.Flags())
		if err != nil {
			return err
		}
		// Configuration is valid; later failures are runtime errors.
		cmd.SilenceUsage = true
		return cli.Run(ctx, opts, logger)
	},
}

// Execute adds all child commands to the root command and runs it. A
// returned error exits the process with status 1.
func Execute() {
	rootCmd.SetVersionTemplate(`{{.Name}} version {{.Version}}` + "\n")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	config.RegisterFlags(rootCmd.Flags())
	rootCmd.AddCommand(workerCmd)
}
