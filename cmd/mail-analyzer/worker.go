package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/stackvity/mail-analyzer/internal/cli/config"
	"github.com/stackvity/mail-analyzer/pkg/analyzer"
	"github.com/stackvity/mail-analyzer/pkg/analyzer/encoding"
)

const flagWorkerID = "id"

// workerCmd is the body of a child worker process started by the process
// method. It reads tasks from stdin and writes completions to stdout.
var workerCmd = &cobra.Command{
	Use:    "worker --id <n>",
	Short:  "Run one analysis worker over stdin/stdout (internal)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetInt(flagWorkerID)
		charset, _ := cmd.Flags().GetString(config.FlagHeaderCharset)
		verbose, _ := cmd.Flags().GetBool(config.FlagVerbose)

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})

		decoder, err := encoding.NewHeaderDecoder(charset)
		if err != nil {
			slog.New(handler).Error("Invalid header charset", slog.String("charset", charset), slog.Any("error", err))
			return err
		}
		cmd.SilenceUsage = true

		// The parent owns interruption: it closes stdin or kills the worker.
		signal.Ignore(os.Interrupt)

		exec := analyzer.NewTaskExecutor(handler, decoder)
		return analyzer.ServeWorker(context.Background(), cmd.InOrStdin(), cmd.OutOrStdout(), exec, id, handler)
	},
}

func init() {
	workerCmd.Flags().Int(flagWorkerID, 0, "Worker id reported with every completion")
	workerCmd.Flags().String(config.FlagHeaderCharset, "", "Charset used to decode header lines that are not valid UTF-8")
	workerCmd.Flags().BoolP(config.FlagVerbose, "v", false, "Enable debug logging on stderr")
}
