package cli

import (
	"fmt"
	"io"

	"traceability/internal/config"
	"traceability/internal/infra"
	"traceability/internal/worker"

	"github.com/spf13/cobra"
)

// NewDLQCommand creates the dlq command.
func NewDLQCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "dlq",
		Short:         "Show the dead letter backlog of the recall notification queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			rdb, err := infra.NewRedis(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			defer rdb.Close()
			n, err := worker.DLQLength(cmd.Context(), rdb, worker.QueueRecall)
			if err != nil {
				return err
			}
			out := map[string]any{"queue": worker.DLQPrefix + worker.QueueRecall, "length": n}
			return writeResult(cmd.OutOrStdout(), rootOpts.Format, out, func(w io.Writer) {
				fmt.Fprintf(w, "%s%s: %d\n", worker.DLQPrefix, worker.QueueRecall, n)
			})
		},
	}
}
