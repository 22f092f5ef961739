package cli

import (
	"fmt"
	"io"
	"strings"

	"traceability/internal/model"
	"traceability/internal/repository"
	"traceability/internal/router"
	"traceability/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Org      string
	Type     string
	ID       string
	Depth    int
	Upstream bool
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the where-used or where-from tree of a lot or serial",
		Long: `Walk the link graph from an entity.

By default the walk goes parent to child (where-used). --upstream walks child
to parent (where-from).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Org, "org", "", "organization id")
	cmd.Flags().StringVar(&opts.Type, "type", "LOT", "entity type (LOT|SERIAL)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "entity id")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "max depth (0 uses the configured default)")
	cmd.Flags().BoolVar(&opts.Upstream, "upstream", false, "trace child to parent")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

// parseTraceTarget validates the flags that name the start entity.
func parseTraceTarget(opts *TraceOptions) (uuid.UUID, model.EntityRef, error) {
	org, err := uuid.Parse(opts.Org)
	if err != nil {
		return uuid.Nil, model.EntityRef{}, fmt.Errorf("invalid --org: %w", err)
	}
	t := model.EntityType(strings.ToUpper(opts.Type))
	if !t.Valid() {
		return uuid.Nil, model.EntityRef{}, fmt.Errorf("invalid --type %q: must be LOT or SERIAL", opts.Type)
	}
	id, err := uuid.Parse(opts.ID)
	if err != nil {
		return uuid.Nil, model.EntityRef{}, fmt.Errorf("invalid --id: %w", err)
	}
	return org, model.EntityRef{Type: t, ID: id}, nil
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	org, ref, err := parseTraceTarget(opts)
	if err != nil {
		return err
	}
	cfg, db, err := openDatabase()
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	svc := service.NewTraversalService(repository.NewGraphReader(db), router.TraversalConfig(cfg))
	trace := svc.WhereUsed
	if opts.Upstream {
		trace = svc.WhereFrom
	}
	resp, err := trace(cmd.Context(), service.Scope{OrganizationID: org}, ref, opts.Depth)
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), opts.Format, resp, func(w io.Writer) {
		renderTree(w, resp)
	})
}
