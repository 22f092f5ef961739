package cli

import (
	"fmt"
	"io"

	"traceability/internal/dto"
	"traceability/internal/infra"
	"traceability/internal/repository"
	"traceability/internal/router"
	"traceability/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// RecallOptions holds flags for the recall command.
type RecallOptions struct {
	*RootOptions
	Org      string
	Lots     []string
	Reason   string
	Severity string
	Material string
	PDF      string // directory; empty skips rendering
}

// NewRecallCommand creates the recall command.
func NewRecallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "recall",
		Short:         "Generate a recall report for one or more lot numbers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecall(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Org, "org", "", "organization id")
	cmd.Flags().StringSliceVar(&opts.Lots, "lot", nil, "lot number to recall (repeatable)")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "recall reason")
	cmd.Flags().StringVar(&opts.Severity, "severity", "HIGH", "LOW|MEDIUM|HIGH|CRITICAL")
	cmd.Flags().StringVar(&opts.Material, "material", "", "only recall lots of this material id")
	cmd.Flags().StringVar(&opts.PDF, "pdf", "", "also render the report as PDF into this directory")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("lot")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

// recallRequest turns flags into the request the API would receive.
func recallRequest(opts *RecallOptions) (uuid.UUID, dto.RecallReportRequest, error) {
	org, err := uuid.Parse(opts.Org)
	if err != nil {
		return uuid.Nil, dto.RecallReportRequest{}, fmt.Errorf("invalid --org: %w", err)
	}
	req := dto.RecallReportRequest{
		LotNumbers: opts.Lots,
		Reason:     opts.Reason,
		Severity:   opts.Severity,
	}
	if opts.Material != "" {
		if _, err := uuid.Parse(opts.Material); err != nil {
			return uuid.Nil, req, fmt.Errorf("invalid --material: %w", err)
		}
		req.MaterialID = &opts.Material
	}
	return org, req, nil
}

func runRecall(opts *RecallOptions, cmd *cobra.Command) error {
	org, req, err := recallRequest(opts)
	if err != nil {
		return err
	}
	cfg, db, err := openDatabase()
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	// No cache and no notifier: one-shot runs read straight from the database.
	lookup := service.NewLotLookup(repository.NewLotRepository(db), nil, 0)
	svc := service.NewRecallService(lookup, repository.NewGraphReader(db), router.TraversalConfig(cfg), nil)
	report, err := svc.Generate(cmd.Context(), service.Scope{OrganizationID: org}, req)
	if err != nil {
		return err
	}

	var pdfPath string
	if opts.PDF != "" {
		if pdfPath, err = infra.GenerateRecallPDF(report, opts.PDF); err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
	}
	return writeResult(cmd.OutOrStdout(), opts.Format, report, func(w io.Writer) {
		renderRecall(w, report)
		if pdfPath != "" {
			fmt.Fprintf(w, "PDF: %s\n", pdfPath)
		}
	})
}
