package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"traceability/internal/dto"
	"traceability/internal/infra"

	"github.com/rs/zerolog/log"
)

// Mailer delivers one message with an optional attachment.
type Mailer interface {
	Send(to []string, subject, body, attachment string) error
}

// RecallWorker renders a queued recall report to PDF and mails it to the
// recall distribution list. Mail goes through the breaker so a dead relay
// fails jobs fast instead of tying up workers.
type RecallWorker struct {
	mailer     Mailer
	breaker    *infra.Breaker
	recipients []string
	pdfDir     string
	render     func(*dto.RecallReportResponse, string) (string, error)
}

// NewRecallWorker takes the comma-separated recipient list from configuration.
func NewRecallWorker(mailer Mailer, breaker *infra.Breaker, recipients, pdfDir string) *RecallWorker {
	var to []string
	for _, r := range strings.Split(recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	return &RecallWorker{mailer: mailer, breaker: breaker, recipients: to, pdfDir: pdfDir, render: infra.GenerateRecallPDF}
}

func (w *RecallWorker) Process(_ context.Context, payload json.RawMessage) error {
	var report dto.RecallReportResponse
	if err := json.Unmarshal(payload, &report); err != nil {
		// retrying cannot fix a bad payload
		log.Error().Err(err).Msg("recall_worker: invalid payload")
		return nil
	}
	if len(w.recipients) == 0 {
		log.Warn().Str("report_id", report.ReportID).Msg("recall_worker: no recipients configured, dropping")
		return nil
	}

	pdfPath, err := w.render(&report, w.pdfDir)
	if err != nil {
		return fmt.Errorf("render recall %s: %w", report.ReportID, err)
	}

	subject, body := recallMessage(&report)
	err = w.breaker.Do(func() error {
		return w.mailer.Send(w.recipients, subject, body, pdfPath)
	})
	if err != nil {
		return fmt.Errorf("mail recall %s: %w", report.ReportID, err)
	}
	log.Info().Str("report_id", report.ReportID).Strs("to", w.recipients).Msg("recall_worker: report sent")
	return nil
}

func recallMessage(r *dto.RecallReportResponse) (subject, body string) {
	subject = fmt.Sprintf("[%s] Recall report %s", r.Severity, r.ReportID)

	var b strings.Builder
	fmt.Fprintf(&b, "Reason: %s\n", r.Reason)
	fmt.Fprintf(&b, "Generated: %s\n\n", r.GeneratedAt)
	lots := make([]string, 0, len(r.AffectedLots))
	for _, l := range r.AffectedLots {
		lots = append(lots, l.LotNumber)
	}
	fmt.Fprintf(&b, "Recalled lots: %s\n", strings.Join(lots, ", "))
	fmt.Fprintf(&b, "Entities affected: %d\n", r.TotalEntitiesAffected)
	fmt.Fprintf(&b, "Quantity affected: %s\n", r.TotalQuantityAffected.String())
	fmt.Fprintf(&b, "Customers affected: %d\n", len(r.CustomerImpact))
	if r.Partial {
		b.WriteString("\nWARNING: this report is partial.\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}
	b.WriteString("\nThe full report is attached.\n")
	return subject, b.String()
}
