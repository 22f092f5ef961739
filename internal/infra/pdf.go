package infra

// pdf.go renders a recall report to an A4 PDF with go-pdf/fpdf:
//   - header with severity, reason and generation time
//   - recalled lots
//   - customer impact table
//   - affected work orders and shipments
//   - warnings when the report is partial
//
// The file is written to storagePath/recall_{report_id}.pdf.

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"traceability/internal/dto"

	"github.com/go-pdf/fpdf"
)

// GenerateRecallPDF writes report to storagePath (created if needed) and
// returns the path of the generated file.
func GenerateRecallPDF(report *dto.RecallReportResponse, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}
	filePath := filepath.Join(storagePath, fmt.Sprintf("recall_%s.pdf", report.ReportID))

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 30

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentW, 9, "Recall Impact Report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, "Report "+report.ReportID, "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, 5, "Generated "+report.GeneratedAt, "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(contentW, 6, "Severity: "+report.Severity, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(contentW, 5, "Reason: "+report.Reason, "", "L", false)
	pdf.Ln(2)

	// ── Summary ──────────────────────────────────────────────────────────────
	summary := [][2]string{
		{"Entities affected", strconv.Itoa(report.TotalEntitiesAffected)},
		{"Quantity affected", report.TotalQuantityAffected.String()},
		{"Customers", strconv.Itoa(len(report.CustomerImpact))},
		{"Max depth reached", strconv.Itoa(report.MaxDepthReached)},
	}
	for _, q := range report.QuantityByUnit {
		summary = append(summary, [2]string{"  in " + q.UnitOfMeasure, q.Quantity.String()})
	}
	pdf.SetFont("Helvetica", "", 9)
	for _, row := range summary {
		pdf.CellFormat(contentW*0.4, 5, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.6, 5, row[1], "", 1, "L", false, 0, "")
	}

	// ── Recalled lots ────────────────────────────────────────────────────────
	section(pdf, contentW, "Recalled lots")
	table(pdf, contentW, []string{"Lot number", "Lot id", "Material"}, []float64{0.25, 0.375, 0.375}, func(add func(...string)) {
		for _, l := range report.AffectedLots {
			add(l.LotNumber, l.LotID, l.MaterialID)
		}
	})

	// ── Customers ────────────────────────────────────────────────────────────
	section(pdf, contentW, "Customer impact")
	table(pdf, contentW, []string{"Customer", "Units", "Serials"}, []float64{0.4, 0.1, 0.5}, func(add func(...string)) {
		for _, c := range report.CustomerImpact {
			add(c.CustomerID, strconv.Itoa(c.SerialCount), strings.Join(c.Serials, ", "))
		}
	})

	// ── Work orders ──────────────────────────────────────────────────────────
	section(pdf, contentW, "Affected work orders")
	table(pdf, contentW, []string{"Production order", "Quantity", "Entities"}, []float64{0.4, 0.15, 0.45}, func(add func(...string)) {
		for _, w := range report.AffectedWorkOrders {
			add(w.ProductionOrderID, w.QuantityConsumed.String(), strings.Join(w.Entities, ", "))
		}
	})

	// ── Shipments ────────────────────────────────────────────────────────────
	section(pdf, contentW, "Affected shipments")
	table(pdf, contentW, []string{"Shipment", "Customer", "Serials"}, []float64{0.35, 0.35, 0.3}, func(add func(...string)) {
		for _, s := range report.AffectedShipments {
			customer := ""
			if s.CustomerID != nil {
				customer = *s.CustomerID
			}
			add(s.ShipmentID, customer, strings.Join(s.SerialNumber, ", "))
		}
	})

	// ── Warnings ─────────────────────────────────────────────────────────────
	if report.Partial || len(report.Warnings) > 0 {
		section(pdf, contentW, "Warnings")
		pdf.SetFont("Helvetica", "I", 9)
		if report.Partial {
			pdf.MultiCell(contentW, 5, "This report is partial.", "", "L", false)
		}
		for _, w := range report.Warnings {
			pdf.MultiCell(contentW, 5, "- "+w, "", "L", false)
		}
	}

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}
	return filePath, nil
}

func section(pdf *fpdf.Fpdf, w float64, title string) {
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(w, 7, title, "B", 1, "L", false, 0, "")
	pdf.Ln(1)
}

// table prints a header row then every row passed to add. Cells are truncated
// to the column width; an empty table prints a single "none" line.
func table(pdf *fpdf.Fpdf, w float64, headers []string, ratios []float64, rows func(add func(...string))) {
	pdf.SetFont("Helvetica", "B", 8)
	for i, h := range headers {
		ln := 0
		if i == len(headers)-1 {
			ln = 1
		}
		pdf.CellFormat(w*ratios[i], 5, h, "B", ln, "L", false, 0, "")
	}

	pdf.SetFont("Helvetica", "", 8)
	n := 0
	rows(func(cells ...string) {
		n++
		for i, c := range cells {
			ln := 0
			if i == len(cells)-1 {
				ln = 1
			}
			colW := w * ratios[i]
			pdf.CellFormat(colW, 5, fit(pdf, c, colW-1), "", ln, "L", false, 0, "")
		}
	})
	if n == 0 {
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(w, 5, "none", "", 1, "L", false, 0, "")
	}
}

func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}
