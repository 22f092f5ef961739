package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"traceability/internal/dto"
)

// writeResult prints data as indented JSON, or hands the writer to text.
func writeResult(w io.Writer, format string, data any, text func(io.Writer)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	text(w)
	return nil
}

// renderTree prints a trace as an indented tree, one node per line.
func renderTree(w io.Writer, resp *dto.TraversalResponse) {
	fmt.Fprintf(w, "%s trace: %d nodes, depth %d/%d, %d cycles\n",
		resp.Direction, resp.TotalNodes, resp.MaxDepthReached, resp.MaxDepth, resp.CycleCount)
	if resp.Root == nil {
		return
	}
	fmt.Fprintln(w, nodeLabel(resp.Root))
	renderChildren(w, resp.Root.Children, "")
	for _, warn := range resp.Warnings {
		fmt.Fprintf(w, "TRUNCATED: %s\n", warn)
	}
}

func renderChildren(w io.Writer, children []*dto.TraceNode, prefix string) {
	for i, child := range children {
		branch, next := "├── ", "│   "
		if i == len(children)-1 {
			branch, next = "└── ", "    "
		}
		fmt.Fprintln(w, prefix+branch+nodeLabel(child))
		renderChildren(w, child.Children, prefix+next)
	}
}

func nodeLabel(n *dto.TraceNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", n.EntityType, n.Identifier)
	if n.Quantity != nil {
		fmt.Fprintf(&b, " (%s %s", n.Quantity.String(), n.UnitOfMeasure)
		if n.Relationship != "" {
			fmt.Fprintf(&b, ", %s", n.Relationship)
		}
		b.WriteString(")")
	}
	switch {
	case n.Cycle:
		b.WriteString(" [cycle]")
	case n.Repeated:
		b.WriteString(" [repeated]")
	}
	return b.String()
}

// renderRecall prints the summary of a recall report.
func renderRecall(w io.Writer, r *dto.RecallReportResponse) {
	fmt.Fprintf(w, "Recall report %s [%s]\n", r.ReportID, r.Severity)
	fmt.Fprintf(w, "Reason: %s\n", r.Reason)
	lots := make([]string, len(r.AffectedLots))
	for i, l := range r.AffectedLots {
		lots[i] = l.LotNumber
	}
	fmt.Fprintf(w, "Recalled lots: %s\n", strings.Join(lots, ", "))
	fmt.Fprintf(w, "Entities affected: %d (max depth %d)\n", r.TotalEntitiesAffected, r.MaxDepthReached)
	for _, q := range r.QuantityByUnit {
		fmt.Fprintf(w, "Quantity: %s %s\n", q.Quantity.String(), q.UnitOfMeasure)
	}
	fmt.Fprintf(w, "Work orders: %d, shipments: %d, customers: %d\n",
		len(r.AffectedWorkOrders), len(r.AffectedShipments), len(r.CustomerImpact))
	if r.Partial {
		fmt.Fprintln(w, "PARTIAL: traversal limits were reached")
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}
