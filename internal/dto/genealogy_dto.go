package dto

import "github.com/shopspring/decimal"

// ─── History ─────────────────────────────────────────────────────────────────

// HistoryFilter is bound from the query string of the history endpoint.
// Operations is a comma-separated list of operation types.
type HistoryFilter struct {
	From       string `form:"from"`  // RFC 3339
	To         string `form:"to"`    // RFC 3339
	Operations string `form:"operations"`
	Order      string `form:"order,default=asc" validate:"oneof=asc desc"`
	Limit      int    `form:"limit,default=500" validate:"min=1,max=5000"`
}

type GenealogyRecordResponse struct {
	ID                 string           `json:"id"`
	Sequence           int64            `json:"sequence"`
	EntityType         string           `json:"entity_type"`
	EntityID           string           `json:"entity_id"`
	EntityIdentifier   string           `json:"entity_identifier"`
	OperationType      string           `json:"operation_type"`
	OperationTimestamp string           `json:"operation_timestamp"`
	ProductionOrderID  *string          `json:"production_order_id"`
	ReferenceID        *string          `json:"reference_id"`
	QuantityBefore     *decimal.Decimal `json:"quantity_before"`
	QuantityAfter      *decimal.Decimal `json:"quantity_after"`
	ReservedBefore     *decimal.Decimal `json:"reserved_before"`
	ReservedAfter      *decimal.Decimal `json:"reserved_after"`
	StatusBefore       *string          `json:"status_before"`
	StatusAfter        *string          `json:"status_after"`
	LocationBefore     *string          `json:"location_before"`
	LocationAfter      *string          `json:"location_after"`
	Metadata           map[string]any   `json:"metadata"`
	PerformedBy        *string          `json:"performed_by"`
}

type HistoryResponse struct {
	Data      []GenealogyRecordResponse `json:"data"`
	Truncated bool                      `json:"truncated"`
}

// ─── Traversal ───────────────────────────────────────────────────────────────

type TraversalRequest struct {
	Entity   EntityRefRequest `json:"entity"    validate:"required"`
	MaxDepth *int             `json:"max_depth" validate:"omitempty,min=1,max=10"`
}

// TraceNode is one node of a where-used / where-from tree. Quantity and
// Relationship describe the edge that reached the node and are empty on the root.
type TraceNode struct {
	EntityType        string           `json:"entity_type"`
	EntityID          string           `json:"entity_id"`
	Identifier        string           `json:"identifier"`
	MaterialID        string           `json:"material_id"`
	Depth             int              `json:"depth"`
	LinkID            *string          `json:"link_id,omitempty"`
	Relationship      string           `json:"relationship_type,omitempty"`
	Quantity          *decimal.Decimal `json:"quantity,omitempty"`
	UnitOfMeasure     string           `json:"unit_of_measure,omitempty"`
	ProductionOrderID *string          `json:"production_order_id,omitempty"`
	// Cycle marks a node already on the path from the root; it is not expanded.
	Cycle bool `json:"cycle,omitempty"`
	// Repeated marks a node expanded elsewhere in the tree; it is not expanded again.
	Repeated bool         `json:"repeated,omitempty"`
	Children []*TraceNode `json:"children"`
}

type TraversalResponse struct {
	Direction       string     `json:"direction"`
	Root            *TraceNode `json:"root"`
	TotalNodes      int        `json:"total_nodes"`
	MaxDepthReached int        `json:"max_depth_reached"`
	MaxDepth        int        `json:"max_depth"`
	CycleCount      int        `json:"cycle_count"`
	// Truncated is set when the node ceiling stopped the walk; Root holds the
	// nodes visited up to that point.
	Truncated bool     `json:"truncated"`
	Warnings  []string `json:"warnings,omitempty"`
}
