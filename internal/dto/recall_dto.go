package dto

import "github.com/shopspring/decimal"

type RecallReportRequest struct {
	MaterialID *string  `json:"material_id" validate:"omitempty,uuid"`
	LotNumbers []string `json:"lot_numbers" validate:"required,min=1,max=200,dive,required"`
	Reason     string   `json:"reason"      validate:"required,max=1000"`
	Severity   string   `json:"severity"    validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	// Notify enqueues a PDF rendering of the report for email delivery.
	Notify bool `json:"notify"`
}

type AffectedLot struct {
	LotID      string `json:"lot_id"`
	LotNumber  string `json:"lot_number"`
	MaterialID string `json:"material_id"`
}

type AffectedWorkOrder struct {
	ProductionOrderID string          `json:"production_order_id"`
	QuantityConsumed  decimal.Decimal `json:"quantity_consumed"`
	Entities          []string        `json:"entities"` // identifiers of entities produced/consumed under the order
}

type AffectedShipment struct {
	ShipmentID   string   `json:"shipment_id"`
	CustomerID   *string  `json:"customer_id"`
	SerialNumber []string `json:"serial_numbers"`
}

type CustomerImpact struct {
	CustomerID  string   `json:"customer_id"`
	SerialCount int      `json:"serial_count"`
	Serials     []string `json:"serials"`
	ShipmentIDs []string `json:"shipment_ids"`
}

type QuantityByUnit struct {
	UnitOfMeasure string          `json:"unit_of_measure"`
	Quantity      decimal.Decimal `json:"quantity"`
}

type RecallReportResponse struct {
	ReportID              string              `json:"report_id"`
	MaterialID            *string             `json:"material_id"`
	Reason                string              `json:"reason"`
	Severity              string              `json:"severity"`
	GeneratedAt           string              `json:"generated_at"`
	AffectedLots          []AffectedLot       `json:"affected_lots"`
	AffectedWorkOrders    []AffectedWorkOrder `json:"affected_work_orders"`
	AffectedShipments     []AffectedShipment  `json:"affected_shipments"`
	CustomerImpact        []CustomerImpact    `json:"customer_impact"`
	TotalQuantityAffected decimal.Decimal     `json:"total_quantity_affected"`
	QuantityByUnit        []QuantityByUnit    `json:"quantity_by_unit"`
	TotalEntitiesAffected int                 `json:"total_entities_affected"`
	MaxDepthReached       int                 `json:"max_depth_reached"`
	Partial               bool                `json:"partial"`
	Warnings              []string            `json:"warnings"`
	NotificationQueued    bool                `json:"notification_queued"`
}
