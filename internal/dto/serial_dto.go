package dto

import "time"

type RegisterSerialRequest struct {
	SerialNumber      string     `json:"serial_number"       validate:"required,max=100"`
	MaterialID        string     `json:"material_id"         validate:"required,uuid"`
	LotID             *string    `json:"lot_id"              validate:"omitempty,uuid"`
	ProductionOrderID *string    `json:"production_order_id" validate:"omitempty,uuid"`
	Location          string     `json:"location"            validate:"max=100"`
	WarrantyExpiry    *time.Time `json:"warranty_expiry"`
}

type SerialReserveRequest struct {
	Reference *string `json:"reference" validate:"omitempty,max=100"`
}

type ShipSerialRequest struct {
	CustomerID  string     `json:"customer_id" validate:"required,uuid"`
	ShipmentID  *string    `json:"shipment_id" validate:"omitempty,uuid"`
	ShippedDate *time.Time `json:"shipped_date"`
}

type InstallSerialRequest struct {
	Location       string     `json:"location"        validate:"required,max=100"`
	InstalledDate  *time.Time `json:"installed_date"`
	WarrantyExpiry *time.Time `json:"warranty_expiry"`
}

// SerialTransitionRequest is the body of the transitions that only carry a note
// (in-service, scrap, return).
type SerialTransitionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type ReturnToStockRequest struct {
	Location string `json:"location" validate:"required,max=100"`
}

type SerialFilter struct {
	MaterialID string `form:"material_id" validate:"omitempty,uuid"`
	LotID      string `form:"lot_id"      validate:"omitempty,uuid"`
	CustomerID string `form:"customer_id" validate:"omitempty,uuid"`
	Status     string `form:"status"      validate:"omitempty,oneof=IN_STOCK RESERVED SHIPPED INSTALLED SCRAPPED RETURNED IN_SERVICE"`
	Page       int    `form:"page,default=1"   validate:"min=1"`
	Limit      int    `form:"limit,default=50" validate:"min=1,max=500"`
}

type SerialResponse struct {
	ID                string  `json:"id"`
	OrganizationID    string  `json:"organization_id"`
	PlantID           *string `json:"plant_id"`
	SerialNumber      string  `json:"serial_number"`
	MaterialID        string  `json:"material_id"`
	LotID             *string `json:"lot_id"`
	ProductionOrderID *string `json:"production_order_id"`
	Status            string  `json:"status"`
	QualityStatus     string  `json:"quality_status"`
	Location          string  `json:"location"`
	CustomerID        *string `json:"customer_id"`
	ShipmentID        *string `json:"shipment_id"`
	ShippedDate       *string `json:"shipped_date"`
	InstalledDate     *string `json:"installed_date"`
	WarrantyExpiry    *string `json:"warranty_expiry"`
	Version           int     `json:"version"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

type SerialListResponse struct {
	Data  []SerialResponse `json:"data"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}
