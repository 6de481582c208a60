package models

import "github.com/google/uuid"

// TableStatus is the occupancy state of a physical table.
type TableStatus string

const (
	TableStatusAvailable TableStatus = "available"
	TableStatusOccupied  TableStatus = "occupied"
	TableStatusReserved  TableStatus = "reserved"
	TableStatusCleaning  TableStatus = "cleaning"
)

// Table is a physical seating unit. At most one non-terminal order references
// it as current at any time; the order engine enforces that, not the schema.
type Table struct {
	BaseModel
	Number         int         `gorm:"uniqueIndex" json:"number"`
	Capacity       int         `json:"capacity"`
	Location       string      `gorm:"index" json:"location"`
	Status         TableStatus `json:"status"`
	CurrentOrderID *uuid.UUID  `gorm:"type:uuid" json:"current_order_id"`
}
