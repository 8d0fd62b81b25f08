package model

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// Contract is the single record managed by the service. Attachment holds the
// public reference of the stored file, or "" when the contract has none.
type Contract struct {
	ID              uuid.UUID `gorm:"primaryKey" json:"id"`
	ClientName      string    `json:"clientName"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	ContractValue   float64   `json:"contractValue"`
	DeliveryManager string    `json:"deliveryManager"`
	Attachment      string    `json:"attachment"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (Contract) TableName() string { return "contracts" }

// HasAttachment reports whether the contract references a stored file.
func (c Contract) HasAttachment() bool {
	return c.Attachment != ""
}

// ContractFields are the user editable fields of a contract. Create and
// Update both take the full set.
type ContractFields struct {
	ClientName      string
	StartDate       time.Time
	EndDate         time.Time
	ContractValue   float64
	DeliveryManager string
}

// Fields returns the editable part of the contract.
func (c Contract) Fields() ContractFields {
	return ContractFields{
		ClientName:      c.ClientName,
		StartDate:       c.StartDate,
		EndDate:         c.EndDate,
		ContractValue:   c.ContractValue,
		DeliveryManager: c.DeliveryManager,
	}
}

// Upload is a file submitted together with a contract.
type Upload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
