package model

import "time"

type ContractStatus string

const (
	ContractStatusUpcoming ContractStatus = "UPCOMING"
	ContractStatusActive   ContractStatus = "ACTIVE"
	ContractStatusExpired  ContractStatus = "EXPIRED"
)

// StatusAt classifies the contract period relative to the calendar day of at.
// Both start and end dates are inclusive.
func (c Contract) StatusAt(at time.Time) ContractStatus {
	day := DateOnly(at)
	switch {
	case day.Before(DateOnly(c.StartDate)):
		return ContractStatusUpcoming
	case !c.EndDate.IsZero() && day.After(DateOnly(c.EndDate)):
		return ContractStatusExpired
	default:
		return ContractStatusActive
	}
}

// RegisterReport is the contract register rendered by the exports.
type RegisterReport struct {
	GeneratedAt     time.Time
	Contracts       []Contract
	TotalValue      float64
	ActiveCount     int
	AttachmentCount int
}

func NewRegisterReport(contracts []Contract, generatedAt time.Time) RegisterReport {
	report := RegisterReport{
		GeneratedAt: generatedAt,
		Contracts:   contracts,
	}
	for _, c := range contracts {
		report.TotalValue += c.ContractValue
		if c.StatusAt(generatedAt) == ContractStatusActive {
			report.ActiveCount++
		}
		if c.HasAttachment() {
			report.AttachmentCount++
		}
	}
	return report
}
