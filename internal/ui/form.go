package ui

import (
	"strconv"
	"strings"
	"time"

	"github.com/nurpe/contracts-service/internal/model"
)

const dateLayout = "2006-01-02"

const (
	FieldClientName      = "clientName"
	FieldStartDate       = "startDate"
	FieldEndDate         = "endDate"
	FieldContractValue   = "contractValue"
	FieldDeliveryManager = "deliveryManager"
)

// FieldOrder is the order in which submitted values are applied to a Form,
// matching the order of the inputs on the page.
var FieldOrder = []string{
	FieldClientName,
	FieldStartDate,
	FieldEndDate,
	FieldContractValue,
	FieldDeliveryManager,
}

// FormError reports input the page can reject before calling the API.
type FormError string

func (e FormError) Error() string { return string(e) }

const errEmptyForm = FormError("all fields are required")

// Form holds the raw input values. Dates are YYYY-MM-DD strings, which order
// the same lexically and chronologically.
type Form struct {
	ClientName      string
	StartDate       string
	EndDate         string
	ContractValue   string
	DeliveryManager string
}

// Set applies one input change and reports whether it was accepted.
// A start date after the current end date clears the end date. An end date
// before the current start date is dropped.
func (f *Form) Set(field, value string) bool {
	switch field {
	case FieldClientName:
		f.ClientName = value
	case FieldStartDate:
		if f.EndDate != "" && value > f.EndDate {
			f.EndDate = ""
		}
		f.StartDate = value
	case FieldEndDate:
		if f.StartDate != "" && value != "" && value < f.StartDate {
			return false
		}
		f.EndDate = value
	case FieldContractValue:
		f.ContractValue = value
	case FieldDeliveryManager:
		f.DeliveryManager = value
	default:
		return false
	}
	return true
}

func (f *Form) Reset() {
	*f = Form{}
}

// FormFromContract fills a form for editing c.
func FormFromContract(c model.Contract) Form {
	return Form{
		ClientName:      c.ClientName,
		StartDate:       formatDate(c.StartDate),
		EndDate:         formatDate(c.EndDate),
		ContractValue:   strconv.FormatFloat(c.ContractValue, 'f', -1, 64),
		DeliveryManager: c.DeliveryManager,
	}
}

// Fields converts the form into API input. Every input is required.
func (f Form) Fields() (model.ContractFields, error) {
	if strings.TrimSpace(f.ClientName) == "" || f.StartDate == "" || f.EndDate == "" ||
		strings.TrimSpace(f.ContractValue) == "" || strings.TrimSpace(f.DeliveryManager) == "" {
		return model.ContractFields{}, errEmptyForm
	}

	start, err := time.Parse(dateLayout, f.StartDate)
	if err != nil {
		return model.ContractFields{}, FormError("start date is not a valid date")
	}
	end, err := time.Parse(dateLayout, f.EndDate)
	if err != nil {
		return model.ContractFields{}, FormError("end date is not a valid date")
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(f.ContractValue), 64)
	if err != nil {
		return model.ContractFields{}, FormError("contract value must be a number")
	}

	return model.ContractFields{
		ClientName:      strings.TrimSpace(f.ClientName),
		StartDate:       start,
		EndDate:         end,
		ContractValue:   value,
		DeliveryManager: strings.TrimSpace(f.DeliveryManager),
	}, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}
