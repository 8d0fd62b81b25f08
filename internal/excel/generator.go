package excel

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nurpe/contracts-service/internal/model"
)

const (
	summarySheet  = "Summary"
	contractSheet = "Contracts"
)

var contractHeaders = []string{
	"#",
	"Client",
	"Start date",
	"End date",
	"Contract value",
	"Delivery manager",
	"Status",
	"Attachment",
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders the contract register as a workbook with a summary sheet
// and one row per contract.
func (g *Generator) Generate(report model.RegisterReport) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := file.NewSheet(contractSheet); err != nil {
		return nil, err
	}

	styles, err := newStyles(file)
	if err != nil {
		return nil, err
	}
	if err := g.writeSummary(file, report, styles); err != nil {
		return nil, err
	}
	if err := g.writeContracts(file, report, styles); err != nil {
		return nil, err
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type styles struct {
	header int
	amount int
}

func newStyles(file *excelize.File) (styles, error) {
	header, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E0E7EF"}},
	})
	if err != nil {
		return styles{}, err
	}
	// Built-in number format 4 is "#,##0.00".
	amount, err := file.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return styles{}, err
	}
	return styles{header: header, amount: amount}, nil
}

func (g *Generator) writeSummary(file *excelize.File, report model.RegisterReport, st styles) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(summarySheet, cell, value)
	}

	set("A1", "Generated at")
	set("B1", formatDateTime(report.GeneratedAt))
	set("A2", "Contracts")
	set("B2", len(report.Contracts))
	set("A3", "Active contracts")
	set("B3", report.ActiveCount)
	set("A4", "With attachment")
	set("B4", report.AttachmentCount)
	set("A5", "Total value")
	set("B5", report.TotalValue)

	if err := file.SetCellStyle(summarySheet, "A1", "A5", st.header); err != nil {
		return err
	}
	if err := file.SetCellStyle(summarySheet, "B5", "B5", st.amount); err != nil {
		return err
	}
	_ = file.SetColWidth(summarySheet, "A", "A", 22)
	_ = file.SetColWidth(summarySheet, "B", "B", 24)
	return nil
}

func (g *Generator) writeContracts(file *excelize.File, report model.RegisterReport, st styles) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(contractSheet, cell, value)
	}

	for i, header := range contractHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		set(cell, header)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(contractHeaders), 1)
	if err := file.SetCellStyle(contractSheet, "A1", lastHeader, st.header); err != nil {
		return err
	}

	for i, c := range report.Contracts {
		row := i + 2
		set(fmt.Sprintf("A%d", row), i+1)
		set(fmt.Sprintf("B%d", row), c.ClientName)
		set(fmt.Sprintf("C%d", row), formatDate(c.StartDate))
		set(fmt.Sprintf("D%d", row), formatDate(c.EndDate))
		set(fmt.Sprintf("E%d", row), c.ContractValue)
		set(fmt.Sprintf("F%d", row), c.DeliveryManager)
		set(fmt.Sprintf("G%d", row), string(c.StatusAt(report.GeneratedAt)))
		set(fmt.Sprintf("H%d", row), c.Attachment)
	}

	if n := len(report.Contracts); n > 0 {
		if err := file.SetCellStyle(contractSheet, "E2", fmt.Sprintf("E%d", n+1), st.amount); err != nil {
			return err
		}
		totalRow := n + 2
		set(fmt.Sprintf("D%d", totalRow), "Total")
		if err := file.SetCellFormula(contractSheet, fmt.Sprintf("E%d", totalRow), fmt.Sprintf("SUM(E2:E%d)", n+1)); err != nil {
			return err
		}
		if err := file.SetCellStyle(contractSheet, fmt.Sprintf("D%d", totalRow), fmt.Sprintf("E%d", totalRow), st.header); err != nil {
			return err
		}
	}

	if err := file.SetPanes(contractSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	_ = file.SetColWidth(contractSheet, "A", "A", 6)
	_ = file.SetColWidth(contractSheet, "B", "B", 32)
	_ = file.SetColWidth(contractSheet, "C", "D", 12)
	_ = file.SetColWidth(contractSheet, "E", "E", 16)
	_ = file.SetColWidth(contractSheet, "F", "F", 24)
	_ = file.SetColWidth(contractSheet, "G", "G", 11)
	_ = file.SetColWidth(contractSheet, "H", "H", 36)
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
