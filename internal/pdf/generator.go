package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/nurpe/contracts-service/internal/model"
)

var (
	headers   = []string{"#", "Client", "Start", "End", "Value", "Delivery manager", "Status", "Attachment"}
	colWidths = []float64{10, 62, 24, 24, 32, 45, 24, 46}
)

// Generator renders the contract register with the core Helvetica font, so
// text outside cp1252 is replaced.
type Generator struct {
	fontName string
}

func NewGenerator() *Generator {
	return &Generator{fontName: "Helvetica"}
}

func (g *Generator) Generate(report model.RegisterReport) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetFillColor(224, 231, 239)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(g.fontName, "", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont(g.fontName, "B", 14)
	pdf.CellFormat(0, 10, "Contract register", "", 1, "C", false, 0, "")

	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s", formatDateTime(report.GeneratedAt)), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	drawTableRow(pdf, g.fontName, headers, true)
	for i, c := range report.Contracts {
		if pdf.GetY()+8 > 210-15 {
			pdf.AddPage()
			drawTableRow(pdf, g.fontName, headers, true)
		}
		row := []string{
			fmt.Sprintf("%d", i+1),
			tr(c.ClientName),
			formatDate(c.StartDate),
			formatDate(c.EndDate),
			formatAmount(c.ContractValue, 2),
			tr(c.DeliveryManager),
			string(c.StatusAt(report.GeneratedAt)),
			attachmentName(c.Attachment),
		}
		drawTableRow(pdf, g.fontName, row, false)
	}

	pdf.Ln(4)
	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Contracts: %d, active: %d, with attachment: %d",
		len(report.Contracts), report.ActiveCount, report.AttachmentCount), "", 1, "R", false, 0, "")
	pdf.SetFont(g.fontName, "B", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Total value: %s", formatAmount(report.TotalValue, 2)), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawTableRow(pdf *gofpdf.Fpdf, fontName string, cols []string, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(fontName, style, 10)
	for i, col := range cols {
		align := "L"
		if i == 0 || i == 4 {
			align = "R"
		}
		pdf.CellFormat(colWidths[i], 8, fit(pdf, col, colWidths[i]-2), "1", 0, align, header, 0, "")
	}
	pdf.Ln(-1)
}

// fit shortens text to the given width in the current font. Text is already
// cp1252 encoded, so it is cut bytewise.
func fit(pdf *gofpdf.Fpdf, text string, width float64) string {
	if pdf.GetStringWidth(text) <= width {
		return text
	}
	const ellipsis = "..."
	for len(text) > 0 && pdf.GetStringWidth(text+ellipsis) > width {
		text = text[:len(text)-1]
	}
	return text + ellipsis
}

func attachmentName(ref string) string {
	if ref == "" {
		return "-"
	}
	return ref[strings.LastIndex(ref, "/")+1:]
}

func formatAmount(value float64, precision int) string {
	format := fmt.Sprintf("%%.%df", precision)
	return fmt.Sprintf(format, value)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04 MST")
}
