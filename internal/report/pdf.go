package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/dmepatch/internal/catalog"
	"example.com/dmepatch/internal/patcher"
	"example.com/dmepatch/internal/session"
)

// SaveSessionPDF renders a patch session into a PDF document. The output image
// hash is printed and embedded as a QR code.
func SaveSessionPDF(res *session.Result, out string) error {
	if res == nil {
		return fmt.Errorf("no session to report")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	title := "Firmware Patch Report"
	pdf.SetTitle(title, false)
	pdf.SetAuthor("dmepatch", false)
	pdf.SetCreator("dmepatch", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, title)
	addSummarySection(pdf, res)
	addModificationSection(pdf, res.Set.Modifications, res.Before, res.After)
	addLogSection(pdf, res.Logs)
	if err := addHashQR(pdf, res.OutputSHA); err != nil {
		return err
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSummarySection(pdf *gofpdf.Fpdf, res *session.Result) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "File", value: emptyFallback(res.File, "-")},
		{label: "Action", value: actionLabel(res.Action)},
		{label: "Version", value: res.Version},
		{label: "Hardware Variant", value: emptyFallback(res.Variant, "-")},
		{label: "Size", value: strconv.Itoa(res.Size) + " bytes"},
		{label: "Time", value: res.Ts.Format(time.RFC3339)},
		{label: "Input SHA-256", value: res.InputSHA},
		{label: "Output SHA-256", value: res.OutputSHA},
	}
	if len(res.Ambiguous) > 0 {
		items = append(items, struct {
			label string
			value string
		}{label: "Other Candidates", value: strings.Join(res.Ambiguous, ", ")})
	}
	for _, item := range items {
		pdf.CellFormat(45, 6, item.label, "", 0, "L", false, 0, "")
		pdf.SetFont("Courier", "", 9)
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
	}
	pdf.Ln(4)
}

func addModificationSection(pdf *gofpdf.Fpdf, mods []catalog.Modification, before, after []patcher.ModificationState) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Modifications")
	pdf.Ln(9)

	headers := []string{"Name", "Offset", "Original", "Patched", "Before", "After"}
	widths := []float64{18, 22, 48, 48, 22, 22}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	lineHeight := 5.0
	for i, m := range mods {
		values := []string{
			m.Name,
			fmt.Sprintf("0x%X", m.Offset),
			patcher.HexString(m.Original),
			patcher.HexString(m.Patched),
			statusAt(before, i),
			statusAt(after, i),
		}
		renderTableRow(pdf, widths, values, lineHeight)
	}
	pdf.Ln(4)
}

func addLogSection(pdf *gofpdf.Fpdf, logs []string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Log")
	pdf.Ln(9)

	pdf.SetFont("Courier", "", 9)
	if len(logs) == 0 {
		pdf.MultiCell(0, 5, "No changes recorded.", "", "L", false)
		return
	}
	for _, line := range logs {
		pdf.MultiCell(0, 5, strings.TrimSpace(line), "", "L", false)
	}
	pdf.Ln(4)
}

func addHashQR(pdf *gofpdf.Fpdf, hash string) error {
	if strings.TrimSpace(hash) == "" {
		return nil
	}
	png, err := HashToQR(hash, 256)
	if err != nil {
		return fmt.Errorf("qr: %w", err)
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("output-sha256", opts, bytes.NewReader(png))
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Output Hash")
	pdf.Ln(9)
	x, y := pdf.GetX(), pdf.GetY()
	pdf.ImageOptions("output-sha256", x, y, 35, 35, false, opts, 0, "")
	pdf.SetXY(x+40, y+14)
	pdf.SetFont("Courier", "", 8)
	pdf.MultiCell(0, 4, hash, "", "L", false)
	pdf.SetXY(x, y+38)
	return nil
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		cellText := strings.Join(lines, "\n")
		pdf.MultiCell(widths[i], lineHeight, cellText, "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func statusAt(states []patcher.ModificationState, i int) string {
	if i < 0 || i >= len(states) {
		return "-"
	}
	return states[i].Status.String()
}

func actionLabel(a session.Action) string {
	switch a {
	case session.ActionApply:
		return "Apply"
	case session.ActionRevert:
		return "Revert"
	default:
		if s := strings.TrimSpace(string(a)); s != "" {
			return s
		}
		return "-"
	}
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
