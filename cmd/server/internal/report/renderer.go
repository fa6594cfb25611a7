package report

import (
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// documentTitle is inserted once at the top of every rendered artifact.
const documentTitle = "Patient Clinical Report"

// lineKind classifies one report line for rendering.
type lineKind int

const (
	lineBlank lineKind = iota
	lineHeading
	lineSubheading
	lineBody
)

// classifyLine applies the three-way precedence: markdown heading marker
// first, bold-wrapped sub-heading second, body text otherwise. The report
// text has no schema, so this syntactic pass is the only structure the
// renderer derives, and it re-derives it on every render.
func classifyLine(line string) (lineKind, string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return lineBlank, ""
	}
	if strings.HasPrefix(trimmed, "###") {
		text := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		text = strings.ReplaceAll(text, "**", "")
		return lineHeading, text
	}
	if strings.HasPrefix(trimmed, "**") && strings.HasSuffix(trimmed, "**") && len(trimmed) > 4 {
		return lineSubheading, strings.TrimSuffix(strings.TrimPrefix(trimmed, "**"), "**")
	}
	return lineBody, trimmed
}

// RenderPDF converts free-form report text into a paginated Letter-size PDF
// at outPath. Blank lines produce no output; every rendered line is followed
// by fixed vertical spacing.
func RenderPDF(reportText, outPath string) error {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, documentTitle, "", "C", false)
	pdf.Ln(4)

	for _, line := range strings.Split(reportText, "\n") {
		kind, text := classifyLine(line)
		switch kind {
		case lineBlank:
			continue
		case lineHeading:
			pdf.SetFont("Helvetica", "B", 14)
			pdf.MultiCell(0, 7, text, "", "L", false)
		case lineSubheading:
			pdf.SetFont("Helvetica", "B", 12)
			pdf.MultiCell(0, 6, text, "", "L", false)
		case lineBody:
			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, 5, text, "", "L", false)
		}
		pdf.Ln(2)
	}

	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("failed to write PDF artifact: %w", err)
	}
	return nil
}
