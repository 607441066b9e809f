package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Field is a labelled value printed above the document table.
type Field struct {
	Label string
	Value string
}

// Document describes a printable receipt: title, summary fields and an optional table.
type Document struct {
	Title   string
	Summary []Field
	Table   Dataset
}

// PDFExporter renders documents into a basic tabular PDF.
type PDFExporter struct {
	maxColumns int
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{maxColumns: 6}
}

// Render creates a PDF document with the title, summary block and table body.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if doc.Title == "" && len(doc.Summary) == 0 && len(doc.Table.Headers) == 0 {
		return nil, fmt.Errorf("pdf document is empty")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(doc.Title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	for _, field := range doc.Summary {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(50, 7, field.Label, "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 7, field.Value, "", "", false)
	}

	headers := doc.Table.Headers
	if len(headers) > e.maxColumns {
		headers = headers[:e.maxColumns]
	}
	if len(headers) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 9)
		colWidth := 190.0 / float64(len(headers))
		for _, header := range headers {
			pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 8)
		for _, row := range doc.Table.Rows {
			for _, header := range headers {
				pdf.CellFormat(colWidth, 7, truncate(row[header], 40), "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}
