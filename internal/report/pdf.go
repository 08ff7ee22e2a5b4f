package report

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	fontFamily   = "Helvetica"
	pageMargin   = 15.0
	lineHeight   = 6.0
	tableRowH    = 7.0
	fieldLabelW  = 40.0
	bulletIndent = 5.0
)

// materialWidths are fractions of the printable width per materials column.
var materialWidths = []float64{0.35, 0.15, 0.15, 0.35}

// PDF renders blocks onto A4 pages with automatic page breaks.
type PDF struct {
	// Uncompressed leaves content streams readable, which tests rely on.
	Uncompressed bool
	// CreationDate is written to the document metadata when set, keeping
	// output identical across renders of the same blocks.
	CreationDate time.Time
}

// Render lays out blocks and returns the finished document. No bytes are
// returned unless the whole document rendered.
func (p PDF) Render(blocks []Block) ([]byte, error) {
	if len(blocks) == 0 {
		return nil, errors.New("render report: no content")
	}
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCompression(!p.Uncompressed)
	doc.SetCatalogSort(true)
	if !p.CreationDate.IsZero() {
		doc.SetCreationDate(p.CreationDate)
		doc.SetModificationDate(p.CreationDate)
	}
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.SetAutoPageBreak(true, pageMargin+5)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	for _, b := range blocks {
		if b.Kind == KindFooter {
			text := tr(b.Text)
			doc.SetFooterFunc(func() {
				doc.SetY(-pageMargin)
				doc.SetFont(fontFamily, "I", 8)
				doc.CellFormat(0, 10, text, "", 0, "C", false, 0, "")
			})
		}
	}
	doc.AddPage()
	pageW, _ := doc.GetPageSize()
	printable := pageW - 2*pageMargin

	for _, b := range blocks {
		switch b.Kind {
		case KindTitle:
			doc.SetFont(fontFamily, "B", 18)
			doc.CellFormat(0, 12, tr(b.Text), "", 1, "C", false, 0, "")
			doc.Ln(4)
		case KindField:
			doc.SetFont(fontFamily, "B", 11)
			doc.CellFormat(fieldLabelW, lineHeight, tr(b.Label+":"), "", 0, "L", false, 0, "")
			doc.SetFont(fontFamily, "", 11)
			doc.MultiCell(0, lineHeight, tr(b.Text), "", "L", false)
		case KindHeading:
			doc.Ln(3)
			doc.SetFont(fontFamily, "B", 13)
			doc.CellFormat(0, 8, tr(b.Text), "", 1, "L", false, 0, "")
		case KindParagraph:
			doc.SetFont(fontFamily, "", 11)
			doc.MultiCell(0, lineHeight, tr(b.Text), "", "L", false)
		case KindBullets:
			doc.SetFont(fontFamily, "", 11)
			for _, item := range b.Items {
				doc.SetX(pageMargin + bulletIndent)
				doc.MultiCell(printable-bulletIndent, lineHeight, tr("• "+item), "", "L", false)
			}
		case KindTable:
			renderTable(doc, tr, b, printable)
		case KindFooter:
		default:
			return nil, fmt.Errorf("render report: unknown block kind %q", b.Kind)
		}
	}

	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// renderTable draws a header row and then one row per Rows entry. Cells
// wrap within their column; a row is as tall as its tallest cell.
func renderTable(doc *fpdf.Fpdf, tr func(string) string, b Block, printable float64) {
	widths := columnWidths(len(b.Columns), printable)
	doc.SetFont(fontFamily, "B", 10)
	for i, col := range b.Columns {
		doc.CellFormat(widths[i], tableRowH, tr(col), "B", 0, "L", false, 0, "")
	}
	doc.Ln(-1)
	doc.SetFont(fontFamily, "", 10)
	_, pageH := doc.GetPageSize()
	_, _, _, bottom := doc.GetMargins()
	for _, row := range b.Rows {
		// SplitLines works on the translated single-byte text
		cells := make([][][]byte, len(widths))
		lines := 1
		for i, w := range widths {
			text := ""
			if i < len(row) {
				text = tr(row[i])
			}
			cells[i] = doc.SplitLines([]byte(text), w)
			if len(cells[i]) > lines {
				lines = len(cells[i])
			}
		}
		h := float64(lines) * lineHeight
		if doc.GetY()+h > pageH-bottom {
			doc.AddPage()
		}
		x, y := doc.GetXY()
		for i, w := range widths {
			for j, line := range cells[i] {
				doc.SetXY(x, y+float64(j)*lineHeight)
				doc.CellFormat(w, lineHeight, string(line), "", 0, "L", false, 0, "")
			}
			x += w
		}
		doc.SetXY(pageMargin, y+h)
	}
}

func columnWidths(n int, printable float64) []float64 {
	if n == len(materialWidths) {
		widths := make([]float64, n)
		for i, frac := range materialWidths {
			widths[i] = printable * frac
		}
		return widths
	}
	widths := make([]float64, n)
	for i := range widths {
		widths[i] = printable / float64(n)
	}
	return widths
}
