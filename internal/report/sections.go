// Package report turns a resolved daily log into an ordered list of layout
// blocks and renders those blocks as a PDF. It also builds the spreadsheet
// register of many logs.
package report

import (
	"strconv"
	"strings"
	"time"

	"sitelog/internal/domain"
)

const (
	longDate   = "January 2, 2006"
	clockTime  = "3:04 PM"
	dateTime   = "January 2, 2006 3:04 PM"
	emptyDash  = "-"
	noEmployee = "No employees recorded"
)

// Resolved is a log together with the directory records it references.
type Resolved struct {
	Log        domain.Log
	Project    domain.Project
	TeamLeader domain.User
	Employees  []domain.Employee
	Approver   *domain.User
}

type BlockKind string

const (
	KindTitle     BlockKind = "title"
	KindField     BlockKind = "field"
	KindHeading   BlockKind = "heading"
	KindParagraph BlockKind = "paragraph"
	KindBullets   BlockKind = "bullets"
	KindTable     BlockKind = "table"
	KindFooter    BlockKind = "footer"
)

// Block is one layout unit. Which fields are meaningful depends on Kind:
// Label for fields, Text for title/field/heading/paragraph/footer, Items for
// bullets, Columns and Rows for tables.
type Block struct {
	Kind    BlockKind
	Label   string
	Text    string
	Items   []string
	Columns []string
	Rows    [][]string
}

// MaterialColumns are the fixed columns of the materials table.
var MaterialColumns = []string{"Material", "Quantity", "Unit", "Notes"}

// Build lays out the fixed report sections for r. Timestamps are printed in
// generatedAt's location.
func Build(r Resolved, generatedAt time.Time) []Block {
	loc := generatedAt.Location()
	l := r.Log
	blocks := []Block{{Kind: KindTitle, Text: "Daily Work Log"}}

	blocks = append(blocks,
		field("Date", formatDate(l.Date)),
		field("Project", r.Project.Name),
	)
	if strings.TrimSpace(r.Project.Address) != "" {
		blocks = append(blocks, field("Address", r.Project.Address))
	}
	blocks = append(blocks,
		field("Team Leader", r.TeamLeader.Name),
		field("Work Hours", formatClock(l.StartTime, loc)+" - "+formatClock(l.EndTime, loc)),
		field("Status", statusLabel(l.Status)),
	)
	if l.Status == domain.StatusApproved {
		if r.Approver != nil {
			blocks = append(blocks, field("Approved By", r.Approver.Name))
		}
		if l.ApprovedAt != nil {
			blocks = append(blocks, field("Approved At", formatDateTime(*l.ApprovedAt, loc)))
		}
	}

	blocks = append(blocks, Block{Kind: KindHeading, Text: "Employees Present"})
	if len(r.Employees) == 0 {
		blocks = append(blocks, Block{Kind: KindParagraph, Text: noEmployee})
	} else {
		names := make([]string, 0, len(r.Employees))
		for _, emp := range r.Employees {
			names = append(names, emp.Name)
		}
		blocks = append(blocks, Block{Kind: KindBullets, Items: names})
	}

	blocks = append(blocks,
		Block{Kind: KindHeading, Text: "Work Description"},
		Block{Kind: KindParagraph, Text: l.WorkDescription},
	)
	blocks = appendOptional(blocks, "Weather", l.Weather)
	blocks = appendOptional(blocks, "Issues Encountered", l.IssuesEncountered)
	blocks = appendOptional(blocks, "Next Steps", l.NextSteps)

	if len(l.MaterialsUsed) > 0 {
		rows := make([][]string, 0, len(l.MaterialsUsed))
		for _, m := range l.MaterialsUsed {
			notes := emptyDash
			if m.Notes != nil && strings.TrimSpace(*m.Notes) != "" {
				notes = *m.Notes
			}
			rows = append(rows, []string{m.Name, FormatQuantity(m.Quantity), m.Unit, notes})
		}
		blocks = append(blocks,
			Block{Kind: KindHeading, Text: "Materials Used"},
			Block{Kind: KindTable, Columns: MaterialColumns, Rows: rows},
		)
	}

	blocks = append(blocks, Block{Kind: KindFooter, Text: "Generated on " + generatedAt.Format(dateTime)})
	return blocks
}

func field(label, text string) Block {
	return Block{Kind: KindField, Label: label, Text: text}
}

func appendOptional(blocks []Block, heading string, v *string) []Block {
	if v == nil || strings.TrimSpace(*v) == "" {
		return blocks
	}
	return append(blocks,
		Block{Kind: KindHeading, Text: heading},
		Block{Kind: KindParagraph, Text: *v},
	)
}

// FormatQuantity prints the shortest decimal form, so 3 is "3" and 2.5 is "2.5".
func FormatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

func formatDate(date string) string {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return date
	}
	return t.Format(longDate)
}

func formatClock(ts string, loc *time.Location) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.In(loc).Format(clockTime)
}

func formatDateTime(ts string, loc *time.Location) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.In(loc).Format(dateTime)
}

func statusLabel(status string) string {
	if status == "" {
		return status
	}
	return strings.ToUpper(status[:1]) + status[1:]
}
