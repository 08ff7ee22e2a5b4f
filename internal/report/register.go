package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const registerSheet = "Daily Logs"

// RegisterRow is one log line of the register with display names resolved.
type RegisterRow struct {
	Date            string
	ProjectName     string
	TeamLeaderName  string
	Status          string
	StartTime       string
	EndTime         string
	Employees       int
	Materials       int
	Photos          int
	Documents       int
	ApprovedBy      string
	WorkDescription string
}

var registerColumns = []struct {
	title string
	width float64
}{
	{"Date", 12},
	{"Project", 24},
	{"Team Leader", 20},
	{"Status", 12},
	{"Work Hours", 20},
	{"Employees", 11},
	{"Materials", 11},
	{"Photos", 9},
	{"Documents", 11},
	{"Approved By", 20},
	{"Work Description", 60},
}

// Register writes rows to a single-sheet xlsx workbook. Times are printed in loc.
func Register(rows []RegisterRow, loc *time.Location) (*bytes.Buffer, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(registerSheet)
	if err != nil {
		return nil, fmt.Errorf("register sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("register sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    []excelize.Border{{Type: "bottom", Color: "#000000", Style: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("register style: %w", err)
	}

	for i, col := range registerColumns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(registerSheet, name, name, col.width); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(registerSheet, cell(i+1, 1), col.title); err != nil {
			return nil, err
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(registerColumns))
	if err := f.SetCellStyle(registerSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, err
	}

	for r, row := range rows {
		line := r + 2
		values := []any{
			formatDate(row.Date),
			row.ProjectName,
			row.TeamLeaderName,
			statusLabel(row.Status),
			formatClock(row.StartTime, loc) + " - " + formatClock(row.EndTime, loc),
			row.Employees,
			row.Materials,
			row.Photos,
			row.Documents,
			row.ApprovedBy,
			row.WorkDescription,
		}
		for c, v := range values {
			if err := f.SetCellValue(registerSheet, cell(c+1, line), v); err != nil {
				return nil, err
			}
		}
	}
	if err := f.SetPanes(registerSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write register: %w", err)
	}
	return buf, nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
