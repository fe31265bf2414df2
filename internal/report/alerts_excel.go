package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"owl-alerts/internal/domain"

	"github.com/xuri/excelize/v2"
)

// AlertsSheet 工作表名称
const AlertsSheet = "Alerts"

// AlertsReportHeader 导出表头
var AlertsReportHeader = []string{
	"ID",
	"Title",
	"Severity",
	"Pages",
	"Show On Home",
	"Active",
	"Created By",
	"Has Image",
	"Views",
	"Created At",
	"Updated At",
	"Message",
}

var alertsColumnWidths = []float64{
	8,  // ID
	40, // Title
	12, // Severity
	30, // Pages
	14, // Show On Home
	10, // Active
	12, // Created By
	12, // Has Image
	10, // Views
	20, // Created At
	20, // Updated At
	60, // Message
}

// 按严重程度着色（Severity 列）
var severityColors = map[domain.Severity]string{
	domain.SeverityLow:      "#E2EFDA",
	domain.SeverityMedium:   "#FFF2CC",
	domain.SeverityHigh:     "#FCE4D6",
	domain.SeverityCritical: "#F8CBAD",
}

// GenerateAlertsReport 生成告警导出 Excel 文件
// viewCounts: 告警 id -> 已读数，缺失按 0 处理
func GenerateAlertsReport(alerts []*domain.Alert, viewCounts map[int64]int) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(AlertsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	severityStyles := make(map[domain.Severity]int, len(severityColors))
	for sev, color := range severityColors {
		style, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create severity style: %w", err)
		}
		severityStyles[sev] = style
	}

	for col, header := range AlertsReportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(AlertsSheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(AlertsSheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}

		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(AlertsSheet, name, name, alertsColumnWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, a := range alerts {
		row := i + 2 // 第1行是表头
		values := alertRow(a, viewCounts[a.ID])
		for col, value := range values {
			if value == nil || value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(AlertsSheet, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, col+1, err)
			}
		}
		if style, ok := severityStyles[a.Severity]; ok {
			cell, _ := excelize.CoordinatesToCellName(3, row)
			if err := f.SetCellStyle(AlertsSheet, cell, cell, style); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set severity style: %w", err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(AlertsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func alertRow(a *domain.Alert, views int) []any {
	createdBy := ""
	if a.CreatedBy.Valid {
		createdBy = strconv.FormatInt(a.CreatedBy.Int64, 10)
	}
	message := ""
	if a.Message.Valid {
		message = a.Message.String
	}
	return []any{
		a.ID,
		a.Title,
		a.Severity.String(),
		strings.Join(a.Pages, ", "),
		yesNo(a.ShowOnHome),
		yesNo(a.Active),
		createdBy,
		yesNo(a.HasImage),
		views,
		formatTime(a.CreatedAt),
		formatTime(a.UpdatedAt),
		message,
	}
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
