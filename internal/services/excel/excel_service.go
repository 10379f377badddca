package excel

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

// Header names accepted when importing a recipient list
var (
	leadIDHeaders = []string{"lead_id", "id", "lead"}
	phoneHeaders  = []string{"phone", "phone_number", "mobile"}
)

// ImportResult contains the recipients read from a spreadsheet
type ImportResult struct {
	LeadIDs []string
	Phones  []string
	// RowsRead counts data rows, blank rows excluded
	RowsRead int
}

// ReadRecipients reads lead ids or phone numbers from the first sheet of an xlsx file.
// The first row is the header; at least one of lead_id or phone must be present.
func ReadRecipients(r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheet)
	}

	leadCol, phoneCol := -1, -1
	for i, header := range rows[0] {
		h := strings.ToLower(strings.TrimSpace(header))
		if leadCol < 0 && contains(leadIDHeaders, h) {
			leadCol = i
		}
		if phoneCol < 0 && contains(phoneHeaders, h) {
			phoneCol = i
		}
	}
	if leadCol < 0 && phoneCol < 0 {
		return nil, fmt.Errorf("header row must contain a lead_id or phone column")
	}

	result := &ImportResult{}
	for _, row := range rows[1:] {
		leadID := cell(row, leadCol)
		phone := cell(row, phoneCol)
		if leadID == "" && phone == "" {
			continue
		}
		result.RowsRead++
		if leadID != "" {
			result.LeadIDs = append(result.LeadIDs, leadID)
			continue
		}
		result.Phones = append(result.Phones, phone)
	}
	return result, nil
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// WriteBatchReport writes a campaign summary sheet and a per-recipient sheet to w
func WriteBatchReport(w io.Writer, campaign *models.BatchCampaign, recipients []models.BatchCampaignRecipient) error {
	f := excelize.NewFile()
	defer f.Close()

	// Create styles for different statuses
	sentStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"C6EFCE"}, // Green
			Pattern: 1,
		},
	})
	failedStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"FFC7CE"}, // Red
			Pattern: 1,
		},
	})
	skippedStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"D9D9D9"}, // Gray
			Pattern: 1,
		},
	})
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"FFFF00"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	summarySheet := "Summary"
	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	summary := [][2]interface{}{
		{"id", campaign.ID},
		{"name", campaign.Name},
		{"status", string(campaign.Status)},
		{"total_leads", campaign.TotalLeads},
		{"batch_size", campaign.BatchSize},
		{"total_batches", campaign.TotalBatches},
		{"batches_sent", campaign.BatchesSent},
		{"leads_sent", campaign.LeadsSent},
		{"leads_failed", campaign.LeadsFailed},
		{"start_date", campaign.StartDate.Format(time.RFC3339)},
		{"estimated_completion", campaign.EstimatedCompletion.Format(time.RFC3339)},
	}
	for i, kv := range summary {
		row := i + 1
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), kv[0])
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), kv[1])
	}
	f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(summary)), headerStyle)
	f.SetColWidth(summarySheet, "A", "A", 25)
	f.SetColWidth(summarySheet, "B", "B", 40)

	recipientSheet := "Recipients"
	if _, err := f.NewSheet(recipientSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	columns := []string{"position", "lead_id", "status", "attempted_at", "last_error"}
	for i, col := range columns {
		f.SetCellValue(recipientSheet, fmt.Sprintf("%s1", columnToLetter(i+1)), col)
	}
	f.SetCellStyle(recipientSheet, "A1", columnToLetter(len(columns))+strconv.Itoa(1), headerStyle)

	for i, col := range columns {
		colLetter := columnToLetter(i + 1)
		width := 20.0
		switch col {
		case "position", "status":
			width = 12.0
		case "lead_id":
			width = 40.0
		case "last_error":
			width = 50.0
		}
		f.SetColWidth(recipientSheet, colLetter, colLetter, width)
	}

	last := columnToLetter(len(columns))
	for j, r := range recipients {
		rowNum := j + 2
		attempted := ""
		if r.AttemptedAt != nil {
			attempted = r.AttemptedAt.Format(time.RFC3339)
		}
		f.SetCellValue(recipientSheet, fmt.Sprintf("A%d", rowNum), r.Position+1)
		f.SetCellValue(recipientSheet, fmt.Sprintf("B%d", rowNum), r.LeadID)
		f.SetCellValue(recipientSheet, fmt.Sprintf("C%d", rowNum), string(r.Status))
		f.SetCellValue(recipientSheet, fmt.Sprintf("D%d", rowNum), attempted)
		f.SetCellValue(recipientSheet, fmt.Sprintf("E%d", rowNum), r.LastError)

		switch r.Status {
		case models.RecipientSent:
			f.SetCellStyle(recipientSheet, fmt.Sprintf("A%d", rowNum), fmt.Sprintf("%s%d", last, rowNum), sentStyle)
		case models.RecipientFailed:
			f.SetCellStyle(recipientSheet, fmt.Sprintf("A%d", rowNum), fmt.Sprintf("%s%d", last, rowNum), failedStyle)
		case models.RecipientSkipped:
			f.SetCellStyle(recipientSheet, fmt.Sprintf("A%d", rowNum), fmt.Sprintf("%s%d", last, rowNum), skippedStyle)
		}
	}
	if len(recipients) == 0 {
		f.SetCellValue(recipientSheet, "A2", "no recipients")
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write Excel file: %w", err)
	}
	return nil
}

// Helper function to convert column number to Excel column letter
func columnToLetter(col int) string {
	var result string
	for col > 0 {
		col--
		result = string(rune('A'+col%26)) + result
		col /= 26
	}
	return result
}
