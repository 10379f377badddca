package excel

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

func workbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cellRef, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cellRef, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf
}

func TestReadRecipients(t *testing.T) {
	buf := workbook(t, [][]interface{}{
		{"Name", " Lead_ID ", "Phone"},
		{"An", "aaaaaaaa-0000-0000-0000-000000000001", "+84900000001"},
		{"Binh", "", "+84900000002"},
		{"", "", ""},
		{"Chi", " aaaaaaaa-0000-0000-0000-000000000003 ", ""},
	})

	got, err := ReadRecipients(buf)
	if err != nil {
		t.Fatalf("ReadRecipients: %v", err)
	}
	if got.RowsRead != 3 {
		t.Errorf("RowsRead = %d, want 3", got.RowsRead)
	}
	if len(got.LeadIDs) != 2 || got.LeadIDs[1] != "aaaaaaaa-0000-0000-0000-000000000003" {
		t.Errorf("LeadIDs = %v", got.LeadIDs)
	}
	if len(got.Phones) != 1 || got.Phones[0] != "+84900000002" {
		t.Errorf("Phones = %v", got.Phones)
	}
}

func TestReadRecipientsRejectsUnknownHeaders(t *testing.T) {
	buf := workbook(t, [][]interface{}{{"name", "email"}, {"An", "an@example.com"}})
	if _, err := ReadRecipients(buf); err == nil {
		t.Error("expected an error for a sheet without lead_id or phone")
	}
	if _, err := ReadRecipients(bytes.NewReader([]byte("not a spreadsheet"))); err == nil {
		t.Error("expected an error for a non-xlsx input")
	}
}

func TestWriteBatchReport(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	attempted := start.Add(time.Hour)
	campaign := &models.BatchCampaign{
		ID:                  "bbbbbbbb-0000-0000-0000-000000000001",
		Name:                "Spring promo",
		Status:              models.BatchStatusRunning,
		TotalLeads:          2,
		BatchSize:           1,
		TotalBatches:        2,
		BatchesSent:         1,
		LeadsSent:           1,
		StartDate:           start,
		EstimatedCompletion: start.Add(72 * time.Hour),
	}
	recipients := []models.BatchCampaignRecipient{
		{LeadID: "lead-1", Position: 0, Status: models.RecipientSent, AttemptedAt: &attempted},
		{LeadID: "lead-2", Position: 1, Status: models.RecipientFailed, AttemptedAt: &attempted, LastError: "carrier rejected"},
	}

	var buf bytes.Buffer
	if err := WriteBatchReport(&buf, campaign, recipients); err != nil {
		t.Fatalf("WriteBatchReport: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	if name, _ := f.GetCellValue("Summary", "B2"); name != "Spring promo" {
		t.Errorf("summary name = %q", name)
	}
	rows, err := f.GetRows("Recipients")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header plus 2", len(rows))
	}
	if rows[2][1] != "lead-2" || rows[2][2] != "failed" || rows[2][4] != "carrier rejected" {
		t.Errorf("row 3 = %v", rows[2])
	}
}

func TestColumnToLetter(t *testing.T) {
	for col, want := range map[int]string{1: "A", 5: "E", 26: "Z", 27: "AA", 53: "BA"} {
		if got := columnToLetter(col); got != want {
			t.Errorf("columnToLetter(%d) = %q, want %q", col, got, want)
		}
	}
}
