package http

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	alerts "vitalwatch-cloud/internal/alerts/domain"
)

// ExportAlertsHandler serves alert-history exports for a device in
// CSV, XLSX or PDF, selected by path suffix.
type ExportAlertsHandler struct {
	query alerts.AlertQuery
}

// NewExportAlertsHandler constructs an export handler.
func NewExportAlertsHandler(query alerts.AlertQuery) (*ExportAlertsHandler, error) {
	if query == nil {
		return nil, errors.New("export handler: nil query")
	}
	return &ExportAlertsHandler{query: query}, nil
}

// ServeHTTP handles GET /api/v1/exports/alerts.{csv,xlsx,pdf}?device_id=X.
func (h *ExportAlertsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}

	list, err := h.query.RecentByDevice(r.Context(), deviceID, defaultAlertsLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, ".csv"):
		h.writeCSV(w, deviceID, list)
	case strings.HasSuffix(r.URL.Path, ".xlsx"):
		h.writeXLSX(w, deviceID, list)
	case strings.HasSuffix(r.URL.Path, ".pdf"):
		h.writePDF(w, deviceID, list)
	default:
		http.Error(w, "unsupported export format", http.StatusNotFound)
	}
}

func (h *ExportAlertsHandler) writeCSV(w http.ResponseWriter, deviceID string, list []alerts.Alert) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="alerts-`+deviceID+`.csv"`)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"id", "device_id", "subject_id", "category", "severity", "message", "value", "raised_at"})
	for _, alert := range list {
		_ = writer.Write([]string{
			alert.ID,
			alert.DeviceID,
			alert.SubjectID,
			string(alert.Category),
			string(alert.Severity),
			alert.Message,
			strconv.FormatFloat(alert.Value, 'f', -1, 64),
			alert.RaisedAt.Format(time.RFC3339),
		})
	}
	writer.Flush()
}

func (h *ExportAlertsHandler) writeXLSX(w http.ResponseWriter, deviceID string, list []alerts.Alert) {
	payload, err := BuildAlertsXLSX(deviceID, list)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="alerts-`+deviceID+`.xlsx"`)
	_, _ = w.Write(payload)
}

func (h *ExportAlertsHandler) writePDF(w http.ResponseWriter, deviceID string, list []alerts.Alert) {
	payload, err := BuildAlertsPDF(deviceID, list)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="alerts-`+deviceID+`.pdf"`)
	_, _ = w.Write(payload)
}

// BuildAlertsXLSX renders a minimal XLSX for an alert history.
func BuildAlertsXLSX(deviceID string, list []alerts.Alert) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "alerts"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Device")
	_ = f.SetCellValue(sheet, "B1", deviceID)
	_ = f.SetCellValue(sheet, "A3", "Raised At")
	_ = f.SetCellValue(sheet, "B3", "Category")
	_ = f.SetCellValue(sheet, "C3", "Severity")
	_ = f.SetCellValue(sheet, "D3", "Value")
	_ = f.SetCellValue(sheet, "E3", "Message")
	for i, alert := range list {
		row := i + 4
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), alert.RaisedAt.Format(time.RFC3339))
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), string(alert.Category))
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), string(alert.Severity))
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), alert.Value)
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), alert.Message)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildAlertsPDF renders a minimal PDF for an alert history.
func BuildAlertsPDF(deviceID string, list []alerts.Alert) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Vitals Alert History")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Device: %s", deviceID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(45, 6, "Raised At", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Category", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Severity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Value", "1", 0, "C", false, 0, "")
	pdf.CellFormat(65, 6, "Message", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, alert := range list {
		pdf.CellFormat(45, 6, alert.RaisedAt.Format(time.RFC3339), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, string(alert.Category), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, string(alert.Severity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, strconv.FormatFloat(alert.Value, 'f', -1, 64), "1", 0, "R", false, 0, "")
		pdf.CellFormat(65, 6, alert.Message, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
