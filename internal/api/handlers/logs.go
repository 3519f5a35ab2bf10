package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/langchou/ocpphub/internal/models"
)

// GetLogs 已完成会话历史，支持 date/station/port 过滤与 CSV 导出
func (h *Handler) GetLogs(c *gin.Context) {
	date := c.Query("date")
	station := c.Query("station")
	port := c.Query("port")

	var portID int
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid port"})
			return
		}
		portID = n
	}

	var sessions []models.CompletedSession
	for _, cs := range h.store.Completed() {
		if date != "" && cs.StartTime.Format("2006-01-02") != date {
			continue
		}
		if station != "" && cs.StationID != station {
			continue
		}
		if port != "" && cs.ConnectorID != portID {
			continue
		}
		sessions = append(sessions, cs)
	}

	if c.Query("format") == "csv" {
		h.writeSessionsCSV(c, sessions)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "sessions": sessions})
}

// GetPortHistory 单枪头的已完成会话
func (h *Handler) GetPortHistory(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid port"})
		return
	}

	var sessions []models.CompletedSession
	for _, cs := range h.store.Completed() {
		if cs.ConnectorID == n {
			sessions = append(sessions, cs)
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "sessions": sessions})
}

// writeSessionsCSV 导出 CSV
func (h *Handler) writeSessionsCSV(c *gin.Context, sessions []models.CompletedSession) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="sessions.csv"`)

	w := csv.NewWriter(c.Writer)
	defer w.Flush()

	w.Write([]string{
		"Date", "Station", "Port", "Start Time", "End Time",
		"Duration (min)", "Energy (kWh)", "Max Power (W)",
		"Avg Voltage (V)", "Avg Current (A)",
	})

	for _, cs := range sessions {
		w.Write([]string{
			cs.StartTime.Format("2006-01-02"),
			cs.StationID,
			strconv.Itoa(cs.ConnectorID),
			cs.StartTime.Format("15:04:05"),
			cs.EndTime.Format("15:04:05"),
			strconv.Itoa(cs.DurationMin),
			fmt.Sprintf("%.2f", cs.EnergyKWh),
			fmt.Sprintf("%.0f", cs.MaxPowerW),
			fmt.Sprintf("%.1f", cs.AvgVoltageV),
			fmt.Sprintf("%.1f", cs.AvgCurrentA),
		})
	}
}
