package models

import "time"

// AISGap интервал, в течение которого от судна не было отчетов AIS
type AISGap struct {
	GapHours               float64    `json:"gap_hours"`
	LastReportTimestamp    time.Time  `json:"last_report_timestamp"`
	LastReport             *Position  `json:"last_report"`
	CurrentReportTimestamp *time.Time `json:"current_report_timestamp"` // nil - разрыв продолжается
	CurrentReport          *Position  `json:"current_report"`
	LastPort               *Port      `json:"last_port,omitempty"`
	CurrentPort            *Port      `json:"current_port,omitempty"`
}

// IsOngoing разрыв не закрыт новым отчетом
func (g AISGap) IsOngoing() bool {
	return g.CurrentReportTimestamp == nil
}
