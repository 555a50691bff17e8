package models

import (
	"sort"
	"time"
)

// IHSMovement одна запись о заходе в порт из исторического реестра IHS
//
// Записи в основном только добавляются, но источник может задним числом
// вставлять и исправлять старые заходы.
type IHSMovement struct {
	IHSID        string     `json:"ihs_id"`
	IHSPortID    string     `json:"ihs_port_id,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	SailDateFull *time.Time `json:"sail_date_full,omitempty"`
	PortName     string     `json:"port_name"`
	CountryName  string     `json:"country_name,omitempty"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
}

// SameTimestamp сравнение только по времени захода
func (m IHSMovement) SameTimestamp(other IHSMovement) bool {
	return m.Timestamp.Equal(other.Timestamp)
}

// Equal полное сравнение записи
func (m IHSMovement) Equal(other IHSMovement) bool {
	return m.IHSID == other.IHSID &&
		m.IHSPortID == other.IHSPortID &&
		m.Timestamp.Equal(other.Timestamp) &&
		timePtrEqual(m.SailDateFull, other.SailDateFull) &&
		m.PortName == other.PortName &&
		m.CountryName == other.CountryName &&
		m.Latitude == other.Latitude &&
		m.Longitude == other.Longitude
}

// ToPosition представляет запись IHS как позицию для общего потока с AIS
func (m IHSMovement) ToPosition() Position {
	return Position{
		Timestamp:    m.Timestamp,
		Latitude:     m.Latitude,
		Longitude:    m.Longitude,
		Status:       VisitTypeIHS,
		Source:       SourceIHS,
		SailDateFull: m.SailDateFull,
		IHSID:        m.IHSID,
	}
}

// FallbackPort порт, описанный самой записью IHS (если сервис портов его не нашел)
func (m IHSMovement) FallbackPort() Port {
	code := NoPortCode
	if m.IHSPortID != "" {
		code = "IHS:" + m.IHSPortID
	} else if m.PortName != "" {
		code = "IHS:" + m.PortName
	}
	return Port{
		PortCode:        code,
		PortName:        m.PortName,
		PortCountryName: m.CountryName,
		PortLatitude:    m.Latitude,
		PortLongitude:   m.Longitude,
	}
}

// SortMovementsNewestFirst сортирует записи от новых к старым
func SortMovementsNewestFirst(movements []IHSMovement) {
	sort.SliceStable(movements, func(i, j int) bool {
		return movements[i].Timestamp.After(movements[j].Timestamp)
	})
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
