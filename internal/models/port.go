package models

import (
	"time"
)

const (
	// NoPortCode код "нет порта" от сервиса портов
	NoPortCode = "0"
	// StoppedPortCode синтетический код для стоянки вне порта
	StoppedPortCode = "STOPPED"
	// VisitTypeIHS тип визита, построенного только по записям IHS
	VisitTypeIHS = "IHS"
)

// Port результат поиска порта по координатам
type Port struct {
	PortCode        string  `json:"port_code"`
	PortName        string  `json:"port_name,omitempty"`
	PortCountryName string  `json:"port_country_name,omitempty"`
	PortLatitude    float64 `json:"port_latitude,omitempty"`
	PortLongitude   float64 `json:"port_longitude,omitempty"`
}

// HasPort false для пустого кода и кода "0"
func (p *Port) HasPort() bool {
	return p != nil && p.PortCode != "" && p.PortCode != NoPortCode
}

// IsStopped синтетический порт стоянки
func (p *Port) IsStopped() bool {
	return p != nil && p.PortCode == StoppedPortCode
}

// StoppedPort порт-заглушка для стоянки вне порта
func StoppedPort() Port {
	return Port{PortCode: StoppedPortCode, PortName: "Stopped"}
}

// PortVisit непрерывное пребывание судна в одном порту
type PortVisit struct {
	Port         Port       `json:"port"`
	Entered      time.Time  `json:"entered"`
	Departed     *time.Time `json:"departed"` // nil - судно все еще в порту
	SailDateFull *time.Time `json:"sail_date_full,omitempty"`
	Speed        *float64   `json:"speed,omitempty"`
	Heading      *float64   `json:"heading,omitempty"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	Type         string     `json:"type,omitempty"`
}

// IsOpen визит не завершен
func (v PortVisit) IsOpen() bool {
	return v.Departed == nil
}

// IsStop визит является стоянкой вне порта
func (v PortVisit) IsStop() bool {
	return v.Port.IsStopped()
}

// EndsBefore визит завершился раньше момента t
func (v PortVisit) EndsBefore(t time.Time) bool {
	return v.Departed != nil && v.Departed.Before(t)
}

// Duration длительность визита; для открытого визита считается до now
func (v PortVisit) Duration(now time.Time) time.Duration {
	if v.Departed == nil {
		return now.Sub(v.Entered)
	}
	return v.Departed.Sub(v.Entered)
}

// ReverseVisits переворачивает слайс на месте
func ReverseVisits(visits []PortVisit) {
	for i, j := 0, len(visits)-1; i < j; i, j = i+1, j-1 {
		visits[i], visits[j] = visits[j], visits[i]
	}
}
