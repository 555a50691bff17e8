package models

import (
	"sort"
	"time"
)

// PositionSource источник позиции
type PositionSource string

const (
	SourceAISTerrestrial PositionSource = "ais-t"
	SourceAISSatellite   PositionSource = "ais-s"
	SourceIHS            PositionSource = "ihs"
)

// Position одиночный отчет о местоположении судна (AIS или IHS)
//
// Поля, полученные от источника, после загрузки не меняются;
// конвейер добавляет только Outlier и Port.
type Position struct {
	Timestamp time.Time      `json:"timestamp"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Speed     *float64       `json:"speed,omitempty"` // узлы
	Heading   *float64       `json:"heading,omitempty"`
	Course    *float64       `json:"course,omitempty"`
	Status    string         `json:"status,omitempty"`
	Source    PositionSource `json:"source"`

	// Только для позиций, построенных из записей IHS
	SailDateFull *time.Time `json:"sail_date_full,omitempty"`
	IHSID        string     `json:"ihs_id,omitempty"`

	Outlier bool  `json:"outlier,omitempty"`
	Port    *Port `json:"port,omitempty"`
}

// Point возвращает координаты позиции
func (p Position) Point() GeoPoint {
	return GeoPoint{Latitude: p.Latitude, Longitude: p.Longitude}
}

// Validate проверяет диапазоны координат
func (p Position) Validate() error {
	return p.Point().Validate()
}

// HasCoordinates false для позиций с нулевыми координатами (0,0)
func (p Position) HasCoordinates() bool {
	return !(p.Latitude == 0 && p.Longitude == 0)
}

// SpeedBelow сообщает, известна ли скорость и меньше ли она порога
func (p Position) SpeedBelow(threshold float64) bool {
	return p.Speed != nil && *p.Speed < threshold
}

// SpeedAbove сообщает, известна ли скорость и больше ли она порога
func (p Position) SpeedAbove(threshold float64) bool {
	return p.Speed != nil && *p.Speed > threshold
}

// IsIHS позиция построена из исторической записи IHS
func (p Position) IsIHS() bool {
	return p.Source == SourceIHS
}

// CleanPositions отбрасывает позиции с координатами вне диапазона
func CleanPositions(positions []Position) []Position {
	result := make([]Position, 0, len(positions))
	for _, p := range positions {
		if p.Validate() != nil {
			continue
		}
		result = append(result, p)
	}
	return result
}

// SortNewestFirst сортирует позиции от новых к старым (стабильно)
func SortNewestFirst(positions []Position) {
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].Timestamp.After(positions[j].Timestamp)
	})
}

// SortChronological сортирует позиции от старых к новым (стабильно)
func SortChronological(positions []Position) {
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].Timestamp.Before(positions[j].Timestamp)
	})
}

// ReversePositions переворачивает слайс на месте
func ReversePositions(positions []Position) {
	for i, j := 0, len(positions)-1; i < j; i, j = i+1, j-1 {
		positions[i], positions[j] = positions[j], positions[i]
	}
}

// Float64 возвращает указатель на значение
func Float64(v float64) *float64 {
	return &v
}

// Time возвращает указатель на значение
func Time(t time.Time) *time.Time {
	return &t
}
