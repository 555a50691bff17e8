package smh

import (
	"github.com/shipscreen/smh-service/internal/models"
)

// MergeOptions параметры инкрементального слияния
type MergeOptions struct {
	// Заменить список IHS целиком (back-fill найден в режиме 4)
	ReplaceIHS bool
	// Сохранять позиции в кэше
	KeepPositions bool
}

// MergeCache сливает результат инкрементального расчета с предыдущим снимком
//
// fresh рассчитан за период после prev.Options.DataUntil. Все списки
// хранятся от новых к старым. prev не изменяется.
func MergeCache(prev, fresh *models.CacheEntry, opts MergeOptions) *models.CacheEntry {
	if prev == nil {
		return fresh
	}

	merged := models.NewCacheEntry(fresh.IMO)
	merged.ID = prev.ID
	merged.Timestamp = fresh.Timestamp
	merged.Options = fresh.Options
	merged.Options.LastSMHID = prev.ID
	if merged.Options.LastPosition == nil {
		merged.Options.LastPosition = prev.Options.LastPosition
	}
	if merged.Options.MMSI == 0 {
		merged.Options.MMSI = prev.Options.MMSI
	}

	// Частоты, не досчитанные в этом обновлении, отбрасываются: иначе
	// после сдвига DataUntil в их истории остался бы пропуск
	for key, visits := range fresh.PortVisits {
		merged.PortVisits[key] = MergeVisits(visits, prev.PortVisits[key])
	}
	if opts.KeepPositions {
		for key, positions := range fresh.Positions {
			merged.Positions[key] = MergePositions(positions, prev.Positions[key])
		}
	}

	gaps, droppedOngoing := MergeGaps(fresh.AISGaps, prev.AISGaps)
	merged.AISGaps = gaps

	if opts.ReplaceIHS {
		merged.IHSMovements = append([]models.IHSMovement(nil), fresh.IHSMovements...)
	} else {
		merged.IHSMovements = MergeMovements(fresh.IHSMovements, prev.IHSMovements)
	}
	merged.EEZVisits = MergeVisits(fresh.EEZVisits, prev.EEZVisits)
	merged.NonPortStops = MergeVisits(fresh.NonPortStops, prev.NonPortStops)

	// Накопительные счетчики
	merged.CachedDays = prev.CachedDays + fresh.CachedDays
	merged.Options.SMHCount = prev.Options.SMHCount + fresh.Options.SMHCount
	merged.Options.AISPositionsCount = prev.Options.AISPositionsCount + fresh.Options.AISPositionsCount
	merged.Options.AISGapsCount = prev.Options.AISGapsCount + fresh.Options.AISGapsCount
	if droppedOngoing && merged.Options.AISGapsCount > 0 {
		merged.Options.AISGapsCount--
	}
	merged.Options.UpdateCount = prev.Options.UpdateCount + 1

	return merged
}

// MergeVisits склеивает новые визиты с закэшированными
//
// Закэшированные визиты, открытые не раньше самого старого нового визита,
// вытесняются. Если самый свежий оставшийся визит относится к тому же порту
// и еще открыт (или перекрывается с новым), он поглощается: новый визит
// получает его время входа.
func MergeVisits(fresh, cached []models.PortVisit) []models.PortVisit {
	if len(fresh) == 0 {
		return append([]models.PortVisit{}, cached...)
	}

	result := make([]models.PortVisit, len(fresh), len(fresh)+len(cached))
	copy(result, fresh)
	oldest := &result[len(result)-1]

	i := 0
	for i < len(cached) && !cached[i].Entered.Before(oldest.Entered) {
		i++
	}
	rest := cached[i:]

	if len(rest) > 0 && sameStay(rest[0], *oldest) {
		head := rest[0]
		oldest.Entered = head.Entered
		oldest.Latitude = head.Latitude
		oldest.Longitude = head.Longitude
		oldest.Speed = head.Speed
		oldest.Heading = head.Heading
		rest = rest[1:]
	}

	return append(result, rest...)
}

// sameStay закэшированный визит и новый описывают одно пребывание в порту
func sameStay(cached, fresh models.PortVisit) bool {
	if cached.Port.PortCode != fresh.Port.PortCode {
		return false
	}
	return cached.IsOpen() || !cached.Departed.Before(fresh.Entered)
}

// MergePositions отбрасывает закэшированные позиции, перекрытые новыми
func MergePositions(fresh, cached []models.Position) []models.Position {
	if len(fresh) == 0 {
		return append([]models.Position{}, cached...)
	}

	oldest := fresh[len(fresh)-1].Timestamp
	i := 0
	for i < len(cached) && !cached[i].Timestamp.Before(oldest) {
		i++
	}

	result := make([]models.Position, 0, len(fresh)+len(cached)-i)
	result = append(result, fresh...)
	return append(result, cached[i:]...)
}

// MergeGaps удаляет незакрытый закэшированный разрыв и добавляет новые
func MergeGaps(fresh, cached []models.AISGap) ([]models.AISGap, bool) {
	dropped := false
	if len(cached) > 0 && cached[0].IsOngoing() {
		cached = cached[1:]
		dropped = true
	}

	result := make([]models.AISGap, 0, len(fresh)+len(cached))
	result = append(result, fresh...)
	return append(result, cached...), dropped
}

// MergeMovements добавляет новые записи IHS перед закэшированными без повторов
func MergeMovements(fresh, cached []models.IHSMovement) []models.IHSMovement {
	seen := make(map[string]bool, len(fresh))
	for _, m := range fresh {
		if m.IHSID != "" {
			seen[m.IHSID] = true
		}
	}

	result := make([]models.IHSMovement, 0, len(fresh)+len(cached))
	result = append(result, fresh...)
	for _, m := range cached {
		if m.IHSID != "" && seen[m.IHSID] {
			continue
		}
		result = append(result, m)
	}
	return result
}
