package smh

import (
	"fmt"
	"time"

	"github.com/shipscreen/smh-service/internal/models"
)

// IHSPolicy режим проверки обновлений IHS (check_for_ihs_updates)
type IHSPolicy int

const (
	IHSCheckOff       IHSPolicy = 0 // не проверять
	IHSCheckTimestamp IHSPolicy = 1 // сравнение по времени, пересчет
	IHSCheckStrict    IHSPolicy = 2 // полное сравнение, пересчет
	IHSCheckMark      IHSPolicy = 3 // полное сравнение, только пометка
	IHSCheckReplace   IHSPolicy = 4 // полное сравнение, замена списка IHS
)

// IHSAction последствие найденного расхождения
type IHSAction string

const (
	IHSActionNone      IHSAction = "none"
	IHSActionRebuild   IHSAction = "rebuild"
	IHSActionMarkStale IHSAction = "mark_stale"
	IHSActionReplace   IHSAction = "replace"
)

// IHSUpdate первое расхождение между кэшем и свежими записями IHS
type IHSUpdate struct {
	Index  int                 `json:"index"`
	Cached *models.IHSMovement `json:"cached,omitempty"`
	Fresh  *models.IHSMovement `json:"fresh,omitempty"`
	Reason string              `json:"reason"`
}

// IHSCheckResult итог проверки
type IHSCheckResult struct {
	Policy IHSPolicy  `json:"policy"`
	Update *IHSUpdate `json:"update,omitempty"`
	Action IHSAction  `json:"action"`
}

// CheckIHSUpdates сравнивает свежие записи IHS с закэшированными
//
// Свежие записи новее until (граница кэша) не считаются изменением:
// они попадут в инкрементальный расчет.
func CheckIHSUpdates(cached, fresh []models.IHSMovement, until time.Time, policy IHSPolicy) IHSCheckResult {
	result := IHSCheckResult{Policy: policy, Action: IHSActionNone}
	if policy == IHSCheckOff {
		return result
	}

	inSpan := make([]models.IHSMovement, 0, len(fresh))
	for _, m := range fresh {
		if !m.Timestamp.After(until) {
			inSpan = append(inSpan, m)
		}
	}

	result.Update = CompareIHS(cached, inSpan, policy == IHSCheckTimestamp)
	if result.Update == nil {
		return result
	}

	switch policy {
	case IHSCheckTimestamp, IHSCheckStrict:
		result.Action = IHSActionRebuild
	case IHSCheckMark:
		result.Action = IHSActionMarkStale
	case IHSCheckReplace:
		result.Action = IHSActionReplace
	}
	return result
}

// CompareIHS возвращает первое расхождение или nil
//
// Оба списка сортируются от новых к старым, совпадающие ведущие пары пропускаются.
func CompareIHS(cached, fresh []models.IHSMovement, timestampOnly bool) *IHSUpdate {
	c := append([]models.IHSMovement(nil), cached...)
	f := append([]models.IHSMovement(nil), fresh...)
	models.SortMovementsNewestFirst(c)
	models.SortMovementsNewestFirst(f)

	equal := func(a, b models.IHSMovement) bool {
		if timestampOnly {
			return a.SameTimestamp(b)
		}
		return a.Equal(b)
	}

	n := len(c)
	if len(f) < n {
		n = len(f)
	}
	for i := 0; i < n; i++ {
		if equal(c[i], f[i]) {
			continue
		}
		return &IHSUpdate{
			Index:  i,
			Cached: &c[i],
			Fresh:  &f[i],
			Reason: describeMismatch(c[i], f[i], timestampOnly),
		}
	}

	if len(c) != len(f) {
		update := &IHSUpdate{
			Index:  n,
			Reason: fmt.Sprintf("record count changed: cached %d, fresh %d", len(c), len(f)),
		}
		if n < len(c) {
			update.Cached = &c[n]
		}
		if n < len(f) {
			update.Fresh = &f[n]
		}
		return update
	}
	return nil
}

func describeMismatch(cached, fresh models.IHSMovement, timestampOnly bool) string {
	if !cached.SameTimestamp(fresh) || timestampOnly {
		return fmt.Sprintf("timestamp changed: %s -> %s",
			cached.Timestamp.Format(time.RFC3339), fresh.Timestamp.Format(time.RFC3339))
	}
	if cached.PortName != fresh.PortName {
		return fmt.Sprintf("port changed at %s: %q -> %q",
			cached.Timestamp.Format(time.RFC3339), cached.PortName, fresh.PortName)
	}
	return fmt.Sprintf("record changed at %s", cached.Timestamp.Format(time.RFC3339))
}
