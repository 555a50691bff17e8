package service

import (
	"context"

	"github.com/puzpuzpuz/xsync/v4"
)

// imoLock семафор одного IMO со счетчиком ожидающих
type imoLock struct {
	sem  chan struct{}
	refs int
}

// IMOLocks сериализует расчеты по одному IMO внутри процесса
//
// Запись удаляется из карты, когда ее больше никто не держит и не ждет.
type IMOLocks struct {
	locks *xsync.Map[int, *imoLock]
}

// NewIMOLocks создает пустую карту блокировок
func NewIMOLocks() *IMOLocks {
	return &IMOLocks{locks: xsync.NewMap[int, *imoLock]()}
}

// Lock захватывает блокировку IMO; возвращает функцию освобождения
func (l *IMOLocks) Lock(ctx context.Context, imo int) (func(), error) {
	var lock *imoLock
	l.locks.Compute(imo, func(current *imoLock, loaded bool) (*imoLock, xsync.ComputeOp) {
		if !loaded {
			current = &imoLock{sem: make(chan struct{}, 1)}
		}
		current.refs++
		lock = current
		return current, xsync.UpdateOp
	})

	select {
	case lock.sem <- struct{}{}:
		return func() {
			<-lock.sem
			l.release(imo)
		}, nil
	case <-ctx.Done():
		l.release(imo)
		return nil, ctx.Err()
	}
}

func (l *IMOLocks) release(imo int) {
	l.locks.Compute(imo, func(current *imoLock, loaded bool) (*imoLock, xsync.ComputeOp) {
		if !loaded {
			return current, xsync.CancelOp
		}
		current.refs--
		if current.refs <= 0 {
			return nil, xsync.DeleteOp
		}
		return current, xsync.UpdateOp
	})
}

// Size количество IMO с активными блокировками
func (l *IMOLocks) Size() int {
	return l.locks.Size()
}
