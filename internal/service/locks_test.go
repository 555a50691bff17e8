package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIMOLocks_SerializesSameIMO(t *testing.T) {
	locks := NewIMOLocks()

	var (
		active  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(context.Background(), testIMO)
			if !assert.NoError(t, err) {
				return
			}
			n :=atomic.AddInt32(&active, 1)
			for {
				seen := atomic.LoadInt32(&maxSeen)
				if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Equal(t, 0, locks.Size(), "released locks are removed")
}

func TestIMOLocks_DifferentIMOsDoNotBlock(t *testing.T) {
	locks := NewIMOLocks()

	unlockA, err := locks.Lock(context.Background(), 9074729)
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := locks.Lock(ctx, 9176187)
	require.NoError(t, err)
	unlockB()

	assert.Equal(t, 1, locks.Size())
}

func TestIMOLocks_ContextCancelled(t *testing.T) {
	locks := NewIMOLocks()

	unlock, err := locks.Lock(context.Background(), testIMO)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, testIMO)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Equal(t, 0, locks.Size())
}

// flakyPorts падает первые failures вызовов
type flakyPorts struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyPorts) ResolvePorts(_ context.Context, positions []models.Position) ([]models.Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("port service returned 503")
	}
	ports := make([]models.Port, len(positions))
	for i := range ports {
		ports[i] = models.Port{PortCode: "JPNGO"}
	}
	return ports, nil
}

func onePosition() []models.Position {
	return []models.Position{{Timestamp: testNow, Latitude: 35.0, Longitude: 136.8}}
}

func TestResilientPortResolver_RetriesThenSucceeds(t *testing.T) {
	inner := &flakyPorts{failures: 2}
	r := NewResilientPortResolver(inner, 3, time.Millisecond, utils.NopLogger())

	ports, err := r.ResolvePorts(context.Background(), onePosition())
	require.NoError(t, err)
	require.Len(t, ports, 1)
	assert.Equal(t, "JPNGO", ports[0].PortCode)
	assert.Equal(t, 3, inner.calls)
}

func TestResilientPortResolver_Degrades(t *testing.T) {
	inner := &flakyPorts{failures: 100}
	r := NewResilientPortResolver(inner, 3, time.Millisecond, utils.NopLogger())

	_, err := r.ResolvePorts(context.Background(), onePosition())
	assert.ErrorIs(t, err, ErrPortsDegraded)
	assert.Equal(t, 3, inner.calls)
}

func TestResilientPortResolver_OpenBreakerSkipsCalls(t *testing.T) {
	inner := &flakyPorts{failures: 100}
	r := NewResilientPortResolver(inner, 5, 0, utils.NopLogger())

	_, err := r.ResolvePorts(context.Background(), onePosition())
	assert.ErrorIs(t, err, ErrPortsDegraded)
	assert.Equal(t, 5, inner.calls)
	assert.Equal(t, "open", r.State())

	_, err = r.ResolvePorts(context.Background(), onePosition())
	assert.ErrorIs(t, err, ErrPortsDegraded)
	assert.Equal(t, 5, inner.calls, "open breaker must not reach the port service")
}

func TestResilientPortResolver_EmptyInput(t *testing.T) {
	inner := &flakyPorts{}
	r := NewResilientPortResolver(inner, 3, time.Millisecond, utils.NopLogger())

	ports, err := r.ResolvePorts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ports)
	assert.Zero(t, inner.calls)
}

func TestResilientPortResolver_ContextCancelled(t *testing.T) {
	inner := &flakyPorts{failures: 100}
	r := NewResilientPortResolver(inner, 3, time.Hour, utils.NopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.ResolvePorts(ctx, onePosition())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
