package benchmarks

// Redis бенчмарки горячего слоя кэша SMH
//
// Для запуска требуется Redis сервер:
// docker run -d -p 6379:6379 redis:alpine
// или:
// make dev-env  # Поднимает Redis + MQTT + MySQL
//
// Ожидаемые результаты:
// - GetLatest (hit, 365 дней): < 2ms
// - Save (insert, 365 дней): < 5ms

import (
	"context"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/shipscreen/smh-service/internal/config"
	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/internal/repository"
	"github.com/shipscreen/smh-service/internal/smh"
	"github.com/shipscreen/smh-service/pkg/utils"
)

// setupRedisForBenchmark creates a Redis client for benchmarking
func setupRedisForBenchmark(b *testing.B) *redis.Client {
	client, err := repository.NewRedisClient(&config.RedisConfig{
		URL:          "redis://localhost:6379",
		DB:           15, // отдельная DB для тестов
		PoolSize:     20,
		MinIdleConns: 5,
	})
	if err != nil {
		b.Fatal(err)
	}

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		b.Skip("Redis not available:", err)
	}
	client.FlushDB(ctx)
	return client
}

// benchEntry снимок SMH, рассчитанный по синтетическому треку
func benchEntry(b *testing.B, days int) *models.CacheEntry {
	req, err := smh.NewRequestConfig(9074729, config.SMHConfig{
		Rates:              []int{10, 60, 1440},
		TrackRateThreshold: 60,
		DefaultAISDays:     days,
		DefaultAISRate:     60,
		SpeedFilter:        1.5,
		AISGapHours:        24,
		AISGapRate:         10,
	}, computeNow).Validate()
	if err != nil {
		b.Fatal(err)
	}

	computer := smh.NewComputer(gridPorts{}, nil, utils.NopLogger())
	entry, err := computer.Compute(context.Background(), req, smh.ComputeInput{
		IMO:       9074729,
		MMSI:      431000000,
		Positions: syntheticVoyages(days),
		From:      req.BeginDate(),
		To:        computeNow,
	}, smh.NewComputationReport(computeNow))
	if err != nil {
		b.Fatal(err)
	}
	return entry
}

// BenchmarkRedisStore чтение и запись снимков через Redis поверх памяти
func BenchmarkRedisStore(b *testing.B) {
	client := setupRedisForBenchmark(b)
	defer client.Close()

	ctx := context.Background()

	for _, days := range []int{30, 365} {
		entry := benchEntry(b, days)

		b.Run(fmt.Sprintf("Save_%dDays", days), func(b *testing.B) {
			store, err := repository.NewRedisStore(client, repository.NewMemoryStore(), 0, utils.NopLogger())
			if err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				e := *entry
				e.ID = 0
				if err := store.Save(ctx, &e, false); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run(fmt.Sprintf("GetLatestHit_%dDays", days), func(b *testing.B) {
			store, err := repository.NewRedisStore(client, repository.NewMemoryStore(), 0, utils.NopLogger())
			if err != nil {
				b.Fatal(err)
			}
			e := *entry
			if err := store.Save(ctx, &e, false); err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := store.GetLatest(ctx, entry.IMO); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkMemoryStore тот же сценарий без Redis, для сравнения
func BenchmarkMemoryStore(b *testing.B) {
	ctx := context.Background()
	entry := benchEntry(b, 365)
	store := repository.NewMemoryStore()
	e := *entry
	if err := store.Save(ctx, &e, false); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.GetLatest(ctx, entry.IMO); err != nil {
			b.Fatal(err)
		}
	}
}
