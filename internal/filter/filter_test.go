package filter

import (
	"testing"
	"time"

	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func position(minutes int, lat, lon float64, speed *float64) models.Position {
	return models.Position{
		Timestamp: baseTime.Add(time.Duration(minutes) * time.Minute),
		Latitude:  lat,
		Longitude: lon,
		Speed:     speed,
		Source:    models.SourceAISTerrestrial,
	}
}

// ~1 км по широте
const kmStep = 0.009

func TestReduceRate(t *testing.T) {
	t.Run("empty input yields empty output", func(t *testing.T) {
		result := ReduceRate(nil, time.Hour, baseTime, baseTime.Add(time.Hour))
		assert.Empty(t, result)
	})

	t.Run("oldest position in window is anchored", func(t *testing.T) {
		// От новых к старым: 90, 80, ... 0 минут
		var positions []models.Position
		for m := 90; m >= 0; m -= 10 {
			positions = append(positions, position(m, 10, 10, nil))
		}

		result := ReduceRate(positions, time.Hour, baseTime, baseTime.Add(2*time.Hour))

		require.Len(t, result, 3)
		assert.Equal(t, baseTime, result[0].Timestamp)
		assert.Equal(t, baseTime.Add(30*time.Minute), result[1].Timestamp)
		assert.Equal(t, baseTime.Add(90*time.Minute), result[2].Timestamp)
	})

	t.Run("anchor is not duplicated when spacing keeps it", func(t *testing.T) {
		positions := []models.Position{
			position(120, 10, 10, nil),
			position(60, 10, 10, nil),
			position(0, 10, 10, nil),
		}

		result := ReduceRate(positions, time.Hour, baseTime, baseTime.Add(3*time.Hour))

		require.Len(t, result, 3)
		assert.Equal(t, baseTime, result[0].Timestamp)
	})

	t.Run("reports sharing a kept timestamp are kept", func(t *testing.T) {
		positions := []models.Position{
			position(60, 10, 10, nil),
			position(60, 10.01, 10, nil),
			position(50, 10, 10, nil),
			position(0, 10, 10, nil),
		}

		result := ReduceRate(positions, time.Hour, baseTime, baseTime.Add(2*time.Hour))

		require.Len(t, result, 3)
		assert.Equal(t, baseTime, result[0].Timestamp)
		assert.Equal(t, baseTime.Add(time.Hour), result[1].Timestamp)
		assert.Equal(t, baseTime.Add(time.Hour), result[2].Timestamp)
		assert.Equal(t, 10.01, result[1].Latitude)
	})

	t.Run("positions outside the window are ignored", func(t *testing.T) {
		positions := []models.Position{
			position(300, 10, 10, nil),
			position(200, 10, 10, nil),
			position(100, 10, 10, nil),
			position(0, 10, 10, nil),
		}

		result := ReduceRate(positions, 10*time.Minute, baseTime.Add(50*time.Minute), baseTime.Add(250*time.Minute))

		require.Len(t, result, 2)
		assert.Equal(t, baseTime.Add(100*time.Minute), result[0].Timestamp)
		assert.Equal(t, baseTime.Add(200*time.Minute), result[1].Timestamp)
	})

	t.Run("nothing in window", func(t *testing.T) {
		positions := []models.Position{position(0, 10, 10, nil)}
		result := ReduceRate(positions, time.Hour, baseTime.Add(time.Hour), baseTime.Add(2*time.Hour))
		assert.Empty(t, result)
	})
}

func TestRateReducer_NegativeRate(t *testing.T) {
	f := NewRateReducer(-1, baseTime, baseTime, utils.NopLogger())
	_, err := f.Filter(&TrackData{IMO: 9074729})
	assert.Error(t, err)
}

func TestSpeedFilter(t *testing.T) {
	logger := utils.NopLogger()

	t.Run("threshold 99 disables filtering", func(t *testing.T) {
		config := DefaultFilterConfig()
		config.SpeedFilter = 99
		f := NewSpeedFilter(config, logger)

		var points []models.Position
		for i := 0; i < 10; i++ {
			points = append(points, position(i*10, 10+float64(i)*kmStep, 10, models.Float64(12)))
		}

		result, err := f.Filter(&TrackData{Points: points})
		require.NoError(t, err)
		assert.Len(t, result.Points, 10)
	})

	t.Run("stop resets countdown and cruising reports are dropped", func(t *testing.T) {
		f := NewSpeedFilter(DefaultFilterConfig(), logger)

		points := []models.Position{position(0, 10, 10, models.Float64(10))}
		points = append(points, position(10, 10+kmStep, 10, models.Float64(0.5)))
		for i := 2; i <= 8; i++ {
			points = append(points, position(i*10, 10+float64(i)*kmStep, 10, models.Float64(12)))
		}
		points = append(points, position(90, 10+9*kmStep, 10, models.Float64(12)))

		result, err := f.Filter(&TrackData{Points: points})
		require.NoError(t, err)

		// первая + остановка + 5 после остановки + последняя
		require.Len(t, result.Points, 8)
		assert.Equal(t, 2, result.Statistics.Cruising)
		assert.Equal(t, points[0].Timestamp, result.Points[0].Timestamp)
		assert.Equal(t, points[6].Timestamp, result.Points[6].Timestamp)
		assert.Equal(t, points[9].Timestamp, result.Points[7].Timestamp)
	})

	t.Run("small displacement is skipped", func(t *testing.T) {
		f := NewSpeedFilter(DefaultFilterConfig(), logger)

		points := []models.Position{
			position(0, 10, 10, models.Float64(0.1)),
			position(10, 10.0001, 10, models.Float64(0.1)),
			position(20, 10.0002, 10, models.Float64(0.1)),
			position(30, 10.0003, 10, models.Float64(0.1)),
		}

		result, err := f.Filter(&TrackData{Points: points})
		require.NoError(t, err)
		assert.Len(t, result.Points, 2)
		assert.Equal(t, 2, result.Statistics.Stationary)
	})

	t.Run("unknown speed counts as moving", func(t *testing.T) {
		f := NewSpeedFilter(DefaultFilterConfig(), logger)

		points := []models.Position{
			position(0, 10, 10, nil),
			position(10, 10+kmStep, 10, nil),
			position(20, 10+2*kmStep, 10, nil),
		}

		result, err := f.Filter(&TrackData{Points: points})
		require.NoError(t, err)
		assert.Len(t, result.Points, 2)
	})

	t.Run("first and last are always kept", func(t *testing.T) {
		f := NewSpeedFilter(DefaultFilterConfig(), logger)

		for n := 1; n <= 12; n++ {
			var points []models.Position
			for i := 0; i < n; i++ {
				points = append(points, position(i*10, 10+float64(i%3)*kmStep, 10, models.Float64(float64(i%4))))
			}

			result, err := f.Filter(&TrackData{Points: points})
			require.NoError(t, err)
			require.NotEmpty(t, result.Points)
			assert.Equal(t, points[0].Timestamp, result.Points[0].Timestamp)
			assert.Equal(t, points[n-1].Timestamp, result.Points[len(result.Points)-1].Timestamp)
		}
	})
}

func TestOutlierMarker(t *testing.T) {
	logger := utils.NopLogger()
	f := NewOutlierMarker(DefaultFilterConfig(), logger)

	t.Run("isolated spike is marked, not dropped", func(t *testing.T) {
		points := []models.Position{
			position(0, 10, 10, nil),
			position(60, 10.1, 10, nil),
			position(120, 15, 10, nil), // ~290 nm за час
			position(180, 10.2, 10, nil),
			position(240, 10.3, 10, nil),
		}

		result, err := f.Filter(&TrackData{IMO: 9074729, Points: points})
		require.NoError(t, err)
		require.Len(t, result.Points, 5)
		assert.True(t, result.Points[2].Outlier)
		assert.False(t, result.Points[3].Outlier)
		assert.Equal(t, 1, result.Statistics.Outliers)
		assert.False(t, points[2].Outlier, "input must stay untouched")
	})

	t.Run("confirmed jump is accepted", func(t *testing.T) {
		points := []models.Position{
			position(0, 10, 10, nil),
			position(60, 15, 10, nil),
			position(120, 15.1, 10, nil),
		}

		result, err := f.Filter(&TrackData{Points: points})
		require.NoError(t, err)
		for _, p := range result.Points {
			assert.False(t, p.Outlier)
		}
	})

	t.Run("duplicate timestamp at the same place is fine", func(t *testing.T) {
		points := []models.Position{
			position(0, 10, 10, nil),
			position(0, 10, 10, nil),
		}

		result, err := f.Filter(&TrackData{Points: points})
		require.NoError(t, err)
		assert.False(t, result.Points[1].Outlier)
	})
}

func TestRateChain(t *testing.T) {
	var newestFirst []models.Position
	for m := 600; m >= 0; m -= 10 {
		newestFirst = append(newestFirst, position(m, 10+float64(m)*kmStep/10, 10, models.Float64(12)))
	}

	chain := NewRateChain(60, baseTime, baseTime.Add(24*time.Hour), DefaultFilterConfig(), utils.NopLogger())
	result, err := chain.Filter(&TrackData{IMO: 9074729, Points: newestFirst})
	require.NoError(t, err)
	require.NotEmpty(t, result.Points)

	assert.Equal(t, baseTime, result.Points[0].Timestamp)
	assert.Equal(t, baseTime.Add(600*time.Minute), result.Points[len(result.Points)-1].Timestamp)
	for i := 1; i < len(result.Points); i++ {
		assert.True(t, result.Points[i].Timestamp.After(result.Points[i-1].Timestamp))
	}
	assert.Contains(t, chain.Description(), "RateReducer")
}
