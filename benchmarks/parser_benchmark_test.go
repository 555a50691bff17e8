package benchmarks

import (
	"testing"
	"time"

	"github.com/shipscreen/smh-service/internal/config"
	"github.com/shipscreen/smh-service/internal/handler"
	"github.com/shipscreen/smh-service/internal/mqtt"
	"github.com/shipscreen/smh-service/internal/smh"
	"github.com/shipscreen/smh-service/pkg/utils"
)

var benchDefaults = config.SMHConfig{
	Rates:              []int{10, 60, 1440},
	TrackRateThreshold: 60,
	DefaultAISDays:     365,
	DefaultAISRate:     60,
	SpeedFilter:        1.5,
	AISGapHours:        24,
	AISGapRate:         10,
}

// Типичные задачи SMH из очереди
var (
	minimalJob = []byte(`{"id":"a1","imo":9074729}`)

	fullJob = []byte(`{"id":"b2","imo":9176187,"reply_to":"smh/replies/b2","params":{` +
		`"ais_days":90,"use_cache":2,"rates":[10,60,1440],"response_type":255,` +
		`"check_for_ihs_updates":3,"port_filter":["JPOSA","JPNGO","NLRTM"],` +
		`"speed_filter":2.5,"eez_table":"eez_v11","eez_field":"territory1"}}`)
)

// BenchmarkParseJob разбор задачи MQTT с наложением параметров на значения по умолчанию
func BenchmarkParseJob(b *testing.B) {
	parser := mqtt.NewParser(benchDefaults, utils.NopLogger())
	now := time.Now()

	testCases := []struct {
		name    string
		topic   string
		payload []byte
	}{
		{"Minimal", "smh/requests", minimalJob},
		{"FullParams", "smh/requests", fullJob},
		{"IMOFromTopic", "smh/requests/9074729", nil},
	}

	for _, tc := range testCases {
		b.Run(tc.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, _, err := parser.Parse(tc.topic, tc.payload, now); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkParseQuery разбор query-параметров REST запроса
func BenchmarkParseQuery(b *testing.B) {
	query := map[string]string{
		"ais_days":              "90",
		"use_cache":             "1",
		"response_type":         "0x85",
		"rates":                 "10,60,1440",
		"check_for_ihs_updates": "3",
		"port_filter":           "JPOSA,JPNGO",
	}
	get := func(key string) (string, bool) {
		v, ok := query[key]
		return v, ok
	}
	defaults := smh.NewRequestConfig(9074729, benchDefaults, time.Now())

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		req, err := handler.ParseParams(defaults, get)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := req.Validate(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkValidateIMO проверка контрольной цифры IMO
func BenchmarkValidateIMO(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = smh.ValidateIMO(9074729)
	}
}
