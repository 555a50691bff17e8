package mqtt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shipscreen/smh-service/internal/config"
	"github.com/shipscreen/smh-service/internal/smh"
	"github.com/shipscreen/smh-service/pkg/utils"
)

// Job запрос SMH из очереди
//
//	{"id": "a1", "imo": 9074729, "params": {"ais_days": 90, "response_type": 5}}
//
// params использует те же имена, что и query-параметры REST API.
type Job struct {
	ID      string          `json:"id,omitempty"`
	IMO     int             `json:"imo"`
	Params  json.RawMessage `json:"params,omitempty"`
	ReplyTo string          `json:"reply_to,omitempty"`
}

// Result ответ на задачу, публикуется в {ResultPrefix}/{imo}
type Result struct {
	ID         string        `json:"id,omitempty"`
	IMO        int           `json:"imo"`
	Status     string        `json:"status"` // ok, error
	Error      string        `json:"error,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
	Response   *smh.Response `json:"response,omitempty"`
}

// Parser разбирает задачи SMH из MQTT
type Parser struct {
	defaults config.SMHConfig
	logger   *utils.Logger
}

// NewParser создает новый парсер задач
func NewParser(defaults config.SMHConfig, logger *utils.Logger) *Parser {
	return &Parser{
		defaults: defaults,
		logger:   logger,
	}
}

// Parse разбирает задачу и строит параметры запроса поверх значений по умолчанию
//
// Если imo не задан в теле, берется последний сегмент топика (smh/requests/9074729).
func (p *Parser) Parse(topic string, payload []byte, now time.Time) (*Job, smh.RequestConfig, error) {
	var job Job
	payload = bytes.TrimSpace(payload)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &job); err != nil {
			return nil, smh.RequestConfig{}, fmt.Errorf("invalid job payload: %w", err)
		}
	}

	if job.IMO == 0 {
		parts := strings.Split(strings.Trim(topic, "/"), "/")
		if imo, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			job.IMO = imo
		}
	}
	if err := smh.ValidateIMO(job.IMO); err != nil {
		return &job, smh.RequestConfig{}, err
	}

	req := smh.NewRequestConfig(job.IMO, p.defaults, now)
	if len(job.Params) > 0 && !bytes.Equal(job.Params, []byte("null")) {
		if err := json.Unmarshal(job.Params, &req); err != nil {
			return &job, smh.RequestConfig{}, fmt.Errorf("invalid job params: %w", err)
		}
	}
	// imo и время запроса задает не params
	req.IMO = job.IMO
	req.Now = now.UTC()

	req, err := req.Validate()
	if err != nil {
		return &job, smh.RequestConfig{}, err
	}

	p.logger.WithFields(map[string]interface{}{
		"topic":  topic,
		"job_id": job.ID,
		"imo":    job.IMO,
	}).Debug("Parsed SMH job")

	return &job, req, nil
}

// ResultTopic топик для результата задачи
func ResultTopic(prefix string, job *Job) string {
	if job != nil && job.ReplyTo != "" {
		return job.ReplyTo
	}
	imo := 0
	if job != nil {
		imo = job.IMO
	}
	return strings.TrimRight(prefix, "/") + "/" + strconv.Itoa(imo)
}
