package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/shipscreen/smh-service/internal/config"
	"github.com/shipscreen/smh-service/internal/metrics"
	"github.com/shipscreen/smh-service/internal/smh"
	"github.com/shipscreen/smh-service/pkg/utils"
)

// DefaultConcurrency число задач, выполняемых одновременно
const DefaultConcurrency = 4

// Runner выполняет запрос SMH (service.Task)
type Runner interface {
	Run(ctx context.Context, imo int, req smh.RequestConfig) (*smh.Response, error)
}

// Client MQTT воркер задач SMH
type Client struct {
	client    mqtt.Client
	config    *config.MQTTConfig
	logger    *utils.Logger
	parser    *Parser
	runner    Runner
	timeout   time.Duration
	slots     chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected bool
	mu        sync.RWMutex
}

// NewClient создает новый MQTT воркер
func NewClient(cfg *config.MQTTConfig, parser *Parser, runner Runner, timeout time.Duration, logger *utils.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if parser == nil || runner == nil {
		return nil, fmt.Errorf("parser and runner are required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config:  cfg,
		logger:  logger,
		parser:  parser,
		runner:  runner,
		timeout: timeout,
		slots:   make(chan struct{}, DefaultConcurrency),
		ctx:     ctx,
		cancel:  cancel,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	// подписка повторяется при каждом переподключении
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()

		c.logger.WithField("broker", cfg.URL).Info("Connected to MQTT broker")
		metrics.MQTTConnectionStatus.Set(1)

		if token := client.Subscribe(cfg.RequestTopic, 1, c.messageHandler()); token.Wait() && token.Error() != nil {
			c.logger.WithFields(map[string]interface{}{
				"topic": cfg.RequestTopic,
				"error": token.Error(),
			}).Error("Failed to subscribe to topic")
		} else {
			c.logger.WithField("topic", cfg.RequestTopic).Info("Subscribed to MQTT topic")
		}
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		c.logger.WithField("error", err).Warn("Lost connection to MQTT broker")
		metrics.MQTTConnectionStatus.Set(0)
	})

	c.client = mqtt.NewClient(opts)

	return c, nil
}

// Connect подключается к MQTT брокеру
func (c *Client) Connect() error {
	c.logger.WithField("broker", c.config.URL).Info("Connecting to MQTT broker")

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	timeout := time.After(10 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return fmt.Errorf("connection timeout")
		case <-ticker.C:
			c.mu.RLock()
			connected := c.connected
			c.mu.RUnlock()

			if connected {
				return nil
			}
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}
}

// Disconnect отключается от брокера и дожидается выполняемых задач
func (c *Client) Disconnect() {
	c.logger.Info("Disconnecting from MQTT broker")

	if c.client.IsConnected() {
		c.client.Unsubscribe(c.config.RequestTopic).WaitTimeout(time.Second)
	}

	c.cancel()
	c.wg.Wait()

	if c.client.IsConnected() {
		c.client.Disconnect(1000)
	}
	c.logger.Info("MQTT client disconnected")
}

// IsConnected проверяет статус подключения
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

func (c *Client) messageHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		topic := msg.Topic()
		payload := msg.Payload()

		c.logger.WithFields(map[string]interface{}{
			"topic":        topic,
			"payload_size": len(payload),
			"qos":          msg.Qos(),
		}).Debug("Received MQTT message")
		metrics.MQTTMessagesReceived.WithLabelValues(c.config.RequestTopic).Inc()

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()

			select {
			case c.slots <- struct{}{}:
				defer func() { <-c.slots }()
			case <-c.ctx.Done():
				return
			}

			resultTopic, body := c.process(c.ctx, topic, payload)
			if body == nil {
				return
			}
			if err := c.PublishMessage(resultTopic, body, 1, false); err != nil {
				c.logger.WithFields(map[string]interface{}{
					"topic": resultTopic,
					"error": err,
				}).Error("Failed to publish SMH result")
			}
		}()
	}
}

// process выполняет одну задачу и возвращает топик и тело результата
//
// Неразбираемое сообщение без IMO не порождает ответа: отвечать некуда.
func (c *Client) process(ctx context.Context, topic string, payload []byte) (string, []byte) {
	start := time.Now()
	job, req, err := c.parser.Parse(topic, payload, start)
	if err != nil {
		metrics.MQTTParseErrors.Inc()
		c.logger.WithFields(map[string]interface{}{
			"topic": topic,
			"error": err,
		}).Warn("Failed to parse SMH job")
		if job == nil || job.IMO == 0 {
			return "", nil
		}
		return c.encodeResult(job, nil, err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.runner.Run(runCtx, job.IMO, req)
	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"job_id": job.ID,
			"imo":    job.IMO,
			"error":  err,
		}).Error("SMH job failed")
	} else {
		c.logger.WithFields(map[string]interface{}{
			"job_id":     job.ID,
			"imo":        job.IMO,
			"elapsed_ms": time.Since(start).Milliseconds(),
		}).Info("SMH job completed")
	}
	return c.encodeResult(job, resp, err)
}

func (c *Client) encodeResult(job *Job, resp *smh.Response, runErr error) (string, []byte) {
	result := Result{
		ID:         job.ID,
		IMO:        job.IMO,
		Status:     "ok",
		FinishedAt: time.Now().UTC(),
		Response:   resp,
	}
	if runErr != nil {
		result.Status = "error"
		result.Error = runErr.Error()
	}
	metrics.MQTTResultsPublished.WithLabelValues(result.Status).Inc()

	body, err := json.Marshal(result)
	if err != nil {
		c.logger.WithField("error", err).Error("Failed to encode SMH result")
		return "", nil
	}
	return ResultTopic(c.config.ResultPrefix, job), body
}

// GetStats возвращает статистику клиента
func (c *Client) GetStats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"connected":     c.connected,
		"client_id":     c.config.ClientID,
		"broker_url":    c.config.URL,
		"request_topic": c.config.RequestTopic,
		"result_prefix": c.config.ResultPrefix,
		"in_flight":     len(c.slots),
	}
}

// PublishMessage отправляет сообщение в MQTT топик
func (c *Client) PublishMessage(topic string, payload []byte, qos byte, retained bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish message: %w", token.Error())
	}

	c.logger.WithFields(map[string]interface{}{
		"topic":        topic,
		"payload_size": len(payload),
		"qos":          qos,
	}).Debug("Published MQTT message")

	return nil
}
