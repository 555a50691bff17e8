package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// TestConfig параметры публикации тестовых задач
type TestConfig struct {
	BrokerURL    string
	ClientID     string
	RequestTopic string
	ResultPrefix string
	IMOs         []int
	Params       map[string]interface{}
	Repeat       int
	Interval     time.Duration
	Wait         time.Duration
}

// job задача SMH в формате воркера
type job struct {
	ID     string                 `json:"id"`
	IMO    int                    `json:"imo"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// result ответ воркера; ответ SMH выводится только сводкой
type result struct {
	ID       string `json:"id"`
	IMO      int    `json:"imo"`
	Status   string `json:"status"`
	Error    string `json:"error"`
	Response *struct {
		Metadata struct {
			CacheDecision string   `json:"cache_decision"`
			CacheReason   string   `json:"cache_reason"`
			SMHCount      int      `json:"smh_count"`
			UpdateCount   int      `json:"update_count"`
			Warnings      []string `json:"warnings"`
		} `json:"metadata"`
	} `json:"response"`
}

// TestPublisher публикует задачи SMH и собирает ответы
type TestPublisher struct {
	client mqtt.Client
	config *TestConfig

	mu       sync.Mutex
	pending  map[string]time.Time
	finished bool // все задачи опубликованы
	done     chan struct{}
}

func main() {
	var (
		brokerURL    = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
		clientID     = flag.String("client", "smh-test-publisher", "MQTT client ID")
		requestTopic = flag.String("topic", "smh/requests", "Request topic")
		resultPrefix = flag.String("results", "smh/results", "Result topic prefix")
		imosStr      = flag.String("imos", "9074729,9176187", "IMO numbers (comma-separated)")
		paramsStr    = flag.String("params", "", `Job params as JSON, e.g. {"ais_days":90,"response_type":5}`)
		repeat       = flag.Int("repeat", 1, "Jobs per IMO")
		interval     = flag.Duration("interval", time.Second, "Pause between jobs")
		wait         = flag.Duration("wait", 2*time.Minute, "How long to wait for results (0 = don't wait)")
	)
	flag.Parse()

	imos, err := parseIntSlice(*imosStr)
	if err != nil {
		log.Fatalf("Invalid IMO list: %v", err)
	}

	var params map[string]interface{}
	if *paramsStr != "" {
		if err := json.Unmarshal([]byte(*paramsStr), &params); err != nil {
			log.Fatalf("Invalid params JSON: %v", err)
		}
	}

	config := &TestConfig{
		BrokerURL:    *brokerURL,
		ClientID:     *clientID,
		RequestTopic: *requestTopic,
		ResultPrefix: strings.TrimRight(*resultPrefix, "/"),
		IMOs:         imos,
		Params:       params,
		Repeat:       *repeat,
		Interval:     *interval,
		Wait:         *wait,
	}

	publisher, err := NewTestPublisher(config)
	if err != nil {
		log.Fatalf("Failed to create publisher: %v", err)
	}
	defer publisher.client.Disconnect(250)

	fmt.Printf("🚀 Publishing SMH jobs\n")
	fmt.Printf("📡 Broker: %s\n", config.BrokerURL)
	fmt.Printf("🚢 IMO: %v x %d\n", config.IMOs, config.Repeat)
	if len(config.Params) > 0 {
		fmt.Printf("⚙️  Params: %v\n", config.Params)
	}
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	published := publisher.Publish(sigChan)
	if config.Wait <= 0 || published == 0 {
		return
	}

	fmt.Printf("\n⏳ Waiting up to %v for %d results...\n", config.Wait, published)
	select {
	case <-publisher.done:
		fmt.Println("\n✅ All results received")
	case <-time.After(config.Wait):
		fmt.Printf("\n⌛ Timeout, %d results missing\n", publisher.missing())
	case <-sigChan:
		fmt.Println("\n⏹️  Interrupted")
	}
}

// NewTestPublisher подключается к брокеру и подписывается на результаты
func NewTestPublisher(config *TestConfig) (*TestPublisher, error) {
	p := &TestPublisher{
		config:  config,
		pending: make(map[string]time.Time),
		done:    make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.BrokerURL)
	opts.SetClientID(config.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	p.client = mqtt.NewClient(opts)
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	fmt.Println("✅ Connected to MQTT broker")

	topic := config.ResultPrefix + "/+"
	if token := p.client.Subscribe(topic, 1, p.onResult); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}

	return p, nil
}

// Publish отправляет задачи и возвращает число опубликованных
func (p *TestPublisher) Publish(stop <-chan os.Signal) int {
	published := 0
	for round := 1; round <= p.config.Repeat; round++ {
		for _, imo := range p.config.IMOs {
			select {
			case <-stop:
				return published
			default:
			}

			j := job{
				ID:     fmt.Sprintf("test-%d-%d-%d", imo, round, time.Now().UnixNano()%1e6),
				IMO:    imo,
				Params: p.config.Params,
			}
			payload, err := json.Marshal(j)
			if err != nil {
				log.Printf("❌ Encode failed: %v", err)
				continue
			}

			p.mu.Lock()
			p.pending[j.ID] = time.Now()
			p.mu.Unlock()

			token := p.client.Publish(p.config.RequestTopic, 1, false, payload)
			if token.Wait() && token.Error() != nil {
				log.Printf("❌ Publish failed: %v", token.Error())
				p.mu.Lock()
				delete(p.pending, j.ID)
				p.mu.Unlock()
				continue
			}
			published++
			fmt.Printf("📤 %s → IMO %d\n", j.ID, imo)

			time.Sleep(p.config.Interval)
		}
	}

	p.mu.Lock()
	p.finished = true
	if len(p.pending) == 0 {
		p.closeDone()
	}
	p.mu.Unlock()
	return published
}

func (p *TestPublisher) onResult(_ mqtt.Client, msg mqtt.Message) {
	var r result
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		log.Printf("❌ Invalid result on %s: %v", msg.Topic(), err)
		return
	}

	p.mu.Lock()
	started, ok := p.pending[r.ID]
	delete(p.pending, r.ID)
	if ok && len(p.pending) == 0 && p.finished {
		p.closeDone()
	}
	p.mu.Unlock()

	elapsed := "?"
	if ok {
		elapsed = time.Since(started).Round(time.Millisecond).String()
	}

	switch {
	case r.Status != "ok":
		fmt.Printf("❌ %s IMO %d failed in %s: %s\n", r.ID, r.IMO, elapsed, r.Error)
	case r.Response != nil:
		md := r.Response.Metadata
		fmt.Printf("📥 %s IMO %d in %s: %s (%s), visits=%d, updates=%d\n",
			r.ID, r.IMO, elapsed, md.CacheDecision, md.CacheReason, md.SMHCount, md.UpdateCount)
		for _, w := range md.Warnings {
			fmt.Printf("   ⚠️  %s\n", w)
		}
	default:
		fmt.Printf("📥 %s IMO %d in %s\n", r.ID, r.IMO, elapsed)
	}
}

// closeDone вызывается под p.mu
func (p *TestPublisher) closeDone() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

func (p *TestPublisher) missing() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func parseIntSlice(s string) ([]int, error) {
	var result []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", part)
		}
		result = append(result, v)
	}
	return result, nil
}
