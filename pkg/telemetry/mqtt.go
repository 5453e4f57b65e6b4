// Package telemetry publishes actuator events to an MQTT broker.
package telemetry

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/open-teleop/rover/domain/actuator"
	"github.com/open-teleop/rover/pkg/config"
	"github.com/open-teleop/rover/pkg/log"
)

const (
	defaultQueueSize = 16
	qosAtMostOnce    = 0
	publishTimeout   = 2 * time.Second
)

// Message is the JSON body published for every applied change and halt.
type Message struct {
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Halted    bool    `json:"halted"`
	Reason    string  `json:"reason,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

// NewMessage converts an actuator event to its telemetry form.
func NewMessage(e actuator.Event) Message {
	return Message{
		Left:      e.Left,
		Right:     e.Right,
		Halted:    e.Halted,
		Reason:    e.Reason,
		Timestamp: float64(e.Timestamp.UnixNano()) / float64(time.Second),
	}
}

// publishClient is the subset of mqtt.Client the publisher uses.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher forwards actuator events to MQTT off the actuation path.
// Report never blocks; events are dropped when the queue is full.
type Publisher struct {
	client  publishClient
	topic   string
	logger  log.Logger
	queue   chan actuator.Event
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func newPublisher(client publishClient, topic string, logger log.Logger) *Publisher {
	p := &Publisher{
		client: client,
		topic:  topic,
		logger: logger,
		queue:  make(chan actuator.Event, defaultQueueSize),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// NewMQTTPublisher connects to cfg.Broker. The client keeps retrying in the
// background, so an unreachable broker never delays startup.
func NewMQTTPublisher(cfg config.TelemetryConfig, logger log.Logger) *Publisher {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Infof("Connected to MQTT broker %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warnf("MQTT connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	client.Connect()
	return newPublisher(client, cfg.Topic, logger)
}

// Report queues e for publishing.
func (p *Publisher) Report(e actuator.Event) {
	select {
	case p.queue <- e:
	default:
		p.dropped.Add(1)
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for e := range p.queue {
		payload, err := json.Marshal(NewMessage(e))
		if err != nil {
			p.logger.Errorf("Failed to marshal telemetry: %v", err)
			continue
		}
		token := p.client.Publish(p.topic, qosAtMostOnce, false, payload)
		if !token.WaitTimeout(publishTimeout) {
			p.failed.Add(1)
			continue
		}
		if err := token.Error(); err != nil {
			p.failed.Add(1)
			p.logger.Debugf("Telemetry publish failed: %v", err)
		}
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Failed returns the number of publishes that errored or timed out.
func (p *Publisher) Failed() uint64 { return p.failed.Load() }

// Close drains the queue and disconnects.
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.queue)
		p.wg.Wait()
		p.client.Disconnect(250)
	})
}
