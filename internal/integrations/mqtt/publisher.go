package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"facegate-go/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// VerificationEvent is published after every completed verification attempt.
type VerificationEvent struct {
	Verified   bool      `json:"verified"`
	Similarity float64   `json:"similarity"`
	Threshold  float64   `json:"threshold"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher pushes verification events to an MQTT broker. It is optional;
// a disabled publisher accepts events and drops them.
type Publisher struct {
	config config.MQTTConfig
	client mqtt.Client
}

// NewPublisher creates an unconnected publisher.
func NewPublisher(cfg config.MQTTConfig) *Publisher {
	return &Publisher{config: cfg}
}

// Start connects to the broker. Returns nil immediately when disabled.
func (p *Publisher) Start() error {
	if !p.config.Enabled {
		log.Info("MQTT publisher is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", p.config.Broker, p.config.Port))
	opts.SetClientID(p.config.ClientID)

	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("MQTT connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Infof("Connected to MQTT broker %s:%d", p.config.Broker, p.config.Port)
	})

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return nil
}

// PublishVerification sends a verification event. Publish failures are
// logged, never fatal.
func (p *Publisher) PublishVerification(event VerificationEvent) {
	if !p.config.Enabled || p.client == nil || !p.client.IsConnected() {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Errorf("Failed to marshal verification event: %v", err)
		return
	}

	token := p.client.Publish(p.config.Topic, 0, false, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Warnf("Failed to publish verification event: %v", token.Error())
		}
	}()
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		log.Info("MQTT publisher disconnected")
	}
}
