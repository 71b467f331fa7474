package notify

import (
	"context"
	"encoding/json"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/hearken/internal/conf"
	"github.com/tphakala/hearken/internal/detection"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/logger"
	"github.com/tphakala/hearken/internal/observability/metrics"
)

const (
	outletMQTT = "mqtt"

	defaultConnectTimeout = 30 * time.Second
	defaultPublishTimeout = 10 * time.Second
	disconnectQuiesceMs   = 250
)

// mqttClient is the subset of the paho client the publisher uses.
type mqttClient interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes detections as JSON to a broker topic.
type MQTT struct {
	settings *conf.MQTTSettings
	node     string
	metrics  *metrics.NotifyMetrics

	mu     sync.Mutex
	client mqttClient

	newClient func(opts *mqtt.ClientOptions) mqttClient
}

// NewMQTT returns a publisher; call Connect before publishing. m may be nil.
func NewMQTT(settings *conf.MQTTSettings, node string, m *metrics.NotifyMetrics) *MQTT {
	return &MQTT{
		settings: settings,
		node:     node,
		metrics:  m,
		newClient: func(opts *mqtt.ClientOptions) mqttClient {
			return mqtt.NewClient(opts)
		},
	}
}

func (p *MQTT) Name() string { return outletMQTT }

// Connect resolves the broker and connects. The paho client reconnects on
// its own after a lost connection.
func (p *MQTT) Connect(ctx context.Context) error {
	u, err := url.Parse(p.settings.Broker)
	if err != nil || u.Hostname() == "" {
		return notifyError(errors.NewStd("invalid broker URL"), outletMQTT, "connect").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if host := u.Hostname(); net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return notifyError(err, outletMQTT, "resolve").Context("host", host).Build()
		}
	}

	opts := mqtt.NewClientOptions().
		AddBroker(p.settings.Broker).
		SetClientID(p.clientID()).
		SetUsername(p.settings.Username).
		SetPassword(p.settings.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(defaultConnectTimeout).
		SetOnConnectHandler(func(mqtt.Client) {
			GetLogger().Info("connected to MQTT broker",
				logger.String("broker", logger.RedactSensitiveData(p.settings.Broker)))
			p.setConnected(true)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			GetLogger().Warn("connection to MQTT broker lost", logger.Error(err))
			p.setConnected(false)
		})

	client := p.newClient(opts)
	token := client.Connect()
	if err := waitToken(ctx, token, defaultConnectTimeout); err != nil {
		client.Disconnect(0)
		return notifyError(err, outletMQTT, "connect").Build()
	}

	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	p.setConnected(true)
	return nil
}

// Consume implements events.Consumer.
func (p *MQTT) Consume(ctx context.Context, e *detection.Event) error {
	started := time.Now()
	err := p.publish(ctx, e)
	if p.metrics != nil {
		p.metrics.ObserveDelivery(outletMQTT, started, err)
	}
	return err
}

func (p *MQTT) publish(ctx context.Context, e *detection.Event) error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return notifyError(errors.NewStd("not connected to MQTT broker"), outletMQTT, "publish").Build()
	}

	data, err := json.Marshal(NewPayload(p.node, e))
	if err != nil {
		return notifyError(err, outletMQTT, "marshal").Category(errors.CategoryValidation).Build()
	}

	token := client.Publish(p.settings.Topic, 1, p.settings.Retain, data)
	if err := waitToken(ctx, token, defaultPublishTimeout); err != nil {
		return notifyError(err, outletMQTT, "publish").Context("topic", p.settings.Topic).Build()
	}
	return nil
}

// Connected reports whether the broker connection is up.
func (p *MQTT) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil && p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *MQTT) Close() {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.mu.Unlock()
	if client != nil {
		client.Disconnect(disconnectQuiesceMs)
	}
	p.setConnected(false)
}

func (p *MQTT) clientID() string {
	if p.settings.ClientID != "" {
		return p.settings.ClientID
	}
	if p.node != "" {
		return "hearken-" + p.node
	}
	return "hearken"
}

func (p *MQTT) setConnected(connected bool) {
	if p.metrics != nil {
		p.metrics.UpdateConnectionStatus(connected)
	}
}

// waitToken waits for a paho token, ctx or timeout, whichever comes first.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.NewStd("timed out waiting for broker")
	}
}

func notifyError(err error, outlet, operation string) *errors.ErrorBuilder {
	return errors.New(err).
		Component("notify").
		Category(errors.CategoryNotification).
		Context("outlet", outlet).
		Context("operation", operation)
}
