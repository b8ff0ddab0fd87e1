// Package mqtt is a charge command sink for vehicles bridged to an MQTT
// broker. Commands are published per vehicle and confirmed by an ack message
// carrying the same command id.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/infra/logger"
)

// ErrAckTimeout is returned when no acknowledgment is received before the timeout.
var ErrAckTimeout = errors.New("timeout waiting for ack")

// ErrRejected is returned when the vehicle bridge acknowledges with an error.
var ErrRejected = errors.New("command rejected")

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// CommandTopic is a format string receiving the VIN.
	CommandTopic string          `json:"command_topic"`
	AckTopic     string          `json:"ack_topic"`
	AckTimeout   time.Duration   `json:"ack_timeout"`
	UseTLS       bool            `json:"use_tls"`
	ClientCert   string          `json:"client_cert"`
	ClientKey    string          `json:"client_key"`
	CABundle     string          `json:"ca_bundle"`
	QoS          map[string]byte `json:"qos"`
	LWTTopic     string          `json:"lwt_topic"`
	LWTPayload   string          `json:"lwt_payload"`
	LWTQoS       byte            `json:"lwt_qos"`
	LWTRetain    bool            `json:"lwt_retain"`
	TLSConfig    *tls.Config     `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "smartcharge-" + uuid.NewString()[:8]
	}
	if c.CommandTopic == "" {
		c.CommandTopic = "vehicle/%s/charge_hour"
	}
	if c.AckTopic == "" {
		c.AckTopic = "vehicle/+/ack"
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = 10 * time.Second
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return errors.New("broker is required")
	}
	if strings.Count(c.CommandTopic, "%s") != 1 {
		return fmt.Errorf("command_topic %q must contain exactly one %%s", c.CommandTopic)
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// CommandSink implements vehicle.CommandSink over MQTT.
type CommandSink struct {
	cli          pahoClient
	commandTopic string
	ackTopic     string
	ackTimeout   time.Duration
	qos          map[string]byte

	mu       sync.Mutex
	ackChans map[string]chan ack
	logger   logger.Logger
}

type ack struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewCommandSink connects to the MQTT broker and subscribes to the ACK topic.
func NewCommandSink(cfg Config) (*CommandSink, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_sink")
	s := &CommandSink{
		commandTopic: cfg.CommandTopic,
		ackTopic:     cfg.AckTopic,
		ackTimeout:   cfg.AckTimeout,
		qos:          cfg.QoS,
		ackChans:     make(map[string]chan ack),
		logger:       log,
	}

	subscribed := make(chan struct{})
	var once sync.Once
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Subscribe(s.ackTopic, s.qosFor("ack"), s.onAck); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
			return
		}
		once.Do(func() { close(subscribed) })
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	s.cli = c
	// acks published before the subscription is active would be lost
	select {
	case <-subscribed:
	case <-time.After(opts.ConnectTimeout):
		c.Disconnect(0)
		return nil, fmt.Errorf("subscribe %s: timed out", s.ackTopic)
	}
	return s, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	opts.SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("no certificates in %s", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (s *CommandSink) qosFor(kind string) byte {
	if q, ok := s.qos[kind]; ok {
		return q
	}
	return 1
}

func (s *CommandSink) onAck(_ paho.Client, msg paho.Message) {
	var m struct {
		CommandID string `json:"command_id"`
		ack
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		s.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.ackChans[m.CommandID]
	if !ok {
		s.logger.Debugf("ignoring ack for unknown command %s", m.CommandID)
		return
	}
	select {
	case ch <- m.ack:
	default:
	}
	s.logger.Infof("received ack %s", m.CommandID)
}

type command struct {
	CommandID string `json:"command_id"`
	VIN       string `json:"vin"`
	Hour      int    `json:"hour"`
	Minute    int    `json:"minute"`
	Timestamp int64  `json:"timestamp"`
}

// SetChargeStart publishes the delayed charge start for vin and waits for the
// bridge to acknowledge it. Retrying is left to the caller.
func (s *CommandSink) SetChargeStart(ctx context.Context, vin string, start clock.Time) error {
	cmdID := uuid.NewString()
	payload, err := json.Marshal(command{
		CommandID: cmdID,
		VIN:       vin,
		Hour:      start.Hour,
		Minute:    start.Minute,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	ch := make(chan ack, 1)
	s.mu.Lock()
	s.ackChans[cmdID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.ackChans, cmdID)
		s.mu.Unlock()
	}()

	topic := fmt.Sprintf(s.commandTopic, vin)
	token := s.cli.Publish(topic, s.qosFor("command"), false, payload)
	if !token.WaitTimeout(s.ackTimeout) {
		return fmt.Errorf("publish to %s: %w", topic, ErrAckTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	s.logger.Infof("sent command %s (%s) to %s", cmdID, start, topic)

	timer := time.NewTimer(s.ackTimeout)
	defer timer.Stop()
	select {
	case a := <-ch:
		if a.Status != "" && !strings.EqualFold(a.Status, "ok") {
			return fmt.Errorf("%w: %s %s", ErrRejected, a.Status, a.Error)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("command %s: %w", cmdID, ErrAckTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close gracefully closes the MQTT connection.
func (s *CommandSink) Close() error {
	if s.cli != nil && s.cli.IsConnected() {
		s.cli.Disconnect(250)
	}
	return nil
}
