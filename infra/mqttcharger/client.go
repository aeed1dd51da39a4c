package mqttcharger

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/mtkallio/spotcharge/core/plan"
	"github.com/mtkallio/spotcharge/infra/logger"
)

// ErrAckTimeout is returned when the charge point does not acknowledge a
// command before the timeout.
var ErrAckTimeout = errors.New("timeout waiting for charger ack")

// Config defines the connection parameters for an MQTT-controlled charge
// point.
type Config struct {
	Broker       string `json:"broker"`
	ClientID     string `json:"client_id"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	CommandTopic string `json:"command_topic"`
	AckTopic     string `json:"ack_topic"`
	QoS          byte   `json:"qos"`
	UseTLS       bool   `json:"use_tls"`
	ClientCert   string `json:"client_cert"`
	ClientKey    string `json:"client_key"`
	CABundle     string `json:"ca_bundle"`
	// AckTimeoutSeconds bounds the wait for a command acknowledgment.
	// Zero defaults to five seconds.
	AckTimeoutSeconds int `json:"ack_timeout_seconds"`
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if c.CommandTopic == "" || c.AckTopic == "" {
		return fmt.Errorf("command_topic and ack_topic are required")
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

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Client controls a charge point over MQTT. Commands carry the charging
// window so the device arms its own timers; each command is acknowledged on
// the ack topic by command ID.
type Client struct {
	cli        pahoClient
	cfg        Config
	ackTimeout time.Duration
	log        logger.Logger

	mu       sync.Mutex
	ackChans map[string]chan struct{}
}

// NewClient connects to the broker and subscribes to the ack topic.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ackTimeout := time.Duration(cfg.AckTimeoutSeconds) * time.Second
	if ackTimeout <= 0 {
		ackTimeout = 5 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		ackTimeout: ackTimeout,
		log:        logger.New("mqtt-charger"),
		ackChans:   make(map[string]chan struct{}),
	}

	opts, err := newClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.OnConnect = func(cli paho.Client) {
		c.log.Infof("MQTT connected")
		if token := cli.Subscribe(cfg.AckTopic, cfg.QoS, c.onAck); token.Wait() && token.Error() != nil {
			c.log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		c.log.Errorf("connection lost: %v", err)
	}

	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	c.cli = cli
	return c, nil
}

func newClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := loadTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

func loadTLSConfig(c Config) (*tls.Config, error) {
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
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

type command struct {
	CommandID string `json:"command_id"`
	Action    string `json:"action"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// StartCharging publishes a start command for the block and waits for the
// acknowledgment.
func (c *Client) StartCharging(ctx context.Context, b plan.Block) error {
	return c.send(ctx, command{
		Action: "start",
		From:   b.Start.Format(time.RFC3339),
		To:     b.End.Format(time.RFC3339),
	})
}

// StopCharging publishes a stop command for the block's end.
func (c *Client) StopCharging(ctx context.Context, b plan.Block) error {
	return c.send(ctx, command{
		Action: "stop",
		To:     b.End.Format(time.RFC3339),
	})
}

func (c *Client) send(ctx context.Context, cmd command) error {
	cmd.CommandID = uuid.NewString()
	cmd.Timestamp = time.Now().UnixMilli()
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	ack := make(chan struct{}, 1)
	c.mu.Lock()
	c.ackChans[cmd.CommandID] = ack
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.ackChans, cmd.CommandID)
		c.mu.Unlock()
	}()

	if token := c.cli.Publish(c.cfg.CommandTopic, c.cfg.QoS, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s command: %w", cmd.Action, token.Error())
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.ackTimeout):
		return fmt.Errorf("%w: %s command %s", ErrAckTimeout, cmd.Action, cmd.CommandID)
	}
}

func (c *Client) onAck(_ paho.Client, msg paho.Message) {
	var m struct {
		CommandID string `json:"command_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		c.log.Errorf("failed to decode ack: %v", err)
		return
	}
	c.mu.Lock()
	if ch, ok := c.ackChans[m.CommandID]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	c.mu.Unlock()
}

// Close disconnects from the broker.
func (c *Client) Close() {
	if c.cli != nil && c.cli.IsConnected() {
		c.cli.Disconnect(250)
	}
}
