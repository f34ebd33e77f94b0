// Package mqttclient publishes report summaries to an MQTT broker.
package mqttclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

const publishTimeout = 5 * time.Second

// ReportSummary is the message published for every built report.
type ReportSummary struct {
	ID                string `json:"id"`
	EpisodeName       string `json:"episode_name"`
	RiskScore         int    `json:"risk_score"`
	HasFlagged        bool   `json:"has_flagged_content"`
	HasMisinformation bool   `json:"has_misinformation"`
	Timestamp         string `json:"timestamp"`
	Source            string `json:"source"` // "http" or "watch"
}

type Client struct {
	conn        mqtt.Client
	topicPrefix string
	connected   atomic.Bool
	published   atomic.Int64
	log         zerolog.Logger
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Log         zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		topicPrefix: strings.Trim(opts.TopicPrefix, "/"),
		log:         opts.Log,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Str("topic", c.ReportsTopic()).Msg("mqtt connected")
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

// ReportsTopic is the topic report summaries are published to.
func (c *Client) ReportsTopic() string {
	return reportsTopic(c.topicPrefix)
}

// Publish sends s at QoS 0 and waits for the client to hand it off.
func (c *Client) Publish(ctx context.Context, s ReportSummary) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	token := c.conn.Publish(c.ReportsTopic(), 0, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("mqtt publish timed out after %s", publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	c.published.Add(1)
	return nil
}

// Published returns how many summaries have been handed to the broker.
func (c *Client) Published() int64 { return c.published.Load() }

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Int64("published", c.Published()).Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}

func reportsTopic(prefix string) string {
	if prefix == "" {
		return "reports"
	}
	return prefix + "/reports"
}
