// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string
	ClientID string
	// Topic receives the record lines.
	Topic string
	// CommandTopic is subscribed to for Receive. Empty disables it.
	CommandTopic string
	QoS          byte
	// ConnectTimeout bounds Connect and every Publish.
	ConnectTimeout time.Duration
}

// client is the subset of mqtt.Client the transport uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes lines to a broker topic.
type MQTT struct {
	c       client
	opts    MQTTOptions
	in      chan string
	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// DialMQTT connects to the broker and subscribes to the command topic.
func DialMQTT(opts MQTTOptions) (*MQTT, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	o := mqtt.NewClientOptions().AddBroker(opts.Broker)
	if opts.ClientID != "" {
		o.SetClientID(opts.ClientID)
	}
	o.SetAutoReconnect(true)
	o.SetConnectTimeout(opts.ConnectTimeout)
	c := mqtt.NewClient(o)
	token := c.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("transport: connecting to %s: %w", opts.Broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("transport: connecting to %s: %w", opts.Broker, err)
	}
	m, err := newMQTT(c, opts)
	if err != nil {
		c.Disconnect(250)
		return nil, err
	}
	return m, nil
}

func newMQTT(c client, opts MQTTOptions) (*MQTT, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	m := &MQTT{c: c, opts: opts, in: make(chan string, 16), closeCh: make(chan struct{})}
	if opts.CommandTopic == "" {
		return m, nil
	}
	token := c.Subscribe(opts.CommandTopic, opts.QoS, m.onMessage)
	if !token.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("transport: subscribing to %s: %w", opts.CommandTopic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("transport: subscribing to %s: %w", opts.CommandTopic, err)
	}
	return m, nil
}

// onMessage queues a command, dropping it when the queue is full.
func (m *MQTT) onMessage(_ mqtt.Client, msg mqtt.Message) {
	line := strings.TrimRight(string(msg.Payload()), "\r\n")
	select {
	case m.in <- line:
	default:
	}
}

// Send publishes line followed by "\n" to the record topic.
func (m *MQTT) Send(line string) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	token := m.c.Publish(m.opts.Topic, m.opts.QoS, false, line+"\n")
	if !token.WaitTimeout(m.opts.ConnectTimeout) {
		return fmt.Errorf("transport: publishing to %s: %w", m.opts.Topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: publishing to %s: %w", m.opts.Topic, err)
	}
	return nil
}

// Receive returns the next message of the command topic.
func (m *MQTT) Receive(timeout time.Duration) (string, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case line := <-m.in:
		return line, nil
	case <-m.closeCh:
		return "", ErrClosed
	case <-t.C:
		return "", ErrTimeout
	}
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.closeCh)
	m.c.Disconnect(250)
	return nil
}

func (m *MQTT) String() string {
	return "mqtt " + m.opts.Broker + "/" + m.opts.Topic
}
