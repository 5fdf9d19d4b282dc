// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package transport

import (
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type token struct {
	err error
}

func (t *token) Wait() bool                     { return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Error() error                   { return t.err }
func (t *token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic   string
	payload []byte
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return 0 }
func (m *message) Retained() bool    { return false }
func (m *message) Topic() string     { return m.topic }
func (m *message) MessageID() uint16 { return 1 }
func (m *message) Payload() []byte   { return m.payload }
func (m *message) Ack()              {}

type published struct {
	topic   string
	payload interface{}
}

type fakeClient struct {
	published    []published
	handlers     map[string]mqtt.MessageHandler
	publishErr   error
	subscribeErr error
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, published{topic: topic, payload: payload})
	return &token{err: c.publishErr}
}

func (c *fakeClient) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	if c.handlers == nil {
		c.handlers = map[string]mqtt.MessageHandler{}
	}
	c.handlers[topic] = cb
	return &token{err: c.subscribeErr}
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

func TestMQTTSend(t *testing.T) {
	c := &fakeClient{}
	m, err := newMQTT(c, MQTTOptions{Topic: "sensorhub/records"})
	require.NoError(t, err)
	require.NoError(t, m.Send(`{"flame":false}`))
	require.Len(t, c.published, 1)
	assert.Equal(t, "sensorhub/records", c.published[0].topic)
	assert.Equal(t, "{\"flame\":false}\n", c.published[0].payload)

	c.publishErr = errors.New("broker gone")
	assert.Error(t, m.Send("x"))
}

func TestMQTTReceive(t *testing.T) {
	c := &fakeClient{}
	m, err := newMQTT(c, MQTTOptions{Topic: "records", CommandTopic: "commands"})
	require.NoError(t, err)
	require.Contains(t, c.handlers, "commands")

	c.handlers["commands"](nil, &message{topic: "commands", payload: []byte("ping\r\n")})
	line, err := m.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ping", line)

	_, err = m.Receive(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, m.Close())
	assert.True(t, c.disconnected)
	_, err = m.Receive(time.Second)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Send("x"), ErrClosed)
}

func TestMQTTSubscribeError(t *testing.T) {
	c := &fakeClient{subscribeErr: errors.New("not authorized")}
	_, err := newMQTT(c, MQTTOptions{CommandTopic: "commands"})
	assert.Error(t, err)
}
