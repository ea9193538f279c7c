package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var errTokenTimeout = errors.New("mqtt: timed out waiting for broker")

// conn is the slice of an MQTT client the ingest client needs.
type conn interface {
	Connect(ctx context.Context) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
	Disconnect(quiesce time.Duration)
}

type dialOptions struct {
	broker         string
	clientID       string
	username       string
	password       string
	connectTimeout time.Duration
	keepAlive      time.Duration
	maxReconnect   time.Duration
	// ordered delivers messages one at a time, in arrival order.
	ordered bool
}

// callbacks are invoked by the transport from its own goroutines.
type callbacks struct {
	onConnect      func()
	onLost         func(error)
	onReconnecting func()
}

type dialFunc func(dialOptions, callbacks) conn

var bridgeOnce sync.Once

// bridgeLogs routes paho's internal loggers into charmbracelet/log.
func bridgeLogs() {
	bridgeOnce.Do(func() {
		mqtt.ERROR = log.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel})
		mqtt.CRITICAL = log.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel})
		mqtt.WARN = log.StandardLog(log.StandardLogOptions{ForceLevel: log.WarnLevel})
	})
}

type pahoConn struct {
	client  mqtt.Client
	timeout time.Duration
}

func dialPaho(o dialOptions, cb callbacks) conn {
	bridgeLogs()

	opts := mqtt.NewClientOptions().
		AddBroker(o.broker).
		SetClientID(o.clientID).
		SetUsername(o.username).
		SetPassword(o.password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetOrderMatters(o.ordered).
		SetConnectTimeout(o.connectTimeout).
		SetKeepAlive(o.keepAlive).
		SetMaxReconnectInterval(o.maxReconnect)

	opts.SetOnConnectHandler(func(mqtt.Client) { cb.onConnect() })
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) { cb.onLost(err) })
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) { cb.onReconnecting() })

	return &pahoConn{client: mqtt.NewClient(opts), timeout: o.connectTimeout}
}

func (p *pahoConn) Connect(ctx context.Context) error {
	return p.wait(ctx, p.client.Connect())
}

func (p *pahoConn) Subscribe(topic string, qos byte, handler func(string, []byte)) error {
	tok := p.client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		handler(m.Topic(), m.Payload())
	})
	return p.wait(context.Background(), tok)
}

func (p *pahoConn) Unsubscribe(topic string) error {
	return p.wait(context.Background(), p.client.Unsubscribe(topic))
}

func (p *pahoConn) Disconnect(quiesce time.Duration) {
	p.client.Disconnect(uint(quiesce.Milliseconds()))
}

func (p *pahoConn) wait(ctx context.Context, tok mqtt.Token) error {
	var timeout <-chan time.Time
	if p.timeout > 0 {
		t := time.NewTimer(p.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return errTokenTimeout
	}
}
