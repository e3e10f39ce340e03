package sink

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	mqtt "github.com/soypat/natiu-mqtt"
	"golang.org/x/sync/errgroup"
)

var errSinkClosed = errors.New("mqtt sink closed")

// MQTTOptions configures the MQTT sink.
type MQTTOptions struct {
	// Address is the broker host:port.
	Address string
	// Topic receives one JSON report per frame.
	Topic    string
	ClientID string
	Username string
	Password string
	// ConnectTimeout bounds dialing and the CONNECT handshake (default: 5s).
	ConnectTimeout time.Duration
	// KeepAlive is announced to the broker in whole seconds. A PINGREQ is sent every half period
	// (default: 60s).
	KeepAlive time.Duration
}

// MQTT publishes JSON reports with QoS 0. Two goroutines owned by the sink read incoming packets
// and keep the session alive. A lost connection is not re-established; Publish reports it.
type MQTT struct {
	mu       sync.Mutex
	client   *mqtt.Client
	conn     net.Conn
	flags    mqtt.PacketFlags
	topic    []byte
	logger   *slog.Logger
	closed   bool
	timeout  time.Duration
	stopping atomic.Bool
	cancel   context.CancelFunc
	group    errgroup.Group
}

// DialMQTT connects to a broker over TCP and returns a ready sink.
//
// Arguments:
//   - ctx: Cancels the dial and the handshake.
//   - opts: The broker settings.
//   - logger: The logger for broker messages. Nil selects slog.Default().
//
// Returns:
//   - *MQTT: The connected sink.
//   - error: An error if the broker is unreachable or refuses the connection.
func DialMQTT(ctx context.Context, opts MQTTOptions, logger *slog.Logger) (*MQTT, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", opts.Address)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing mqtt broker %s", opts.Address)
	}
	m, err := NewMQTT(ctx, conn, opts, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}

// NewMQTT performs the MQTT handshake over an established connection. The sink owns conn from
// then on.
func NewMQTT(ctx context.Context, conn net.Conn, opts MQTTOptions, logger *slog.Logger) (*MQTT, error) {
	if opts.Topic == "" {
		return nil, errors.New("mqtt topic is required")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 60 * time.Second
	}
	keepAlive := max(1, min(int(opts.KeepAlive/time.Second), 0xffff))
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("sink", "mqtt", "broker", opts.Address, "topic", opts.Topic)

	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 2048)},
		OnPub: func(pubHead mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
			message, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			logger.Debug("received", "header", pubHead.String(), "topic", string(varPub.TopicName), "message", message)
			return nil
		},
	})

	vars := mqtt.VariablesConnect{KeepAlive: uint16(keepAlive)}
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "ortdetect"
	}
	vars.SetDefaultMQTT([]byte(clientID))
	if opts.Username != "" {
		vars.Username = []byte(opts.Username)
		vars.Password = []byte(opts.Password)
	}

	connCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	// A silent broker would otherwise block the CONNACK read past the timeout.
	deadline, _ := connCtx.Deadline()
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "setting mqtt read deadline")
	}
	if err := client.Connect(connCtx, conn, &vars); err != nil {
		return nil, errors.Wrapf(err, "connecting to mqtt broker %s", opts.Address)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, errors.Wrap(err, "clearing mqtt read deadline")
	}

	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	if err != nil {
		return nil, errors.Wrap(err, "building publish flags")
	}

	logger.Info("connected", "client_id", clientID, "keep_alive", keepAlive)
	pingCtx, stop := context.WithCancel(context.Background())
	m := &MQTT{
		client:  client,
		conn:    conn,
		flags:   flags,
		topic:   []byte(opts.Topic),
		logger:  logger,
		timeout: opts.ConnectTimeout,
		cancel:  stop,
	}
	m.group.Go(m.receive)
	m.group.Go(func() error {
		return m.ping(pingCtx, time.Duration(keepAlive)*time.Second/2)
	})
	return m, nil
}

// receive handles incoming packets (PINGRESP, broker PUBLISH) until the sink stops or the
// connection drops.
func (m *MQTT) receive() error {
	for !m.stopping.Load() && m.client.IsConnected() {
		if err := m.client.HandleNext(); err != nil {
			if !m.stopping.Load() {
				m.logger.Error("broker connection lost", "error", err)
			}
			return nil
		}
	}
	return nil
}

// ping sends a PINGREQ every period so the broker keeps the session open.
func (m *MQTT) ping(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if !m.client.IsConnected() {
			return nil
		}
		if m.client.AwaitingPingresp() {
			m.logger.Warn("no PINGRESP from broker", "last_rx", m.client.LastRx())
		}
		if err := m.client.StartPing(); err != nil {
			m.logger.Error("ping failed", "error", err)
			return nil
		}
	}
}

// Publish sends the report as one PUBLISH packet.
func (m *MQTT) Publish(ctx context.Context, report Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := report.Encode()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errSinkClosed
	}
	if !m.client.IsConnected() {
		return errors.Errorf("mqtt client disconnected from %s", m.conn.RemoteAddr())
	}
	// The identifier must be non-zero to validate; it is not sent at QoS 0.
	vars := mqtt.VariablesPublish{TopicName: m.topic, PacketIdentifier: 1}
	if err := m.client.PublishPayload(m.flags, vars, payload); err != nil {
		return errors.Wrapf(err, "publishing frame %d", report.Frame)
	}
	return nil
}

// Close sends DISCONNECT and closes the connection. It is safe to call more than once.
func (m *MQTT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	// The receiver holds the client's read lock while blocked on the connection, and Disconnect
	// needs it. Expire the pending read and wait for both goroutines first.
	m.stopping.Store(true)
	m.cancel()
	_ = m.conn.SetReadDeadline(time.Now())
	_ = m.group.Wait()
	_ = m.conn.SetWriteDeadline(time.Now().Add(m.timeout))

	var first error
	if m.client.IsConnected() {
		if err := m.client.Disconnect(errSinkClosed); err != nil {
			first = errors.Wrap(err, "mqtt disconnect")
		}
	}
	if err := m.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) && first == nil {
		first = errors.Wrap(err, "closing mqtt connection")
	}
	m.logger.Info("disconnected")
	return first
}
