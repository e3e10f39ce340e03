package sink

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	packetConnect    = 1
	packetPublish    = 3
	packetPingreq    = 12
	packetDisconnect = 14
)

type packet struct {
	kind byte
	body []byte
}

// readPacket reads one MQTT control packet: a type byte, a variable length remaining length
// and the body.
func readPacket(r io.Reader) (packet, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return packet{}, err
	}
	kind := b[0] >> 4

	n, mult := 0, 1
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return packet{}, err
		}
		n += int(b[0]&0x7f) * mult
		if b[0]&0x80 == 0 {
			break
		}
		mult *= 128
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return packet{}, err
	}
	return packet{kind: kind, body: body}, nil
}

// fakeBroker answers CONNECT with the given CONNACK return code and PINGREQ with PINGRESP. Every
// packet it reads, CONNECT included, is forwarded.
func fakeBroker(t *testing.T, conn net.Conn, code byte) <-chan packet {
	t.Helper()
	out := make(chan packet, 16)
	go func() {
		defer close(out)
		p, err := readPacket(conn)
		if err != nil || p.kind != packetConnect {
			return
		}
		out <- p
		if _, err := conn.Write([]byte{0x20, 0x02, 0x00, code}); err != nil {
			return
		}
		for {
			p, err := readPacket(conn)
			if err != nil {
				return
			}
			if p.kind == packetPingreq {
				// The client may stop reading at any time; keep draining its packets.
				go func() { _, _ = conn.Write([]byte{0xd0, 0x00}) }()
			}
			out <- p
		}
	}()
	return out
}

// publishPacket encodes a QoS 0 PUBLISH as a broker would send it.
func publishPacket(topic, payload string) []byte {
	buf := []byte{0x30, byte(2 + len(topic) + len(payload)), 0, byte(len(topic))}
	buf = append(buf, topic...)
	return append(buf, payload...)
}

// syncBuffer lets the sink's goroutines log while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func next(t *testing.T, packets <-chan packet) packet {
	t.Helper()
	select {
	case p, ok := <-packets:
		require.True(t, ok, "broker connection ended")
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a packet")
		return packet{}
	}
}

func TestMQTTPublish(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	packets := fakeBroker(t, server, 0)

	ctx := context.Background()
	m, err := NewMQTT(ctx, client, MQTTOptions{Topic: "cameras/front", ClientID: "test"}, nil)
	require.NoError(t, err)
	require.Equal(t, byte(packetConnect), next(t, packets).kind)

	report := NewReport(7, 640, 480, testBoxes(), testLabels)
	require.NoError(t, m.Publish(ctx, report), "QoS 0 publish succeeds")
	require.NoError(t, m.Publish(ctx, report), "consecutive publishes succeed")

	p := next(t, packets)
	require.Equal(t, byte(packetPublish), p.kind)
	require.GreaterOrEqual(t, len(p.body), 2)
	topicLen := int(binary.BigEndian.Uint16(p.body))
	assert.Equal(t, "cameras/front", string(p.body[2:2+topicLen]))

	var got Report
	require.NoError(t, json.Unmarshal(p.body[2+topicLen:], &got), "QoS 0 payload follows the topic")
	assert.Equal(t, report, got)

	assert.Equal(t, byte(packetPublish), next(t, packets).kind)

	require.NoError(t, m.Close())
	assert.Equal(t, byte(packetDisconnect), next(t, packets).kind, "close sends DISCONNECT")
	assert.NoError(t, m.Close(), "close is idempotent")
	assert.ErrorIs(t, m.Publish(ctx, report), errSinkClosed)
}

func TestMQTTReceivesAndPings(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	packets := fakeBroker(t, server, 0)

	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := context.Background()
	m, err := NewMQTT(ctx, client, MQTTOptions{Topic: "cameras/front", KeepAlive: time.Second}, logger)
	require.NoError(t, err)
	defer m.Close()

	connect := next(t, packets)
	require.Equal(t, byte(packetConnect), connect.kind)
	require.GreaterOrEqual(t, len(connect.body), 10)
	assert.Equal(t, uint16(1), binary.BigEndian.Uint16(connect.body[8:10]), "keep alive in seconds")

	_, err = server.Write(publishPacket("cameras/cmd", "hello"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		out := logs.String()
		return bytes.Contains([]byte(out), []byte("msg=received")) &&
			bytes.Contains([]byte(out), []byte("topic=cameras/cmd")) &&
			bytes.Contains([]byte(out), []byte(`message="hello"`))
	}, 2*time.Second, 10*time.Millisecond, "incoming PUBLISH reaches the handler")

	assert.Equal(t, byte(packetPingreq), next(t, packets).kind, "PINGREQ within half the keep alive")
	assert.True(t, m.client.IsConnected())

	report := NewReport(1, 640, 480, nil, testLabels)
	require.NoError(t, m.Publish(ctx, report), "publish after a ping round trip")

	for p := next(t, packets); p.kind != packetPublish; p = next(t, packets) {
		require.Equal(t, byte(packetPingreq), p.kind)
	}
	require.NoError(t, m.Close())
}

func TestMQTTConnectTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	go func() { _, _ = io.Copy(io.Discard, server) }()

	start := time.Now()
	_, err := NewMQTT(context.Background(), client, MQTTOptions{
		Topic:          "cameras/front",
		ConnectTimeout: 200 * time.Millisecond,
	}, nil)
	assert.Error(t, err, "a broker that never answers CONNECT")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestMQTTConnectRefused(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	fakeBroker(t, server, 5)

	_, err := NewMQTT(context.Background(), client, MQTTOptions{
		Topic:          "cameras/front",
		ConnectTimeout: 500 * time.Millisecond,
	}, nil)
	assert.Error(t, err)
}

func TestMQTTRequiresTopic(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	_, err := NewMQTT(context.Background(), client, MQTTOptions{}, nil)
	assert.Error(t, err)
}

func TestDialMQTTUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = DialMQTT(context.Background(), MQTTOptions{Address: addr, Topic: "t", ConnectTimeout: time.Second}, nil)
	assert.Error(t, err)
}
