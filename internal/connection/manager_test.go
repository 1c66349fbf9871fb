package connection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/marketsync/internal/feed"
)

// feedServer is a fake push feed that records control frames.
type feedServer struct {
	url      string
	controls chan feed.Control
	conns    atomic.Int32
	close    func()
}

func newFeedServer(t *testing.T, onConnect func(n int32, conn *websocket.Conn)) *feedServer {
	fs := &feedServer{controls: make(chan feed.Control, 100)}
	server := mockWSServer(t, func(conn *websocket.Conn) {
		n := fs.conns.Add(1)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				msgType, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if msgType != websocket.BinaryMessage {
					continue
				}
				c, err := feed.DecodeControl(data)
				if err != nil {
					t.Errorf("bad control frame: %v", err)
					continue
				}
				fs.controls <- c
			}
		}()
		if onConnect != nil {
			onConnect(n, conn)
		}
		<-done
	})
	fs.url = wsURL(server)
	fs.close = server.Close
	return fs
}

func (fs *feedServer) nextControl(t *testing.T) feed.Control {
	t.Helper()
	select {
	case c := <-fs.controls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for control frame")
		return feed.Control{}
	}
}

func testManagerConfig(url string) ManagerConfig {
	return ManagerConfig{
		Client: ClientConfig{
			URL:          url,
			PingInterval: time.Minute,
			PingTimeout:  time.Minute,
			WriteTimeout: time.Second,
			BufferSize:   10,
		},
		ReconnectBaseWait: 10 * time.Millisecond,
		ReconnectMaxWait:  50 * time.Millisecond,
		MessageBufferSize: 10,
	}
}

func TestManager_SubscribesAndForwards(t *testing.T) {
	frame, err := feed.Encode(feed.Message{Event: feed.EventSalesAdd, ItemID: 5, WorldID: 73})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	fs := newFeedServer(t, func(n int32, conn *websocket.Conn) {
		time.Sleep(50 * time.Millisecond)
		conn.WriteMessage(websocket.BinaryMessage, frame)
	})
	defer fs.close()

	m := NewManager(testManagerConfig(fs.url), nil)
	ch := feed.Channel{Event: feed.EventSalesAdd, WorldID: 73}
	if err := m.Subscribe(ch); err != nil {
		t.Fatalf("Subscribe before start: %v", err)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop(context.Background())

	c := fs.nextControl(t)
	if c.Mode != feed.ModeSubscribe || c.Channel != ch {
		t.Errorf("control = %+v, want subscribe %v", c, ch)
	}

	select {
	case raw := <-m.Messages():
		if string(raw.Data) != string(frame) {
			t.Error("forwarded frame differs from sent frame")
		}
		if raw.ConnID == "" {
			t.Error("ConnID should be set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for forwarded frame")
	}

	if got := m.Stats().Subscriptions; got != 1 {
		t.Errorf("Subscriptions = %d, want 1", got)
	}
}

func TestManager_ReconnectReplaysSubscriptions(t *testing.T) {
	fs := newFeedServer(t, func(n int32, conn *websocket.Conn) {
		if n == 1 {
			// Drop the first connection once the subscriptions are in.
			time.Sleep(100 * time.Millisecond)
			conn.Close()
		}
	})
	defer fs.close()

	m := NewManager(testManagerConfig(fs.url), nil)
	channels := []feed.Channel{
		{Event: feed.EventListingsAdd},
		{Event: feed.EventListingsRemove},
	}
	for _, ch := range channels {
		if err := m.Subscribe(ch); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop(context.Background())

	// Two on the first connection, the same two replayed on the second.
	seen := map[feed.Channel]int{}
	for i := 0; i < 4; i++ {
		c := fs.nextControl(t)
		if c.Mode != feed.ModeSubscribe {
			t.Errorf("control %d mode = %q, want subscribe", i, c.Mode)
		}
		seen[c.Channel]++
	}
	for _, ch := range channels {
		if seen[ch] != 2 {
			t.Errorf("channel %v sent %d times, want 2", ch, seen[ch])
		}
	}

	if got := fs.conns.Load(); got < 2 {
		t.Errorf("connections = %d, want >= 2", got)
	}
	if got := m.Stats().Reconnects; got < 1 {
		t.Errorf("Reconnects = %d, want >= 1", got)
	}
}

func TestManager_UnsubscribeIsSentAndForgotten(t *testing.T) {
	fs := newFeedServer(t, nil)
	defer fs.close()

	m := NewManager(testManagerConfig(fs.url), nil)
	ch := feed.Channel{Event: feed.EventSalesRemove}
	m.Subscribe(ch)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop(context.Background())

	fs.nextControl(t)

	if err := m.Unsubscribe(ch); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	c := fs.nextControl(t)
	if c.Mode != feed.ModeUnsubscribe || c.Channel != ch {
		t.Errorf("control = %+v, want unsubscribe %v", c, ch)
	}
	if got := m.Stats().Subscriptions; got != 0 {
		t.Errorf("Subscriptions = %d, want 0", got)
	}
}

func TestManager_RejectsInvalidChannel(t *testing.T) {
	m := NewManager(testManagerConfig("ws://unused.invalid"), nil)
	err := m.Subscribe(feed.Channel{Event: "items/add"})
	if !errors.Is(err, feed.ErrInvalidChannel) {
		t.Errorf("err = %v, want ErrInvalidChannel", err)
	}
}

func TestManager_StopClosesMessages(t *testing.T) {
	m := NewManager(testManagerConfig("ws://127.0.0.1:1"), nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if _, ok := <-m.Messages(); ok {
		t.Error("Messages should be closed after Stop")
	}
}

func TestManager_SlowConsumerLosesNothing(t *testing.T) {
	const total = 100
	frames := make([][]byte, total)
	for i := range frames {
		f, err := feed.Encode(feed.Message{Event: feed.EventListingsAdd, ItemID: int32(i + 1), WorldID: 73})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		frames[i] = f
	}

	fs := newFeedServer(t, func(n int32, conn *websocket.Conn) {
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.BinaryMessage, f); err != nil {
				return
			}
		}
	})
	defer fs.close()

	m := NewManager(testManagerConfig(fs.url), nil)
	if err := m.Subscribe(feed.Channel{Event: feed.EventListingsAdd}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop(context.Background())

	// Both buffers hold 10 frames; stay idle long enough for them to fill.
	time.Sleep(300 * time.Millisecond)

	for i := range total {
		select {
		case raw := <-m.Messages():
			msg, err := feed.Decode(raw.Data)
			if err != nil {
				t.Fatalf("frame %d: decode: %v", i, err)
			}
			if msg.ItemID != int32(i+1) {
				t.Fatalf("frame %d: ItemID = %d, want %d", i, msg.ItemID, i+1)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d frames", i, total)
		}
	}

	stats := m.Stats()
	if stats.Received != total {
		t.Errorf("Received = %d, want %d", stats.Received, total)
	}
	if stats.Stalled == 0 {
		t.Error("Stalled = 0, want the full buffer to have been waited on")
	}
}
