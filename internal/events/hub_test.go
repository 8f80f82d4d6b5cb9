package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("bad envelope %s: %v", data, err)
	}
	return env
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_SubscribeAndReceive(t *testing.T) {
	h := NewHub(nil, nil)
	conn := dialHub(t, h)
	waitForClients(t, h, 1)

	if err := conn.WriteJSON(subscribeRequest{Type: "subscribe", Channel: ChannelUserPrefix + "0xa"}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	ack := readEnvelope(t, conn)
	if ack.Type != "subscribed" || ack.Channel != "user.0xa" {
		t.Fatalf("unexpected ack %+v", ack)
	}

	// Not subscribed to this user.
	if err := h.Publish(context.Background(), Event{Type: SwapRecorded, UserAddress: "0xb"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := h.Publish(context.Background(), Event{Type: SwapCompleted, SwapID: "s1", UserAddress: "0xa"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got := readEnvelope(t, conn)
	if got.Type != "event" || got.Channel != "user.0xa" {
		t.Fatalf("unexpected envelope %+v", got)
	}
	data, _ := json.Marshal(got.Data)
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("bad event payload: %v", err)
	}
	if e.SwapID != "s1" || e.Type != SwapCompleted {
		t.Errorf("unexpected event %+v", e)
	}
}

func TestHub_UnknownRequestType(t *testing.T) {
	h := NewHub(nil, nil)
	conn := dialHub(t, h)

	if err := conn.WriteJSON(subscribeRequest{Type: "shout", Channel: ChannelAll}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got := readEnvelope(t, conn)
	if got.Type != "error" || got.Error == "" {
		t.Errorf("expected error envelope, got %+v", got)
	}
}

func TestHub_RejectsDisallowedOrigin(t *testing.T) {
	h := NewHub(nil, []string{"https://app.example"})
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %+v", resp)
	}
}

func TestChannelsFor(t *testing.T) {
	chs := channelsFor(Event{Type: SwapCompleted, UserAddress: "0xa", GroupID: "g1"})
	want := []string{ChannelAll, ChannelLeaderboard, "user.0xa", "group.g1"}
	if strings.Join(chs, ",") != strings.Join(want, ",") {
		t.Errorf("channels = %v, want %v", chs, want)
	}

	chs = channelsFor(Event{Type: GroupChanged, GroupID: "g1"})
	if strings.Join(chs, ",") != "ledger,group.g1" {
		t.Errorf("group change should not hit the leaderboard channel, got %v", chs)
	}
}
