package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/staykit/pms/internal/auth"
	"github.com/staykit/pms/internal/enum"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, topic string) *Client {
	return &Client{
		hub:   hub,
		topic: topic,
		send:  make(chan []byte, 256),
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHubRegistration(t *testing.T) {
	hub := startHub(t)
	topic := HotelTopic("h1")
	client := mockClient(hub, topic)

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.rooms[topic] == nil {
		t.Fatal("topic room not created")
	}
	if !hub.rooms[topic][client] {
		t.Fatal("client not registered in topic room")
	}
}

func TestHubUnregistration(t *testing.T) {
	hub := startHub(t)
	topic := OrderTopic(uuid.NewString())
	client := mockClient(hub, topic)

	hub.register <- client
	time.Sleep(10 * time.Millisecond)
	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	if n := hub.Subscribers(topic); n != 0 {
		t.Fatalf("room not cleaned up: %d subscribers", n)
	}
	if _, ok := <-client.send; ok {
		t.Fatal("send channel should be closed")
	}
}

func TestBroadcastToSingleTopic(t *testing.T) {
	hub := startHub(t)
	client1 := mockClient(hub, HotelTopic("h1"))
	client2 := mockClient(hub, HotelTopic("h2"))
	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	payload := json.RawMessage(`{"order_number":"ORD-0001"}`)
	hub.Broadcast(HotelTopic("h1"), Event{Type: "order.placed", Payload: payload})

	select {
	case msg := <-client1.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		if received.Type != "order.placed" {
			t.Errorf("expected type 'order.placed', got '%s'", received.Type)
		}
		if string(received.Payload) != string(payload) {
			t.Errorf("expected payload '%s', got '%s'", payload, received.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client1 did not receive message")
	}

	select {
	case <-client2.send:
		t.Fatal("client2 should not have received message for different hotel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifyOrderReachesStaffAndGuest(t *testing.T) {
	hub := startHub(t)
	orderID := uuid.NewString()
	staff := mockClient(hub, HotelTopic("h1"))
	guest := mockClient(hub, OrderTopic(orderID))
	other := mockClient(hub, OrderTopic(uuid.NewString()))
	for _, c := range []*Client{staff, guest, other} {
		hub.register <- c
	}
	time.Sleep(10 * time.Millisecond)

	if err := hub.NotifyOrder("h1", orderID, "order.updated", map[string]string{"status": "ready"}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	for name, c := range map[string]*Client{"staff": staff, "guest": guest} {
		select {
		case msg := <-c.send:
			if !strings.Contains(string(msg), `"status":"ready"`) {
				t.Errorf("%s: unexpected message %s", name, msg)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("%s did not receive message", name)
		}
	}
	select {
	case <-other.send:
		t.Fatal("unrelated order room received message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifyOrderRejectsUnencodablePayload(t *testing.T) {
	hub := startHub(t)
	if err := hub.NotifyOrder("h1", "o1", "order.updated", make(chan int)); err == nil {
		t.Fatal("expected encode error")
	}
}

func TestServeWS_Authorization(t *testing.T) {
	hub := startHub(t)
	secret := "ws-secret"
	hotelID := uuid.New()

	r := chi.NewRouter()
	r.Get("/ws/hotels/{hid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, secret, w, r)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	staffToken, _ := auth.GenerateToken(secret, uuid.New(), hotelID, enum.RoleRestaurant)
	guestToken, _ := auth.GenerateToken(secret, uuid.New(), hotelID, enum.RoleGuest)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing token", "/ws/hotels/" + hotelID.String() + "/orders", http.StatusUnauthorized},
		{"bad token", "/ws/hotels/" + hotelID.String() + "/orders?token=nope", http.StatusUnauthorized},
		{"no permission", "/ws/hotels/" + hotelID.String() + "/orders?token=" + guestToken, http.StatusForbidden},
		{"other hotel", "/ws/hotels/" + uuid.NewString() + "/orders?token=" + staffToken, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}

	t.Run("upgrade", func(t *testing.T) {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/hotels/" + hotelID.String() + "/orders?token=" + staffToken
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		deadline := time.Now().Add(time.Second)
		for hub.Subscribers(HotelTopic(hotelID.String())) == 0 {
			if time.Now().After(deadline) {
				t.Fatal("client never registered")
			}
			time.Sleep(5 * time.Millisecond)
		}

		hub.Broadcast(HotelTopic(hotelID.String()), Event{Type: "order.placed", Payload: json.RawMessage(`{}`)})
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !strings.Contains(string(msg), "order.placed") {
			t.Errorf("message: %s", msg)
		}
	})
}
