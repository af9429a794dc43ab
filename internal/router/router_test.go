package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/staykit/pms/internal/authclient"
	"github.com/staykit/pms/internal/config"
	"github.com/staykit/pms/internal/directory"
	"github.com/staykit/pms/internal/enum"
	mw "github.com/staykit/pms/internal/middleware"
	"github.com/staykit/pms/internal/persist"
	"github.com/staykit/pms/internal/router"
	"github.com/staykit/pms/internal/session"
	"github.com/staykit/pms/internal/tracking"
	"github.com/staykit/pms/internal/workspace"
	"github.com/staykit/pms/internal/ws"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "router-secret"

// newServer wires the full router with the console's session store talking
// to the server's own /auth endpoints over HTTP.
func newServer(t *testing.T) (*httptest.Server, directory.Account) {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("kitchen-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	chef := directory.Account{
		User: session.User{
			ID:          uuid.New(),
			Email:       "chef@grand.test",
			DisplayName: "Chef",
			Role:        enum.RoleRestaurant,
			HotelID:     uuid.New(),
		},
		PasswordHash: string(hashed),
	}

	cfg := &config.Config{
		JWTSecret:       testSecret,
		AllowedOrigins:  []string{"http://localhost:5173"},
		LoginRatePerMin: 100,
	}
	dir := directory.New(directory.NewMemoryUsers(chef), testSecret, nil)
	hub := ws.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	tracker := tracking.NewTracker(hub, nil)

	var srv *httptest.Server
	manager := workspace.NewManager(persist.NewMemoryStorage(time.Hour), func() session.AuthService {
		return authclient.New(srv.URL, srv.Client(), 5*time.Second)
	}, nil)

	srv = httptest.NewServer(router.New(cfg, router.Deps{
		Directory:  dir,
		Workspaces: manager,
		Orders:     tracker,
		Hub:        hub,
		Limiter:    mw.NewRateLimiter(cfg.LoginRatePerMin, nil),
	}))
	t.Cleanup(srv.Close)
	return srv, chef
}

func call(t *testing.T, srv *httptest.Server, method, path string, body interface{}, headers map[string]string) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t)
	code, body := call(t, srv, "GET", "/health", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	if !bytes.Contains(body, []byte(`"status":"ok"`)) {
		t.Errorf("body: %s", body)
	}
}

func TestConsoleRequiresClientID(t *testing.T) {
	srv, _ := newServer(t)
	code, _ := call(t, srv, "GET", "/console/cart/", nil, nil)
	if code != http.StatusBadRequest {
		t.Errorf("status: %d, want 400", code)
	}
}

func TestCORSAllowsClientIDHeader(t *testing.T) {
	srv, _ := newServer(t)
	code, _ := call(t, srv, "OPTIONS", "/console/cart/", nil, map[string]string{
		"Origin":                         "http://localhost:5173",
		"Access-Control-Request-Method":  "PUT",
		"Access-Control-Request-Headers": mw.ClientIDHeader,
	})
	if code != http.StatusOK && code != http.StatusNoContent {
		t.Errorf("preflight status: %d", code)
	}
}

func TestRoomServiceOrderFlow(t *testing.T) {
	srv, chef := newServer(t)
	guest := map[string]string{mw.ClientIDHeader: uuid.NewString()}
	hotelID := chef.HotelID.String()

	// Guest console fills a cart and checks out.
	steps := []struct {
		method, path string
		body         interface{}
		want         int
	}{
		{"PUT", "/console/cart/hotel", map[string]string{"hotel_id": hotelID}, http.StatusOK},
		{"PUT", "/console/cart/room", map[string]string{"room_number": "301"}, http.StatusOK},
		{"POST", "/console/cart/items", map[string]interface{}{
			"menu_item": map[string]interface{}{"id": "soup", "name": "Tomato Soup", "price": "350", "preparation_minutes": 10},
			"quantity":  2,
		}, http.StatusCreated},
	}
	for _, s := range steps {
		if code, body := call(t, srv, s.method, s.path, s.body, guest); code != s.want {
			t.Fatalf("%s %s: %d %s", s.method, s.path, code, body)
		}
	}
	code, body := call(t, srv, "POST", "/console/cart/checkout", nil, guest)
	if code != http.StatusCreated {
		t.Fatalf("checkout: %d %s", code, body)
	}
	var order tracking.Order
	if err := json.Unmarshal(body, &order); err != nil {
		t.Fatal(err)
	}

	// Guest tracking view needs no token.
	code, _ = call(t, srv, "GET", "/orders/"+order.ID.String(), nil, nil)
	if code != http.StatusOK {
		t.Errorf("guest view: %d", code)
	}

	// Staff signs in and works the queue.
	code, body = call(t, srv, "POST", "/auth/login", map[string]string{
		"email": "chef@grand.test", "password": "kitchen-pass",
	}, nil)
	if code != http.StatusOK {
		t.Fatalf("staff login: %d %s", code, body)
	}
	var res session.AuthResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	staff := map[string]string{"Authorization": "Bearer " + res.AccessToken}

	code, body = call(t, srv, "GET", "/hotels/"+hotelID+"/orders?status=pending", nil, staff)
	if code != http.StatusOK {
		t.Fatalf("list: %d %s", code, body)
	}
	var queue []tracking.Order
	if err := json.Unmarshal(body, &queue); err != nil {
		t.Fatal(err)
	}
	if len(queue) != 1 || queue[0].ID != order.ID {
		t.Errorf("queue: %+v", queue)
	}

	code, body = call(t, srv, "PATCH", "/orders/"+order.ID.String()+"/status",
		map[string]string{"status": enum.OrderStatusConfirmed}, staff)
	if code != http.StatusOK {
		t.Fatalf("confirm: %d %s", code, body)
	}

	code, _ = call(t, srv, "PATCH", "/orders/"+order.ID.String()+"/status",
		map[string]string{"status": enum.OrderStatusPreparing}, nil)
	if code != http.StatusUnauthorized {
		t.Errorf("unauthenticated update: %d", code)
	}
}

func TestConsoleSessionOverRemoteAuth(t *testing.T) {
	srv, chef := newServer(t)
	console := map[string]string{mw.ClientIDHeader: uuid.NewString()}

	code, body := call(t, srv, "POST", "/console/session/login",
		session.Credentials{Email: "chef@grand.test", Password: "nope"}, console)
	if code != http.StatusUnauthorized {
		t.Fatalf("bad login: %d %s", code, body)
	}

	code, body = call(t, srv, "POST", "/console/session/login",
		session.Credentials{Email: "chef@grand.test", Password: "kitchen-pass"}, console)
	if code != http.StatusOK {
		t.Fatalf("login: %d %s", code, body)
	}
	var st session.State
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if st.Status != enum.SessionStatusAuthenticated || st.User.ID != chef.ID {
		t.Fatalf("state: %+v", st)
	}

	name := "Head Chef"
	code, body = call(t, srv, "PATCH", "/console/session/profile", session.ProfileUpdate{DisplayName: &name}, console)
	if code != http.StatusOK {
		t.Fatalf("profile: %d %s", code, body)
	}
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if st.User.DisplayName != "Head Chef" {
		t.Errorf("display name: %q", st.User.DisplayName)
	}

	code, body = call(t, srv, "POST", "/console/session/refresh", nil, console)
	if code != http.StatusOK {
		t.Fatalf("refresh: %d %s", code, body)
	}

	code, body = call(t, srv, "POST", "/console/session/logout", nil, console)
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if code != http.StatusOK || st.Status != enum.SessionStatusUnauthenticated {
		t.Errorf("logout: %d %+v", code, st)
	}
}
