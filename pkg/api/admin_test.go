package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HorseArcher567/pathfinder/pkg/metrics"
	"github.com/HorseArcher567/pathfinder/pkg/xlog"
	"github.com/gin-gonic/gin"
)

type fakeView map[string][]string

func (v fakeView) Followed() []string {
	names := make([]string, 0, len(v))
	for n := range v {
		names = append(names, n)
	}
	return names
}

func (v fakeView) Services() map[string][]string { return v }

func newTestServer(t *testing.T, admin *Admin) *Server {
	t.Helper()
	s, err := NewServer(xlog.Nop(), &ServerConfig{Mode: gin.TestMode})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	Register(s.Engine(), admin, nil)
	return s
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestAdminRoutes(t *testing.T) {
	m := metrics.New()
	m.SetPoolChannels("/service/echo", 2)

	s := newTestServer(t, &Admin{
		Services: fakeView{
			"/service/echo": {"127.0.0.1:9001", "127.0.0.1:9002"},
			"/service/user": {},
		},
		Gatherer: m.Registry(),
	})

	tests := []struct {
		name     string
		path     string
		status   int
		contains string
	}{
		{"healthz", "/healthz", http.StatusOK, `"ok"`},
		{"metrics", "/metrics", http.StatusOK, `pathfinder_pool_channels{service="/service/echo"} 2`},
		{"list", "/services", http.StatusOK, `"/service/user"`},
		{"one", "/services/service/echo", http.StatusOK, `127.0.0.1:9002`},
		{"unknown", "/services/service/none", http.StatusNotFound, `service not followed`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(s, tt.path)
			if w.Code != tt.status {
				t.Fatalf("GET %s status = %d, want %d", tt.path, w.Code, tt.status)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("GET %s body = %s, want it to contain %s", tt.path, w.Body.String(), tt.contains)
			}
		})
	}
}

func TestListServicesSorted(t *testing.T) {
	s := newTestServer(t, &Admin{Services: fakeView{"/b": {}, "/a": {"x:1"}}})

	var body struct {
		Services []serviceInfo `json:"services"`
	}
	if err := json.Unmarshal(get(s, "/services").Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Services) != 2 || body.Services[0].Name != "/a" || body.Services[1].Name != "/b" {
		t.Fatalf("unexpected services: %+v", body.Services)
	}
}

func TestAdminWithoutSources(t *testing.T) {
	s := newTestServer(t, &Admin{})

	if w := get(s, "/healthz"); w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", w.Code)
	}
	if w := get(s, "/metrics"); w.Code != http.StatusNotFound {
		t.Errorf("metrics should not be mounted, status = %d", w.Code)
	}
	if w := get(s, "/services"); w.Code != http.StatusNotFound {
		t.Errorf("services should not be mounted, status = %d", w.Code)
	}
}

func TestRecovery(t *testing.T) {
	s := newTestServer(t, &Admin{})
	s.Engine().GET("/panic", func(*gin.Context) { panic("boom") })

	if w := get(s, "/panic"); w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestNewServer_InvalidConfig(t *testing.T) {
	if _, err := NewServer(nil, nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewServer(nil, &ServerConfig{Port: -5}); err == nil {
		t.Error("expected error for invalid port")
	}
}

func TestServerConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		addr    string
		wantErr bool
	}{
		{"defaults", ServerConfig{}, "0.0.0.0:0", false},
		{"loopback", ServerConfig{Host: "127.0.0.1", Port: 8080}, "127.0.0.1:8080", false},
		{"port too large", ServerConfig{Port: 70000}, "0.0.0.0:70000", true},
		{"negative timeout", ServerConfig{ReadTimeout: -1}, "0.0.0.0:0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := tt.cfg.ListenAddr(); got != tt.addr {
				t.Errorf("ListenAddr() = %q, want %q", got, tt.addr)
			}
		})
	}
}

func TestRoutesFunc(t *testing.T) {
	s := newTestServer(t, &Admin{})
	Register(s.Engine(),
		RoutesFunc(func(e *gin.Engine) {
			e.GET("/version", func(c *gin.Context) { c.String(http.StatusOK, "v1") })
		}),
		RoutesFunc(nil),
	)

	w := get(s, "/version")
	if w.Code != http.StatusOK || w.Body.String() != "v1" {
		t.Fatalf("GET /version = %d %q", w.Code, w.Body.String())
	}
}
