package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/HorseArcher567/pathfinder/pkg/api"
	"github.com/HorseArcher567/pathfinder/pkg/channel"
	"github.com/HorseArcher567/pathfinder/pkg/rpc"
	"github.com/HorseArcher567/pathfinder/pkg/store/memstore"
	"github.com/HorseArcher567/pathfinder/pkg/xlog"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// runApp runs a in the background and returns a function that stops it and
// waits for Run to return.
func runApp(t *testing.T, a *App) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()

	select {
	case <-a.Started():
	case err := <-errc:
		cancel()
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("app did not start")
	}

	return func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	}
}

func TestFrameworkValidate(t *testing.T) {
	tests := []struct {
		name      string
		fw        Framework
		needStore bool
		wantErr   bool
	}{
		{"empty", Framework{}, false, false},
		{"discovery", Framework{Discovery: &DiscoveryConfig{BasePath: "/service"}}, true, false},
		{"discovery without base", Framework{Discovery: &DiscoveryConfig{}}, false, true},
		{"registration", Framework{Registration: &RegistrationConfig{Service: "/service/echo", AdvertiseAddr: "a:1"}}, true, false},
		{"registration without addr", Framework{Registration: &RegistrationConfig{Service: "/service/echo"}}, false, true},
		{"registration with rpc", Framework{
			Registration: &RegistrationConfig{Service: "/service/echo"},
			RpcServer:    &rpc.ServerConfig{},
		}, true, false},
		{"registration without service", Framework{Registration: &RegistrationConfig{AdvertiseAddr: "a:1"}}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			needStore, err := tt.fw.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if needStore != tt.needStore {
				t.Errorf("needStore = %v, want %v", needStore, tt.needStore)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error for nil framework")
	}
	fw := &Framework{Discovery: &DiscoveryConfig{BasePath: "/service"}}
	if _, err := New(fw, WithLogger(xlog.Nop())); err == nil {
		t.Error("expected error when no store is configured")
	}
	fw = &Framework{Discovery: &DiscoveryConfig{BasePath: "/service", Channel: channel.Options{Protocol: "thrift"}}}
	if _, err := New(fw, WithLogger(xlog.Nop()), WithStore(memstore.New())); err == nil {
		t.Error("expected error for unknown channel protocol")
	}
}

func TestBeforeRunHookAborts(t *testing.T) {
	a := MustNew(&Framework{}, WithLogger(xlog.Nop()))
	boom := errors.New("boom")
	a.OnBeforeRun(func(context.Context, *App) error { return boom })

	if err := a.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
}

func TestRegisterAndDiscover(t *testing.T) {
	st := memstore.New(memstore.WithTTLUnit(20 * time.Millisecond))
	defer st.Close()

	server := MustNew(&Framework{
		Registration: &RegistrationConfig{Service: "/service/echo", InstanceID: "i1"},
		RpcServer:    &rpc.ServerConfig{Name: "echo", Host: "127.0.0.1"},
	}, WithLogger(xlog.Nop()), WithStore(st))
	stopServer := runApp(t, server)

	inst := server.Instance()
	if inst == nil || inst.Key() != "/service/echo/i1" {
		t.Fatalf("unexpected instance %+v", inst)
	}

	var shutdownRan bool
	client := MustNew(&Framework{
		Discovery: &DiscoveryConfig{BasePath: "/service", Follow: []string{"/service/echo"}},
		ApiServer: &api.ServerConfig{Host: "127.0.0.1", Mode: gin.TestMode},
	}, WithLogger(xlog.Nop()), WithStore(st))
	client.OnShutdown(func(context.Context, *App) { shutdownRan = true })
	stopClient := runApp(t, client)
	defer func() {
		stopClient()
		if !shutdownRan {
			t.Error("shutdown hook did not run")
		}
	}()

	ch, err := client.Choose("/service/echo")
	if err != nil {
		t.Fatalf("Choose() error = %v", err)
	}
	if ch.Addr() != inst.Addr {
		t.Fatalf("Choose() = %s, want %s", ch.Addr(), inst.Addr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := grpc_health_v1.NewHealthClient(ch).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "echo"})
	if err != nil {
		t.Fatalf("health check error = %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, want SERVING", resp.GetStatus())
	}

	httpResp, err := http.Get("http://" + client.ApiServer().Addr().String() + "/services/service/echo")
	if err != nil {
		t.Fatalf("GET /services error = %v", err)
	}
	body, _ := io.ReadAll(httpResp.Body)
	httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK || !strings.Contains(string(body), inst.Addr) {
		t.Fatalf("GET /services = %d %s", httpResp.StatusCode, body)
	}

	// Stopping the server lets its lease lapse; the client pool drains.
	stopServer()
	waitFor(t, "instance to go offline", func() bool {
		_, err := client.Choose("/service/echo")
		return errors.Is(err, channel.ErrNoChannel)
	})
}

func TestJobsRunDuringRun(t *testing.T) {
	a := MustNew(&Framework{}, WithLogger(xlog.Nop()))

	ran := make(chan struct{})
	if err := a.AddJob("probe", func(ctx context.Context, _ *xlog.Logger) error {
		close(ran)
		<-ctx.Done()
		return nil
	}); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}

	stop := runApp(t, a)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
	stop()
}
