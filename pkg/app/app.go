// Package app wires the coordination store, registration, discovery and the
// servers of a pathfinder process, and runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/HorseArcher567/pathfinder/pkg/api"
	"github.com/HorseArcher567/pathfinder/pkg/channel"
	"github.com/HorseArcher567/pathfinder/pkg/discovery"
	"github.com/HorseArcher567/pathfinder/pkg/job"
	"github.com/HorseArcher567/pathfinder/pkg/metrics"
	"github.com/HorseArcher567/pathfinder/pkg/registry"
	"github.com/HorseArcher567/pathfinder/pkg/router"
	"github.com/HorseArcher567/pathfinder/pkg/rpc"
	"github.com/HorseArcher567/pathfinder/pkg/rpc/middleware"
	"github.com/HorseArcher567/pathfinder/pkg/store"
	"github.com/HorseArcher567/pathfinder/pkg/store/etcdstore"
	"github.com/HorseArcher567/pathfinder/pkg/xlog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// shutdownTimeout bounds the whole stop sequence.
const shutdownTimeout = 10 * time.Second

// BeforeRunHook runs before anything starts. An error aborts Run.
type BeforeRunHook func(ctx context.Context, a *App) error

// ShutdownHook runs after every component has stopped.
type ShutdownHook func(ctx context.Context, a *App)

// Option customizes App construction.
type Option func(a *App)

// WithStore uses st instead of connecting to etcd. The App does not close it.
func WithStore(st store.Store) Option {
	return func(a *App) {
		if st != nil {
			a.store = st
		}
	}
}

// WithLogger uses log instead of building one from the configuration. The
// App does not close it.
func WithLogger(log *xlog.Logger) Option {
	return func(a *App) {
		if log != nil {
			a.log = log
		}
	}
}

// App encapsulates the lifecycle of one process.
type App struct {
	fw *Framework

	log      *xlog.Logger
	ownsLog  bool
	store    store.Store
	ownStore bool
	metrics  *metrics.Metrics

	router    *router.Router
	watcher   *discovery.Watcher
	registrar *registry.Registrar
	instance  *registry.Instance

	rpcServer *rpc.Server
	apiServer *api.Server
	jobs      *job.Scheduler

	beforeRunHooks []BeforeRunHook
	shutdownHooks  []ShutdownHook

	started chan struct{}
}

// New builds every configured component. Nothing is started until Run.
func New(fw *Framework, opts ...Option) (*App, error) {
	if fw == nil {
		return nil, errors.New("app: framework config is nil")
	}
	needStore, err := fw.Validate()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a := &App{fw: fw, started: make(chan struct{})}
	for _, opt := range opts {
		opt(a)
	}

	if a.log == nil {
		if a.log, err = xlog.New(&fw.Logger); err != nil {
			return nil, fmt.Errorf("app: failed to create logger: %w", err)
		}
		a.ownsLog = true
	}
	a.metrics = metrics.New()
	a.jobs = job.NewScheduler(a.log)

	if err := a.init(needStore); err != nil {
		a.release()
		return nil, err
	}
	return a, nil
}

// MustNew is like New but panics on error.
func MustNew(fw *Framework, opts ...Option) *App {
	a, err := New(fw, opts...)
	if err != nil {
		panic(err)
	}
	return a
}

func (a *App) init(needStore bool) error {
	fw := a.fw

	if needStore && a.store == nil {
		if fw.Etcd == nil {
			return errors.New("app: etcd config is required for discovery or registration")
		}
		st, err := etcdstore.Open(fw.Etcd)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.store, a.ownStore = st, true
	}

	if fw.RpcServer != nil {
		s, err := rpc.NewServer(a.log, fw.RpcServer)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.rpcServer = s
	}

	if d := fw.Discovery; d != nil {
		dialer := channel.NewGRPCDialer(d.Channel,
			grpc.WithChainUnaryInterceptor(middleware.UnaryClientLogging(a.log)))
		if err := dialer.Err(); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.router = router.New(a.log, dialer, router.WithMetrics(a.metrics))
		for _, name := range d.Follow {
			a.router.Declare(name)
		}
	}

	if fw.ApiServer != nil {
		s, err := api.NewServer(a.log, fw.ApiServer)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		admin := &api.Admin{Gatherer: a.metrics.Registry()}
		if a.router != nil {
			admin.Services = a.router
		}
		api.Register(s.Engine(), admin)
		a.apiServer = s
	}
	return nil
}

func (a *App) Log() *xlog.Logger { return a.log }
func (a *App) Metrics() *metrics.Metrics { return a.metrics }
func (a *App) Router() *router.Router { return a.router }
func (a *App) RpcServer() *rpc.Server { return a.rpcServer }
func (a *App) ApiServer() *api.Server { return a.apiServer }
func (a *App) Instance() *registry.Instance { return a.instance }

// Started is closed once Run has brought every component up.
func (a *App) Started() <-chan struct{} { return a.started }

// Choose returns the next channel of a followed service.
func (a *App) Choose(service string) (*channel.Channel, error) {
	if a.router == nil {
		return nil, errors.New("app: discovery is not configured")
	}
	return a.router.Choose(service)
}

// OnBeforeRun registers a hook executed at the beginning of Run.
func (a *App) OnBeforeRun(h BeforeRunHook) *App {
	if h != nil {
		a.beforeRunHooks = append(a.beforeRunHooks, h)
	}
	return a
}

// OnShutdown registers a hook executed at the end of Run.
func (a *App) OnShutdown(h ShutdownHook) *App {
	if h != nil {
		a.shutdownHooks = append(a.shutdownHooks, h)
	}
	return a
}

// RegisterRpcServices registers gRPC services; rpcServer must be configured.
func (a *App) RegisterRpcServices(register func(s *grpc.Server)) *App {
	if a.rpcServer == nil {
		panic("app: rpc server is not initialized (check rpcServer config)")
	}
	a.rpcServer.RegisterServices(register)
	return a
}

// RegisterApiRoutes registers extra HTTP routes; apiServer must be configured.
func (a *App) RegisterApiRoutes(register func(engine *api.Engine)) *App {
	if a.apiServer == nil {
		panic("app: api server is not initialized (check apiServer config)")
	}
	api.Register(a.apiServer.Engine(), api.RoutesFunc(register))
	return a
}

// AddJob runs fn in the background for the lifetime of Run.
func (a *App) AddJob(name string, fn job.Func) error {
	return a.jobs.AddJob(&job.Job{Name: name, Func: fn})
}

// Run starts everything, blocks until ctx is done or SIGINT/SIGTERM arrives,
// then stops in order: api, watcher, registrar, rpc, jobs, router.
//
// A failed registration is fatal: Run stops what it started and returns the
// error.
func (a *App) Run(ctx context.Context) error {
	defer a.release()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, h := range a.beforeRunHooks {
		if err := h(ctx, a); err != nil {
			return fmt.Errorf("app: before run hook: %w", err)
		}
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		a.shutdown(shutdownCtx)
	}()

	if err := a.start(ctx); err != nil {
		return err
	}

	close(a.started)
	a.log.Info("application started")

	<-ctx.Done()
	a.log.Info("stopping application", "cause", context.Cause(ctx))
	return nil
}

func (a *App) start(ctx context.Context) error {
	var g errgroup.Group
	if a.rpcServer != nil {
		g.Go(a.rpcServer.Start)
	}
	if a.apiServer != nil {
		g.Go(a.apiServer.Start)
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if d := a.fw.Discovery; d != nil {
		var opts []discovery.Option
		if d.Reconnect {
			opts = append(opts, discovery.WithReconnect())
		}
		opts = append(opts, discovery.WithMetrics(a.metrics))

		w, err := discovery.NewWatcher(ctx, a.log, a.store, d.BasePath, a.router, opts...)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.watcher = w
	}

	if r := a.fw.Registration; r != nil {
		if err := a.register(ctx, r); err != nil {
			return err
		}
	}

	a.jobs.Start(ctx)
	return nil
}

func (a *App) register(ctx context.Context, cfg *RegistrationConfig) error {
	opts := []registry.Option{registry.WithTTL(cfg.TTL), registry.WithMetrics(a.metrics)}
	if cfg.RevokeOnClose {
		opts = append(opts, registry.WithRevokeOnClose())
	}
	if cfg.DisableRecovery {
		opts = append(opts, registry.WithoutRecovery())
	}

	reg, err := registry.NewRegistrar(ctx, a.log, a.store, opts...)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.registrar = reg

	inst := &registry.Instance{
		Service: cfg.Service,
		ID:      cfg.InstanceID,
		Addr:    cfg.AdvertiseAddr,
	}
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if inst.Addr == "" {
		inst.Addr = advertiseAddr(a.rpcServer.Addr())
	}

	if err := reg.RegisterInstance(ctx, inst); err != nil {
		return fmt.Errorf("app: registration failed: %w", err)
	}
	a.instance = inst
	return nil
}

// advertiseAddr turns a wildcard listen address into a loopback one.
func advertiseAddr(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}
	if tcp.IP == nil || tcp.IP.IsUnspecified() {
		return net.JoinHostPort("127.0.0.1", strconv.Itoa(tcp.Port))
	}
	return tcp.String()
}

func (a *App) shutdown(ctx context.Context) {
	if a.apiServer != nil {
		if err := a.apiServer.Stop(ctx); err != nil {
			a.log.Error("error stopping api server", "error", err)
		}
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.registrar != nil {
		a.registrar.Close()
	}
	if a.rpcServer != nil {
		if err := a.rpcServer.Stop(ctx); err != nil {
			a.log.Error("error stopping rpc server", "error", err)
		}
	}
	if err := a.jobs.Stop(ctx); err != nil {
		a.log.Error("error stopping jobs", "error", err)
	}
	if a.router != nil {
		a.router.Close()
	}

	for _, h := range a.shutdownHooks {
		h(ctx, a)
	}
	a.log.Info("application shutdown complete")
}

// release closes resources the App created itself.
func (a *App) release() {
	if a.ownStore && a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("failed to close store", "error", err)
		}
	}
	if a.ownsLog {
		_ = a.log.Close()
	}
}
