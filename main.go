package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/streamhost/internal/auth"
	"github.com/die-net/streamhost/internal/control"
	"github.com/die-net/streamhost/internal/listen"
	"github.com/die-net/streamhost/internal/logging"
	"github.com/die-net/streamhost/internal/relay"
	"github.com/die-net/streamhost/internal/socks5"
)

// Minimum GC heap size so steady relaying of pooled buffers does not trigger
// constant collections. Only virtual memory is reserved.
var ballast = make([]byte, 0, 25_000_000)

func main() {
	_ = ballast

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listenAddrs   = pflag.StringArray("listen", []string{":7777"}, "Relay listen address; repeat for several")
		endpoints     = pflag.StringArray("endpoint", nil, "Advertised host:port for clients; repeat for several. Defaults to the listen addresses.")
		controlListen = pflag.String("control-listen", "127.0.0.1:7778", "Control HTTP listen address. Empty disables.")
		controlToken  = pflag.String("control-token", os.Getenv("STREAMHOST_CONTROL_TOKEN"), "Bearer token required by control requests. Empty disables the check.")
		name          = pflag.String("name", "Bytestreams Relay", "Name advertised in capabilities")

		authModes = pflag.String("auth", "none", "Accepted auth methods in preference order: none | userpass | userpass,none")
		usersFile = pflag.String("users-file", "", "File of user:bcrypt-hash lines for userpass auth")

		negotiationTimeout = pflag.Duration("negotiation-timeout", relay.DefaultNegotiationTimeout, "Timeout for the SOCKS5 handshake")
		pendingTimeout     = pflag.Duration("pending-timeout", relay.DefaultPendingTimeout, "Close sessions not activated within this time. 0 disables.")
		maxConns           = pflag.Int("max-conns", 0, "Maximum concurrent client connections per listener. 0 is unlimited.")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		reusePort          = pflag.Bool("reuse-port", false, "Set SO_REUSEPORT on relay listeners")

		debugListen = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")
		logLevel    = pflag.String("log-level", "info", "Log level: debug|info|warn|error")
		logFormat   = pflag.String("log-format", "text", "Log format: text|json")
	)

	if !listen.ReusePortSupported {
		_ = pflag.CommandLine.MarkHidden("reuse-port")
	}

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logger, err := logging.New(os.Stderr, level, *logFormat)
	if err != nil {
		return fmt.Errorf("invalid --log-format: %w", err)
	}
	slog.SetDefault(logger)

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	methods, err := parseAuthMethods(*authModes)
	if err != nil {
		return fmt.Errorf("invalid --auth: %w", err)
	}

	if len(*listenAddrs) == 0 {
		return errors.New("no listeners enabled (set at least one --listen)")
	}

	cfg := relay.Config{
		AuthMethods:        methods,
		NegotiationTimeout: *negotiationTimeout,
		Logger:             logger,
	}
	if containsByte(methods, socks5.MethodUsernamePassword) {
		if *usersFile == "" {
			return errors.New("--auth userpass requires --users-file")
		}
		creds, err := auth.LoadFile(*usersFile)
		if err != nil {
			return fmt.Errorf("invalid --users-file: %w", err)
		}
		cfg.Authenticator = creds
		logger.Info("loaded credentials", slog.Int("users", creds.Len()))
	}

	coord := relay.NewCoordinator(*pendingTimeout, logger.With(logging.Component("coordinator")))
	srv, err := relay.NewServer(cfg, coord)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *debugListen != "" {
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: ka}
		debugLn, err := lc.Listen(ctx, "tcp", *debugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		logger.Info("debug listening", slog.String("addr", *debugListen))
	}

	lcfg := listen.Config{KeepAlive: ka, ReusePort: *reusePort, MaxConns: *maxConns}
	var bound []string
	for _, addr := range *listenAddrs {
		ln, err := listen.Listen(ctx, "tcp", addr, lcfg)
		if err != nil {
			return fmt.Errorf("relay listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})
		bound = append(bound, ln.Addr().String())

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil {
				return fmt.Errorf("relay serve %s: %w", addr, err)
			}
			return nil
		})
		logger.Info("relay listening", slog.String("addr", ln.Addr().String()))
	}
	context.AfterFunc(ctx, func() {
		_ = srv.Close()
		coord.Close()
	})

	if len(*endpoints) == 0 {
		*endpoints = advertisedEndpoints(bound)
	}
	eps := make([]control.Endpoint, 0, len(*endpoints))
	for _, s := range *endpoints {
		ep, err := control.ParseEndpoint(s)
		if err != nil {
			return fmt.Errorf("invalid --endpoint %q: %w", s, err)
		}
		eps = append(eps, ep)
	}

	if *controlListen != "" {
		svc := control.NewService(*name, eps, coord, logger)
		controlSrv := &http.Server{
			Handler:           control.Handler(svc, *controlToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		lc := net.ListenConfig{KeepAliveConfig: ka}
		controlLn, err := lc.Listen(ctx, "tcp", *controlListen)
		if err != nil {
			return fmt.Errorf("control listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = controlSrv.Close()
			_ = controlLn.Close()
		})

		g.Go(func() error {
			if err := controlSrv.Serve(controlLn); err != nil {
				return fmt.Errorf("control serve: %w", err)
			}
			return nil
		})
		logger.Info("control listening", slog.String("addr", *controlListen))
	}

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, relay.ErrServerClosed) {
		err = nil
	}

	logger.Info("shutting down")
	return err
}
