package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mqy/sigview/api"
	"github.com/mqy/sigview/auth"
	"github.com/mqy/sigview/relay"
	"github.com/mqy/sigview/view"
)

const shutdownTimeout = 5 * time.Second

var (
	flagAddr    = flag.String("addr", "127.0.0.1:8000", "server address, ip:port")
	flagConfig  = flag.String("config", "", "yaml config file, flags override file values")
	flagPidFile = flag.String("pid-file", "sigview.pid", "pid file")

	flagRelayURL    = flag.String("relay-url", "http://127.0.0.1:8080", "base URL of the message relay")
	flagRelayAPIKey = flag.String("relay-api-key", "", "relay API key, sent as X-API-Key")
	flagSelfNumber  = flag.String("self-number", "", "operator's own number, used for self filtering and the sent-message outbox fallback; empty (the default) disables both")

	flagMockAuth = flag.Bool("mock-auth", false, "trust the x-user cookie instead of auth tokens, development only")

	flagPprofDir       = flag.String("pprof-dir", "pprof", "dir to save pprof data files")
	flagDisableMetrics = flag.Bool("disable-metrics", false, "disable prometheus metrics")
)

func main() {
	flag.Parse()

	// NOTE: os.Exit() does not call defers.
	os.Exit(run())
}

func run() int {
	defer glog.Flush()

	if v := validateFlags(); v > 0 {
		return v
	}

	cfg, err := loadConfig(*flagConfig)
	if err != nil {
		return errorf("%v", err)
	}
	cfg.overlayFlags()

	if cfg.RelayURL == "" {
		return errorf("--relay-url is required")
	}
	if !*flagMockAuth && len(cfg.AuthTokens) == 0 {
		return errorf("no auth tokens configured, set auth_tokens in the config file or use --mock-auth")
	}

	pid := os.Getpid()

	if err := savePid(*flagPidFile, pid); err != nil {
		return errorf("pid file: %v", err)
	}
	defer func() {
		_ = os.Remove(*flagPidFile)
	}()

	pprofDir := filepath.Join(*flagPprofDir, strconv.Itoa(pid))
	if err := os.MkdirAll(pprofDir, 0750); err != nil {
		return errorf("--pprof-dir: error create dir `%s`: %v", pprofDir, err)
	}
	defer func() {
		_ = os.RemoveAll(pprofDir)
	}()

	glog.Info("sigview server is starting")

	relayClient := relay.NewHTTPClient(cfg.RelayURL, cfg.RelayAPIKey)
	engine := view.NewEngine(relayClient, cfg.SelfNumber)
	server := api.NewServer(engine, relayClient, newAuthClient(cfg))

	mux := http.NewServeMux()
	if !*flagDisableMetrics {
		mux.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{},
		))
	}
	server.Register(mux)

	httpServer := &http.Server{Addr: cfg.Addr, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.ListenAndServe()
	}()

	glog.Infof("sigview serving on %s, relay at %s", cfg.Addr, cfg.RelayURL)
	glog.Infof("`kill -USR1 %d` to dump goroutines; `kill -USR2 %d` to start/stop profiler; `CTRL+c` or `kill %d` to graceful stop", pid, pid, pid)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGTERM, syscall.SIGINT)

	var prof *Profiler

	for {
		select {
		case err := <-errChan:
			if err != nil && err != http.ErrServerClosed {
				return errorf("http server: %v", err)
			}
			glog.Info("sigview server exited")
			return 0
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				if prof != nil {
					prof.dumpGoroutines()
				}
			case syscall.SIGUSR2:
				if prof == nil {
					prof = StartProfiler(pprofDir)
				} else {
					prof.Stop()
					prof = nil
				}
			case syscall.SIGTERM, syscall.SIGINT:
				glog.Infof("received signal `%s`, stopping", sig.String())
				signal.Stop(sigCh)
				if prof != nil {
					prof.Stop()
				}
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				err := httpServer.Shutdown(ctx)
				cancel()
				if err != nil {
					return errorf("shutdown: %v", err)
				}
			}
		}
	}
}

func newAuthClient(cfg *Config) auth.Client {
	if *flagMockAuth {
		glog.Warning("mock auth enabled, do not use in production")
		return &auth.MockClient{}
	}
	return &auth.StaticTokenClient{Tokens: cfg.AuthTokens}
}

func validateFlags() int {
	if *flagAddr == "" {
		return errorf("--addr is required")
	}
	if err := validateAddr(*flagAddr); err != nil {
		return errorf("--addr: %v", err)
	}
	if *flagPidFile == "" {
		return errorf("--pid-file is required")
	}
	if *flagPprofDir == "" {
		return errorf("--pprof-dir is required")
	}
	return 0
}

func validateAddr(s string) error {
	ips, _, err := net.SplitHostPort(s)
	if err != nil {
		return fmt.Errorf("error split host port from `%s`: %v", s, err)
	}
	ip := net.ParseIP(ips)
	if ip == nil {
		return fmt.Errorf("error parse IP from host `%s`", ips)
	}
	if !ip.IsLoopback() && !ip.IsPrivate() {
		return fmt.Errorf("`%s` is not loopback or private address", ips)
	}
	return nil
}

func errorf(format string, args ...interface{}) int {
	glog.Errorf(format, args...)
	return 1
}

func savePid(name string, pid int) error {
	if _, err := os.Stat(name); err == nil {
		// Ok, see, if we have a stale lockfile here
		content, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		if len(content) > 0 {
			oldPid, err := strconv.Atoi(string(content))
			if err != nil {
				return err
			}

			proc, err := os.FindProcess(oldPid)
			if err != nil {
				return err
			}
			defer proc.Release()

			if err := proc.Signal(syscall.Signal(0)); err == nil {
				return fmt.Errorf("pid file: exists with pid: %d, the process is running", oldPid)
			} else {
				glog.Infof("pid file exists with pid: %d, but is not running", oldPid)
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("pid file: stat error: %v", err)
	}

	if err := os.WriteFile(name, []byte(strconv.Itoa(pid)), 0600); err != nil {
		return fmt.Errorf("pid file: write error: %v", err)
	}
	glog.Infof("pid file: write pid done")
	return nil
}
