package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/nullmesh/peercore/config"
	"github.com/nullmesh/peercore/internal/core"
	"github.com/nullmesh/peercore/internal/keys"
	"github.com/nullmesh/peercore/internal/ring"
	"github.com/nullmesh/peercore/internal/table"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	showVersionFlag := flag.Bool("version", false, "show version and exit")
	verboseFlag := flag.Bool("verbose", false, "verbose mode - show debug logs")
	envFlag := flag.String("env", config.ProfileProduction, "deployment profile: production, staging, or lite")
	uuidFlag := flag.Uint32("uuid", 0, "this node's 32-bit identity (required)")
	privateKeyFlag := flag.String("private-key", "", "hex-encoded Ed25519 private key (required outside lite mode)")
	listenPort4Flag := flag.Int("listen-port4", 0, "UDP port to bind for IPv4 (0 = profile default)")
	listenPort6Flag := flag.Int("listen-port6", 0, "UDP port to bind for IPv6 (0 = profile default)")
	metricsAddrFlag := flag.String("metrics-addr", ":9090", "address to listen on for prometheus metrics")
	flag.Parse()

	if *showVersionFlag {
		fmt.Printf("peercored %s (%s, %s)\n", version, commit, date)
		return nil
	}

	log := newLogger(*verboseFlag)

	profile, err := config.ProfileForEnv(*envFlag)
	if err != nil {
		return fmt.Errorf("resolving deployment profile: %w", err)
	}
	cfg := &config.Config{
		LiteMode:    profile.LiteMode,
		ListenPort4: profile.ListenPort4,
		ListenPort6: profile.ListenPort6,
	}
	if *listenPort4Flag != 0 {
		cfg.ListenPort4 = *listenPort4Flag
	}
	if *listenPort6Flag != 0 {
		cfg.ListenPort6 = *listenPort6Flag
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if *uuidFlag == 0 {
		return fmt.Errorf("--uuid is required")
	}

	local := &table.LocalNode{PeerRecord: table.PeerRecord{UUID32: *uuidFlag}}
	if !cfg.LiteMode {
		if *privateKeyFlag == "" {
			return fmt.Errorf("--private-key is required outside lite mode")
		}
		raw, err := hex.DecodeString(*privateKeyFlag)
		if err != nil {
			return fmt.Errorf("decoding --private-key: %w", err)
		}
		if len(raw) != ed25519.PrivateKeySize {
			return fmt.Errorf("--private-key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
		}
		local.PrivateKey = ed25519.PrivateKey(raw)
		local.PublicKey = local.PrivateKey.Public().(ed25519.PublicKey)
	}

	tbl := table.New(local.UUID32)
	r, err := ring.New(cfg.NodeWorkerQueueLength)
	if err != nil {
		return fmt.Errorf("building ingress ring: %w", err)
	}

	var conn4, conn6 *net.UDPConn
	if cfg.ListenPort4 != 0 {
		conn4, err = net.ListenUDP("udp4", &net.UDPAddr{Port: cfg.ListenPort4})
		if err != nil {
			return fmt.Errorf("binding IPv4 socket: %w", err)
		}
		defer conn4.Close()
	}
	if cfg.ListenPort6 != 0 {
		conn6, err = net.ListenUDP("udp6", &net.UDPAddr{Port: cfg.ListenPort6})
		if err != nil {
			return fmt.Errorf("binding IPv6 socket: %w", err)
		}
		defer conn6.Close()
	}
	sender := core.NewUDPSender(log, conn4, conn6)

	var km *keys.KeyManager
	if !cfg.LiteMode {
		km, err = keys.NewKeyManager(time.Now().Unix())
		if err != nil {
			return fmt.Errorf("initializing key manager: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	metrics := core.NewMetrics(reg)

	c, err := core.New(log, nil, local, tbl, r, sender, km, cfg.LiteMode, metrics)
	if err != nil {
		return fmt.Errorf("building core: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if conn4 != nil {
		go ingestLoop(ctx, log, c, 0, conn4, false)
	}
	if conn6 != nil {
		go ingestLoop(ctx, log, c, 1, conn6, true)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Info("metrics server listening", "address", *metricsAddrFlag)
		if err := http.ListenAndServe(*metricsAddrFlag, mux); err != nil {
			log.Error("metrics server stopped", "error", err)
		}
	}()

	log.Info("peercore starting", "uuid", local.UUID32, "lite_mode", cfg.LiteMode)
	return c.Run(ctx)
}

// ingestLoop is the external receive thread: it decodes nothing more than
// the socket address, pushes raw datagrams into the Core's ring, and never
// mutates peer records itself.
func ingestLoop(ctx context.Context, log *slog.Logger, c *core.Core, socketIdx int, conn *net.UDPConn, isIPv6 bool) {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Debug("ingress read failed", "error", err)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		env := ring.Envelope{
			Data:      data,
			SocketIdx: socketIdx,
			FromPort:  uint16(addr.Port),
			IsIPv6:    isIPv6,
		}
		if isIPv6 {
			copy(env.FromAddr6[:], addr.IP.To16())
		} else {
			copy(env.FromAddr4[:], addr.IP.To4())
		}

		if !c.Ring().Push(env) {
			log.Debug("ingress ring full, dropping frame")
			continue
		}
		c.Notify()
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format("2006-01-02T15:04:05.000Z"))
			}
			return a
		},
	}))
}
