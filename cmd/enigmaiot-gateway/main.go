// Command enigmaiot-gateway runs the gateway side of the protocol: it owns
// the node table, the broadcast key lineage, and the UDP-radio transport,
// and answers every handshake and session frame a node sends it.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/enigmaiot/enigmaiot/pkg/config"
	"github.com/enigmaiot/enigmaiot/pkg/gateway"
	"github.com/enigmaiot/enigmaiot/pkg/hadiscovery"
	"github.com/enigmaiot/enigmaiot/pkg/logging"
	"github.com/enigmaiot/enigmaiot/pkg/metrics"
	"github.com/enigmaiot/enigmaiot/pkg/nodetable"
	"github.com/enigmaiot/enigmaiot/pkg/persistence"
	"github.com/enigmaiot/enigmaiot/pkg/radio"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "enigmaiot-gateway",
		Short: "EnigmaIOT gateway: handshake, session, and broadcast key authority for a node mesh",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/enigmaiot/gateway.yaml", "path to gateway.yaml")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newListNodesCmd(&configPath))
	root.AddCommand(newKickCmd(&configPath))
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the gateway and serve the node mesh until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(*configPath)
		},
	}
}

func serveMetrics(addr string, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server exited", logging.Fields{"error": err.Error()})
	}
}

func parseLevel(s string) logging.LogLevel {
	switch s {
	case "debug":
		return logging.DEBUG
	case "warn":
		return logging.WARN
	case "error":
		return logging.ERROR
	default:
		return logging.INFO
	}
}

func runGateway(configPath string) error {
	cfg, err := config.LoadGatewayConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewLogger("gateway", parseLevel(cfg.LogLevel), "")
	if err != nil {
		return fmt.Errorf("new logger: %w", err)
	}

	rec, err := loadOrProvisionGatewayState(cfg, logger)
	if err != nil {
		return err
	}

	var localMAC radio.MAC
	copy(localMAC[:], rec.LocalMAC[:])
	r, err := radio.NewUDPRadio(cfg.ListenAddress, localMAC)
	if err != nil {
		return fmt.Errorf("bind radio: %w", err)
	}
	defer r.Close()

	metrics.InitMetrics()
	if cfg.MetricsAddress != "" {
		go serveMetrics(cfg.MetricsAddress, logger)
	}

	gw, err := gateway.New(r, rec.NetworkKey, rec.BroadcastMaster, gateway.Config{
		NodeTableCapacity: cfg.NodeTableSize,
		QueueSize:         256,
		OverflowSize:      64,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		MaxKeyValidity:    cfg.MaxKeyValidity,
		HADiscovery:       hadiscovery.Config{FirstDelay: time.Minute, NextDelay: 5 * time.Minute},
		SleepyMACs:        cfg.SleepyNodeMACs,
	}, logger, gateway.Callbacks{
		OnDataRx: func(src nodetable.MAC, payload []byte, lost uint16, isControl bool, name string) {
			logger.Info("data received", logging.Fields{
				"mac": src.String(), "name": name, "bytes": len(payload), "lost": lost, "control": isControl,
			})
		},
		OnNewNode: func(src nodetable.MAC, name string) {
			logger.Info("node registered", logging.Fields{"mac": src.String(), "name": name})
		},
		OnNodeDisconnected: func(src nodetable.MAC, reason byte) {
			logger.Info("node disconnected", logging.Fields{"mac": src.String(), "reason": reason})
		},
	})
	if err != nil {
		return fmt.Errorf("construct gateway: %w", err)
	}

	if cfg.Persistence.PostgresDSN != "" {
		audit, err := persistence.NewAuditLog(cfg.Persistence.PostgresDSN)
		if err != nil {
			logger.Warn("audit log unavailable", logging.Fields{"error": err.Error()})
		} else {
			defer audit.Close()
			gw.AttachAuditLog(audit)
		}
	}
	if cfg.Persistence.RedisAddress != "" {
		cache, err := persistence.NewWarmCache(cfg.Persistence.RedisAddress, 2*cfg.MaxKeyValidity)
		if err != nil {
			logger.Warn("warm cache unavailable", logging.Fields{"error": err.Error()})
		} else {
			defer cache.Close()
			gw.AttachWarmCache(cache)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- gw.Start() }()

	logger.Info("gateway listening", logging.Fields{"address": cfg.ListenAddress, "mac": nodetable.MAC(localMAC).String()})

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			logger.Info("shutdown requested", nil)
			return r.Close()
		case err := <-done:
			return fmt.Errorf("radio listen loop exited: %w", err)
		case now := <-ticker.C:
			gw.Tick(now)
		default:
			if !gw.Dispatch() {
				time.Sleep(time.Millisecond)
			}
		}
	}
}

// loadOrProvisionGatewayState loads the TLV state file written at first run,
// or mints a fresh network key, broadcast master, and local MAC and persists
// them so a restart keeps the same identity nodes already have on file.
func loadOrProvisionGatewayState(cfg *config.GatewayConfig, logger *logging.Logger) (config.GatewayRecord, error) {
	if data, err := os.ReadFile(cfg.StatePath); err == nil {
		rec, decErr := config.DecodeGatewayRecord(data)
		if decErr == nil {
			return rec, nil
		}
		logger.Warn("ignoring unreadable state file", logging.Fields{"error": decErr.Error()})
	}

	logger.Info("provisioning new gateway identity", logging.Fields{"state_path": cfg.StatePath})
	networkKey := make([]byte, 32)
	if _, err := rand.Read(networkKey); err != nil {
		return config.GatewayRecord{}, fmt.Errorf("generate network key: %w", err)
	}
	master, err := gateway.GenerateBroadcastMaster()
	if err != nil {
		return config.GatewayRecord{}, err
	}
	var mac [6]byte
	if _, err := rand.Read(mac[:]); err != nil {
		return config.GatewayRecord{}, fmt.Errorf("generate local mac: %w", err)
	}

	rec := config.GatewayRecord{
		Channel:         byte(cfg.Channel),
		NetworkKey:      networkKey,
		NetworkName:     "enigmaiot",
		BroadcastMaster: master,
		LocalMAC:        mac,
	}
	if err := os.WriteFile(cfg.StatePath, config.EncodeGatewayRecord(rec), 0o600); err != nil {
		logger.Warn("failed to persist gateway state", logging.Fields{"error": err.Error()})
	}
	return rec, nil
}

func newListNodesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list-nodes",
		Short: "List nodes mirrored in the warm cache (best-effort, may lag the live table)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadGatewayConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Persistence.RedisAddress == "" {
				return fmt.Errorf("list-nodes requires persistence.redis_address in %s", *configPath)
			}
			cache, err := persistence.NewWarmCache(cfg.Persistence.RedisAddress, cfg.MaxKeyValidity)
			if err != nil {
				return err
			}
			defer cache.Close()

			nodes, err := cache.LoadAll()
			if err != nil {
				return err
			}
			for _, n := range nodes {
				fmt.Printf("%s\t%-20s\tkey_id=%d\tlast_activity=%s\n", n.MAC.String(), n.Name, n.KeyID, n.LastActivity.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newKickCmd(configPath *string) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "kick <mac>",
		Short: "Delete a node's warm-cache mirror entry (the running gateway's live table is not touched)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(args[0])
			if err != nil || len(raw) != 6 {
				return fmt.Errorf("mac must be 12 hex characters, got %q", args[0])
			}
			var mac nodetable.MAC
			copy(mac[:], raw)

			cfg, err := config.LoadGatewayConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Persistence.RedisAddress == "" {
				return fmt.Errorf("kick requires persistence.redis_address in %s", *configPath)
			}
			cache, err := persistence.NewWarmCache(cfg.Persistence.RedisAddress, cfg.MaxKeyValidity)
			if err != nil {
				return err
			}
			defer cache.Close()
			return cache.Forget(mac)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "admin", "informational only; the running gateway still owns the live INVALIDATE_KEY send")
	return cmd
}
