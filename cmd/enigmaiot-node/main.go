// Command enigmaiot-node runs a single sensor/actuator peer: it registers
// with one configured gateway, then processes downstream frames until
// interrupted. It sends no sensor data of its own.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/enigmaiot/enigmaiot/pkg/config"
	"github.com/enigmaiot/enigmaiot/pkg/logging"
	"github.com/enigmaiot/enigmaiot/pkg/node"
	"github.com/enigmaiot/enigmaiot/pkg/nodetable"
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
		Use:   "enigmaiot-node",
		Short: "EnigmaIOT node: registers with a gateway and exchanges session-keyed frames",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/enigmaiot/node.yaml", "path to node.yaml")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newStatusCmd(&configPath))
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Register with the configured gateway and run the session loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(*configPath)
		},
	}
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the node's persisted identity (gateway MAC, network, name)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadNodeConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, err := os.ReadFile(cfg.StatePath)
			if err != nil {
				fmt.Println("not yet provisioned (no state file)")
				return nil
			}
			rec, err := config.DecodeNodeRecord(data)
			if err != nil {
				return fmt.Errorf("decode state: %w", err)
			}
			var gwMAC nodetable.MAC
			copy(gwMAC[:], rec.GatewayMAC[:])
			fmt.Printf("gateway_mac: %s\n", gwMAC.String())
			fmt.Printf("node_name:   %s\n", rec.NodeName)
			return nil
		},
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

func runNode(configPath string) error {
	cfg, err := config.LoadNodeConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewLogger("node", parseLevel(cfg.LogLevel), "")
	if err != nil {
		return fmt.Errorf("new logger: %w", err)
	}

	rec, networkKey, err := loadOrProvisionNodeState(cfg, logger)
	if err != nil {
		return err
	}

	var gwMAC radio.MAC
	copy(gwMAC[:], rec.GatewayMAC[:])

	var localMAC radio.MAC
	copy(localMAC[:], deriveLocalMAC(networkKey))

	r, err := radio.NewUDPRadio(cfg.ListenAddress, localMAC)
	if err != nil {
		return fmt.Errorf("bind radio: %w", err)
	}
	defer r.Close()

	gwAddr, err := net.ResolveUDPAddr("udp", cfg.GatewayAddress)
	if err != nil {
		return fmt.Errorf("resolve gateway_address: %w", err)
	}
	r.AddPeer(gwMAC, gwAddr)

	var gatewayMAC nodetable.MAC
	copy(gatewayMAC[:], gwMAC[:])

	n := node.New(r, node.Config{
		GatewayMAC:       gatewayMAC,
		NetworkKey:       networkKey,
		Sleepy:           cfg.Sleepy,
		QueueSize:        64,
		OverflowSize:     16,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}, logger, node.Callbacks{
		OnRx: func(payload []byte, lost uint16, isControl bool) {
			logger.Info("downstream frame", logging.Fields{"bytes": len(payload), "lost": lost, "control": isControl})
		},
	})
	n.Start()

	go func() {
		if err := r.Listen(); err != nil {
			logger.Error("radio listen failed", logging.Fields{"error": err.Error()})
		}
	}()

	if err := n.Register(); err != nil {
		return fmt.Errorf("send client hello: %w", err)
	}
	logger.Info("handshake sent", logging.Fields{"gateway_mac": gatewayMAC.String()})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			logger.Info("shutdown requested", nil)
			return r.Close()
		case now := <-ticker.C:
			n.CheckHandshakeTimeout(now)
			n.Tick()
		default:
			if !n.Dispatch() {
				time.Sleep(time.Millisecond)
			}
		}
	}
}

// deriveLocalMAC derives a stable local address from the network key so the
// node presents the same identity on every restart without its own
// persisted MAC field; the gateway never trusts this value for anything
// beyond addressing, since every frame is authenticated independently.
func deriveLocalMAC(networkKey []byte) []byte {
	sum := sha256.Sum256(networkKey)
	return sum[:6]
}

func loadOrProvisionNodeState(cfg *config.NodeConfig, logger *logging.Logger) (config.NodeRecord, []byte, error) {
	if data, err := os.ReadFile(cfg.StatePath); err == nil {
		rec, decErr := config.DecodeNodeRecord(data)
		if decErr == nil {
			return rec, rec.NetworkKey, nil
		}
		logger.Warn("ignoring unreadable state file", logging.Fields{"error": decErr.Error()})
	}

	if cfg.GatewayMAC == "" {
		return config.NodeRecord{}, nil, fmt.Errorf("no state file and gateway_mac not set in config; cannot bootstrap")
	}
	raw, err := hex.DecodeString(cfg.GatewayMAC)
	if err != nil || len(raw) != 6 {
		return config.NodeRecord{}, nil, fmt.Errorf("gateway_mac must be 12 hex characters")
	}

	logger.Info("provisioning new node identity", logging.Fields{"state_path": cfg.StatePath})
	networkKey := readNetworkKeyFromEnv()
	if networkKey == nil {
		return config.NodeRecord{}, nil, fmt.Errorf("ENIGMAIOT_NETWORK_KEY must be set (64 hex characters) for first run")
	}

	var gwMAC [6]byte
	copy(gwMAC[:], raw)
	rec := config.NodeRecord{GatewayMAC: gwMAC, NetworkKey: networkKey}
	if err := os.WriteFile(cfg.StatePath, config.EncodeNodeRecord(rec), 0o600); err != nil {
		logger.Warn("failed to persist node state", logging.Fields{"error": err.Error()})
	}
	return rec, networkKey, nil
}

func readNetworkKeyFromEnv() []byte {
	hexKey := os.Getenv("ENIGMAIOT_NETWORK_KEY")
	if hexKey == "" {
		return nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != 32 {
		return nil
	}
	return key
}
