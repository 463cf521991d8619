package config

import "fmt"

// Config configures a single node-worker process. It is distinct from
// Profile: Profile supplies environment-wide defaults, Config is the
// resolved, validated set of values a Core actually starts with.
type Config struct {
	// LiteMode disables Ed25519 signing/verification of control frames.
	LiteMode bool

	// ListenPort4, ListenPort6 are the UDP ports the node-worker binds.
	// Zero disables that address family entirely.
	ListenPort4 int
	ListenPort6 int

	// NodeWorkerQueueLength sizes the SPSC ingress ring.
	NodeWorkerQueueLength int
}

func (cfg *Config) Validate() error {
	if cfg.ListenPort4 == 0 && cfg.ListenPort6 == 0 {
		return fmt.Errorf("at least one of ListenPort4, ListenPort6 is required")
	}
	if cfg.NodeWorkerQueueLength == 0 {
		cfg.NodeWorkerQueueLength = RingCapacity
	}
	if cfg.NodeWorkerQueueLength <= 0 {
		return fmt.Errorf("NodeWorkerQueueLength must be greater than 0")
	}
	return nil
}
