package config

import (
	"fmt"
	"os"
)

// Deployment profile names, each selecting a bundle of startup defaults.
const (
	ProfileProduction = "production"
	ProfileStaging    = "staging"
	ProfileLite       = "lite"
)

// Profile bundles the defaults a node-worker needs at startup: whether
// control-frame signing is enabled and the UDP ports it binds by default.
// Bootstrap rendezvous peers (used as a fallback for unreachable targets)
// are supplied separately by the operator, since they are deployment data,
// not a compiled-in default.
type Profile struct {
	Name        string
	LiteMode    bool
	ListenPort4 int
	ListenPort6 int
}

func ProfileForEnv(env string) (*Profile, error) {
	var p *Profile
	switch env {
	case ProfileProduction:
		p = &Profile{Name: ProfileProduction, LiteMode: false, ListenPort4: DefaultListenPort4, ListenPort6: DefaultListenPort6}
	case ProfileStaging:
		p = &Profile{Name: ProfileStaging, LiteMode: false, ListenPort4: DefaultListenPort4, ListenPort6: DefaultListenPort6}
	case ProfileLite:
		// Lite mode skips Ed25519 signing/verification entirely, intended for
		// trusted test networks only.
		p = &Profile{Name: ProfileLite, LiteMode: true, ListenPort4: DefaultListenPort4, ListenPort6: DefaultListenPort6}
	default:
		return nil, fmt.Errorf("invalid profile %q, must be one of: %s, %s, %s", env, ProfileProduction, ProfileStaging, ProfileLite)
	}

	if v := os.Getenv("PEERCORE_LISTEN_PORT4"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &p.ListenPort4); err != nil {
			return nil, fmt.Errorf("invalid PEERCORE_LISTEN_PORT4 %q: %w", v, err)
		}
	}
	if v := os.Getenv("PEERCORE_LISTEN_PORT6"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &p.ListenPort6); err != nil {
			return nil, fmt.Errorf("invalid PEERCORE_LISTEN_PORT6 %q: %w", v, err)
		}
	}
	return p, nil
}
