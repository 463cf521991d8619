package config_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/nullmesh/peercore/config"
	"github.com/stretchr/testify/require"
)

func TestConfig_ProfileForEnv(t *testing.T) {
	tests := []struct {
		env     string
		want    *config.Profile
		wantErr error
	}{
		{
			env:  config.ProfileProduction,
			want: &config.Profile{Name: config.ProfileProduction, LiteMode: false, ListenPort4: config.DefaultListenPort4, ListenPort6: config.DefaultListenPort6},
		},
		{
			env:  config.ProfileStaging,
			want: &config.Profile{Name: config.ProfileStaging, LiteMode: false, ListenPort4: config.DefaultListenPort4, ListenPort6: config.DefaultListenPort6},
		},
		{
			env:  config.ProfileLite,
			want: &config.Profile{Name: config.ProfileLite, LiteMode: true, ListenPort4: config.DefaultListenPort4, ListenPort6: config.DefaultListenPort6},
		},
		{
			env:     "invalid",
			want:    nil,
			wantErr: fmt.Errorf("invalid profile %q, must be one of: %s, %s, %s", "invalid", config.ProfileProduction, config.ProfileStaging, config.ProfileLite),
		},
	}

	for _, test := range tests {
		t.Run(test.env, func(t *testing.T) {
			got, err := config.ProfileForEnv(test.env)
			if test.wantErr != nil {
				require.Equal(t, test.wantErr.Error(), err.Error())
				return
			}
			require.Equal(t, test.want, got)
		})
	}
}

func TestConfig_ProfileForEnv_PortOverrideFromEnvVars(t *testing.T) {
	os.Setenv("PEERCORE_LISTEN_PORT4", "40000")
	t.Cleanup(func() { os.Unsetenv("PEERCORE_LISTEN_PORT4") })

	got, err := config.ProfileForEnv(config.ProfileProduction)
	require.NoError(t, err)
	require.Equal(t, 40000, got.ListenPort4)
}
