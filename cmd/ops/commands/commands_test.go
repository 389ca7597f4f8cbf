package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeops/backend/pkg/config"
)

func TestRootCommandTree(t *testing.T) {
	want := map[string][]string{
		"run":       nil,
		"riskguard": nil,
		"trades":    {"build", "show"},
		"ticket":    {"render", "show", "list"},
		"confirm":   {"submit", "ack", "deadline"},
		"policy":    {"validate", "hash"},
		"artifacts": {"prune"},
		"scheduler": {"start", "list", "run"},
		"api":       nil,
	}

	for name, subs := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())

		for _, sub := range subs {
			c, _, err := rootCmd.Find([]string{name, sub})
			require.NoError(t, err, name+" "+sub)
			assert.Equal(t, sub, c.Name())
		}
	}
}

func TestResolvePolicyPath(t *testing.T) {
	old := policyPath
	t.Cleanup(func() { policyPath = old })

	path, err := resolvePolicyPath([]string{"custom.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "custom.yaml", path)

	policyPath = "flag.yaml"
	path, err = resolvePolicyPath(nil)
	require.NoError(t, err)
	assert.Equal(t, "flag.yaml", path)

	// 인자가 플래그보다 우선
	path, err = resolvePolicyPath([]string{"arg.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "arg.yaml", path)
}

func TestRetentionPolicyFrom(t *testing.T) {
	cfg := &config.Config{Ops: config.OpsConfig{
		RetentionRunDays:     14,
		RetentionReportDays:  30,
		RetentionKeepCadence: "0800",
	}}

	p := retentionPolicyFrom(cfg)
	assert.Equal(t, 14, p.RunDays)
	assert.Equal(t, 30, p.ReportDays)
	assert.Equal(t, "0800", p.PruneCadence)
}
