package config

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	cmd := &cobra.Command{}
	v, err := SetupViper(cmd)
	require.NoError(t, err)
	LoadOptions(v)

	cfg := FromViper(v)
	assert.Equal(t, 10*time.Second, cfg.LoopSleep)
	assert.Equal(t, 60*time.Second, cfg.UnhealthySeconds)
	assert.Equal(t, 27017, cfg.MongoPort)
	assert.Equal(t, "cluster.local", cfg.K8sClusterDomain)
	assert.Equal(t, "", cfg.K8sServiceName)
	assert.Equal(t, ":8080", cfg.MetricsBindAddress)
}

func TestFromViperFlagOverride(t *testing.T) {
	cmd := &cobra.Command{}
	v, err := SetupViper(cmd)
	require.NoError(t, err)
	require.NoError(t, cmd.Flags().Set("k8s-service-name", "mongo-headless"))
	require.NoError(t, cmd.Flags().Set("namespace", "db"))
	LoadOptions(v)

	cfg := FromViper(v)
	assert.Equal(t, "mongo-headless", cfg.K8sServiceName)
	assert.Equal(t, "db", cfg.Namespace)
}

func TestFromViperEnvironmentOverride(t *testing.T) {
	t.Setenv("MONGO_PORT", "27018")

	cmd := &cobra.Command{}
	v, err := SetupViper(cmd)
	require.NoError(t, err)
	LoadOptions(v)

	cfg := FromViper(v)
	assert.Equal(t, 27018, cfg.MongoPort)
}

func TestKlogVerbosity(t *testing.T) {
	assert.Equal(t, "2", Config{LogLevel: "debug"}.KlogVerbosity())
	assert.Equal(t, "0", Config{LogLevel: "info"}.KlogVerbosity())
	assert.Equal(t, "0", Config{LogLevel: "warn"}.KlogVerbosity())
	assert.Equal(t, "0", Config{LogLevel: "error"}.KlogVerbosity())
	assert.Equal(t, "0", Config{LogLevel: ""}.KlogVerbosity())
}
