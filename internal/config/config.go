// Package config loads the controller's settings through layered
// cobra/pflag/viper configuration: explicitly set command-line flags, then
// environment variables, then flag defaults, in that order of precedence.
// There is no config file layer.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the fully resolved set of options a Reconciler and its
// collaborators are constructed from.
type Config struct {
	LoopSleep        time.Duration
	UnhealthySeconds time.Duration
	MongoPort        int
	K8sServiceName   string
	K8sClusterDomain string

	Namespace           string
	PodName             string
	LabelSelector       string
	MetricsBindAddress  string
	LogLevel            string
}

// SetupViper registers this controller's flags on cmd and binds them into a
// fresh viper.Viper, matching the etcd-snapshot-driver split of flag
// definition from environment/file layering.
func SetupViper(cmd *cobra.Command) (*viper.Viper, error) {
	flags := cmd.Flags()

	flags.Duration("loop-sleep", 10*time.Second, "Delay between the end of one tick and the start of the next")
	flags.Duration("unhealthy-seconds", 60*time.Second, "Grace period before an unhealthy member becomes a removal candidate")
	flags.Int("mongo-port", 27017, "Port appended to every computed endpoint")
	flags.String("k8s-service-name", "", "Headless service name used to build stable endpoints; empty disables stable endpoints")
	flags.String("k8s-cluster-domain", "cluster.local", "DNS suffix used in stable endpoints")

	flags.String("namespace", "", "Namespace to list peer pods in")
	flags.String("pod-name", "", "This pod's own name")
	flags.String("label-selector", "", "Label selector identifying pods belonging to this replica set")
	flags.String("metrics-bind-address", ":8080", "Address for the /metrics and /healthz endpoints")
	flags.String("log-level", "info", "klog verbosity level name (debug, info, warn, error)")

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	return v, nil
}

// LoadOptions layers environment variables over the bound flags. Unlike the
// etcd-snapshot-driver example this controller has no config file: every
// option here has a sane flag default or is required via the Kubernetes
// downward API, so a file layer would only add an unused precedence tier.
func LoadOptions(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// FromViper materializes a Config from a loaded viper.Viper.
func FromViper(v *viper.Viper) Config {
	return Config{
		LoopSleep:        v.GetDuration("loop-sleep"),
		UnhealthySeconds: v.GetDuration("unhealthy-seconds"),
		MongoPort:        v.GetInt("mongo-port"),
		K8sServiceName:   v.GetString("k8s-service-name"),
		K8sClusterDomain: v.GetString("k8s-cluster-domain"),

		Namespace:          v.GetString("namespace"),
		PodName:            v.GetString("pod-name"),
		LabelSelector:      v.GetString("label-selector"),
		MetricsBindAddress: v.GetString("metrics-bind-address"),
		LogLevel:           v.GetString("log-level"),
	}
}

// KlogVerbosity maps LogLevel to the numeric verbosity klog's "-v" flag
// expects. "debug" enables the V(2) tracing calls sprinkled through
// membership and the reconciler; every other recognized level runs at
// klog's default verbosity of 0.
func (c Config) KlogVerbosity() string {
	if c.LogLevel == "debug" {
		return "2"
	}
	return "0"
}
