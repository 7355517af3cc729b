package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lattice-io/mongo-replset-controller/internal/config"
	"github.com/lattice-io/mongo-replset-controller/internal/hostidentity"
	"github.com/lattice-io/mongo-replset-controller/internal/metrics"
	"github.com/lattice-io/mongo-replset-controller/internal/mongoclient"
	"github.com/lattice-io/mongo-replset-controller/internal/reconciler"
	"github.com/lattice-io/mongo-replset-controller/internal/roster"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/klog/v2"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replset-controller",
		Short: "Sidecar controller reconciling MongoDB replica-set membership against the pod roster",
	}

	v, err := config.SetupViper(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up configuration: %v\n", err)
		os.Exit(1)
	}

	cmd.RunE = run(v)

	return cmd
}

func run(v *viper.Viper) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		config.LoadOptions(v)
		cfg := config.FromViper(v)

		if cfg.PodName == "" {
			klog.Fatal("--pod-name is required")
		}
		if cfg.Namespace == "" {
			klog.Fatal("--namespace is required")
		}

		klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
		klog.InitFlags(klogFlags)
		if err := klogFlags.Set("v", cfg.KlogVerbosity()); err != nil {
			klog.ErrorS(err, "Failed to apply log-level", "logLevel", cfg.LogLevel)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		identity, err := hostidentity.Init(ctx, cfg.MongoPort)
		if err != nil {
			klog.ErrorS(err, "Host identity resolution failed")
			return err
		}

		kubeConfig, err := rest.InClusterConfig()
		if err != nil {
			klog.ErrorS(err, "Failed to load in-cluster config")
			return err
		}

		clientset, err := kubernetes.NewForConfig(kubeConfig)
		if err != nil {
			klog.ErrorS(err, "Failed to create Kubernetes client")
			return err
		}

		lister := &roster.KubeLister{
			Client:        clientset,
			Namespace:     cfg.Namespace,
			LabelSelector: cfg.LabelSelector,
		}

		dial := func(ctx context.Context, endpoint string) (mongoclient.Client, error) {
			return mongoclient.Dial(ctx, endpoint)
		}

		m := metrics.NewMetrics()

		rc := reconciler.New(identity, lister, dial, reconciler.Config{
			LoopSleep:        cfg.LoopSleep,
			UnhealthySeconds: cfg.UnhealthySeconds,
			Addr: roster.AddressConfig{
				MongoPort:     cfg.MongoPort,
				ServiceName:   cfg.K8sServiceName,
				ClusterDomain: cfg.K8sClusterDomain,
			},
		}, m)

		if err := rc.Init(); err != nil {
			klog.ErrorS(err, "Reconciler failed to initialize")
			return err
		}

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			klog.InfoS("Starting metrics server", "address", cfg.MetricsBindAddress)
			if err := http.ListenAndServe(cfg.MetricsBindAddress, mux); err != nil {
				klog.ErrorS(err, "Metrics server error")
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigChan
			klog.InfoS("Received signal, shutting down", "signal", sig)
			cancel()
		}()

		rc.Workloop(ctx)

		klog.Info("Shutdown complete")
		return nil
	}
}
