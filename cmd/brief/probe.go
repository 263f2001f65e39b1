package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ashureev/brieflab/internal/healthcheck"
)

var (
	probeService string
	probeTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringVar(&probeService, "service", healthcheck.ServiceName, "Service name to check (empty for overall status)")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 5*time.Second, "Probe timeout")
}

var probeCmd = &cobra.Command{
	Use:   "probe <host:port>",
	Short: "Check a server's gRPC health endpoint",
	Long: `Query the gRPC health service exposed when GRPC_HEALTH_PORT is set.

Exits non-zero unless the service reports SERVING.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()

		status, err := healthcheck.Probe(ctx, args[0], probeService)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), status.String())
		if status != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("service %q is %s", probeService, status)
		}
		return nil
	},
}
