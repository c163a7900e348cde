package main

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/HorseArcher567/pathfinder/pkg/app"
	"github.com/HorseArcher567/pathfinder/pkg/channel"
	"github.com/HorseArcher567/pathfinder/pkg/xlog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/health/grpc_health_v1"
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Follow a service and call it in a loop",
	Long: `Follow --service, then once a second choose a channel from its
pool and issue a gRPC health check through it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		service, _ := cmd.Flags().GetString("service")
		interval, _ := cmd.Flags().GetDuration("interval")

		fw, err := loadFramework()
		if err != nil {
			return err
		}
		if fw.Discovery == nil {
			return errors.New("call needs a discovery section")
		}
		if service == "" {
			if len(fw.Discovery.Follow) == 0 {
				return errors.New("--service is required when discovery.follow is empty")
			}
			service = fw.Discovery.Follow[0]
		}
		if !slices.Contains(fw.Discovery.Follow, service) {
			fw.Discovery.Follow = append(fw.Discovery.Follow, service)
		}
		// Calling does not register this process.
		fw.Registration = nil
		fw.RpcServer = nil

		a, err := app.New(fw)
		if err != nil {
			return err
		}
		if err := a.AddJob("call "+service, callLoop(a, service, interval)); err != nil {
			return err
		}
		return a.Run(cmd.Context())
	},
}

// callLoop chooses a channel and checks its health every interval. An empty
// pool waits one interval and tries again.
func callLoop(a *app.App, service string, interval time.Duration) func(context.Context, *xlog.Logger) error {
	return func(ctx context.Context, log *xlog.Logger) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			ch, err := a.Choose(service)
			switch {
			case errors.Is(err, channel.ErrNoChannel):
				log.Warn("no instance online", "service", service)
			case err != nil:
				log.Error("choose failed", "service", service, "error", err)
			default:
				check(ctx, log, ch)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
}

func check(ctx context.Context, log *xlog.Logger, ch *channel.Channel) {
	resp, err := grpc_health_v1.NewHealthClient(ch).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		log.Error("call failed", "addr", ch.Addr(), "error", err)
		return
	}
	log.Info("call ok", "addr", ch.Addr(), "status", resp.GetStatus().String())
}

func init() {
	callCmd.Flags().StringP("service", "s", "", "Service to call (default: first of discovery.follow)")
	callCmd.Flags().DurationP("interval", "i", time.Second, "Pause between calls")
}
