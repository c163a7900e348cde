package main

import (
	"context"
	"errors"

	"github.com/HorseArcher567/pathfinder/pkg/app"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a gRPC server and register it",
	Long: `Start the gRPC server (health service included), register the
instance under registration.service and keep the lease alive until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := loadFramework()
		if err != nil {
			return err
		}
		if fw.RpcServer == nil || fw.Registration == nil {
			return errors.New("serve needs both rpcServer and registration sections")
		}
		// A serving instance does not need to follow anyone.
		fw.Discovery = nil

		a, err := app.New(fw)
		if err != nil {
			return err
		}
		a.OnBeforeRun(func(_ context.Context, a *app.App) error {
			a.Log().Info("serving", "service", fw.Registration.Service)
			return nil
		})
		return a.Run(cmd.Context())
	},
}
