package main

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dfinance/dvm-sub000/core"
)

// debugServerCmd mounts core.NewDebugRouter: the one HTTP surface this
// module exposes directly, since §1 leaves the real RPC transport out of
// scope. It runs standalone rather than alongside a compile/publish/
// execute invocation because those subcommands are one-shot (stdin in,
// stdout out, process exits); an operator who wants a live /metrics and
// /healthz endpoint runs this subcommand as its own long-lived process.
func debugServerCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "debug-server",
		Short: "serve the read-only /metrics and /healthz debug HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			logrus.WithField("addr", addr).Info("dvmd: debug server listening")
			return http.ListenAndServe(addr, core.NewDebugRouter())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8090", "listen address for the debug HTTP surface")
	return cmd
}
