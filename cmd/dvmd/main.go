// Command dvmd is the reference CLI for the execution environment: one
// subcommand per core operation (compile, publish-module, execute-script,
// disasm), reading a JSON request from stdin and writing a JSON response
// to stdout, plus a keygen helper for harness fixtures. It replaces the
// teacher's cmd/synnergy mock-testnet CLI, which has no referent in this
// module (there is no testnet or token-transfer subsystem here).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dfinance/dvm-sub000/pkg/config"
)

var statePath string

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if _, err := config.LoadFromEnv(); err != nil {
		// A malformed config file (as opposed to a missing one, which
		// LoadFromEnv tolerates) shouldn't be silently ignored, but it
		// also shouldn't stop a CLI invocation that may not even need
		// the VM/data-source section that failed to parse.
		logrus.WithError(err).Warn("dvmd: config load failed, continuing with defaults")
	}

	root := &cobra.Command{
		Use:   "dvmd",
		Short: "compile, publish, and execute bytecode units against a persisted state snapshot",
	}
	root.PersistentFlags().StringVar(&statePath, "state", "dvm-state.json", "path to the JSON state snapshot this command reads and (if mutating) writes back")

	root.AddCommand(compileCmd())
	root.AddCommand(publishCmd())
	root.AddCommand(executeCmd())
	root.AddCommand(disasmCmd())
	root.AddCommand(keygenCmd())
	root.AddCommand(debugServerCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
