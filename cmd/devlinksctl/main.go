// devlinksctl is a debug tool for inspecting and poking at the on-disk
// name-claim index outside of a running device event daemon: escaping a
// stable name, listing a claim dir's markers, and driving add/remove
// against a scratch root and an in-memory device set read from a
// descriptor file. It is not part of the daemon's runtime path.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"devlinks/logging"
)

var (
	scratchRoot string
	devfsRoot   string
	logFormat   string
	debug       bool
)

var rootCmd = &cobra.Command{
	Use:   "devlinksctl",
	Short: "Inspect and drive the device-node symlink manager's on-disk state",
	Long: `devlinksctl is a debug tool for the device-node symlink manager.

It operates directly on a claim-index scratch root and a device
filesystem root, independent of any running event daemon, for local
inspection and manual reproduction of arbitration scenarios.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.ParseLevel("info")
		if debug {
			level = logging.ParseLevel("debug")
		}
		logging.SetDefault(logging.NewLogger(logging.Config{
			Level:  level,
			Format: logFormat,
			Output: os.Stderr,
		}))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&scratchRoot, "scratch-root", "/run/udev/links", "claim-index scratch root")
	rootCmd.PersistentFlags().StringVar(&devfsRoot, "devfs-root", "/dev", "device filesystem root")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format (text or json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(escapeCmd)
	rootCmd.AddCommand(claimsCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
