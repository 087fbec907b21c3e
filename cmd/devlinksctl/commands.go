package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"devlinks/device/devicefake"
	"devlinks/linkfs"
)

// deviceDescriptor is the on-disk shape devices are loaded from for the
// add/remove debug commands; it mirrors devicefake.Device's fields
// in a JSON-friendly form.
type deviceDescriptor struct {
	ID          string `json:"id"`
	Node        string `json:"node"`
	Subsystem   string `json:"subsystem"`
	Major       uint32 `json:"major"`
	Minor       uint32 `json:"minor"`
	Priority    int    `json:"priority"`
	Initialized bool   `json:"initialized"`
}

var devicesFile string

func loadDeviceStore(path string) (*devicefake.Store, error) {
	store := devicefake.NewStore()
	if path == "" {
		return store, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read devices file: %w", err)
	}
	var descriptors []deviceDescriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("parse devices file: %w", err)
	}
	for _, d := range descriptors {
		store.Put(&devicefake.Device{
			ID:          d.ID,
			Node:        d.Node,
			Sub:         d.Subsystem,
			Major:       d.Major,
			Minor:       d.Minor,
			Priority:    d.Priority,
			Initialized: d.Initialized,
		})
	}
	return store, nil
}

var escapeCmd = &cobra.Command{
	Use:   "escape <relative-stable-name>",
	Short: "Print the claim-index directory name a stable name escapes to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, n := linkfs.Escape(args[0])
		if n == 0 && args[0] != "" {
			fmt.Fprintln(os.Stderr, "warning: input overflowed the escape buffer; collapsed to empty")
		}
		fmt.Println(out)
		return nil
	},
}

var claimsCmd = &cobra.Command{
	Use:   "claims <relative-stable-name>",
	Short: "List the markers currently present in a stable name's claim dir",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx := linkfs.NewClaimIndex(scratchRoot)
		dir, escaped := idx.ClaimDir(args[0])
		fmt.Printf("claim dir: %s (escaped: %s)\n", dir, escaped)

		snap, err := idx.Snapshot(args[0])
		if err != nil {
			return err
		}
		if !snap.Exists {
			fmt.Println("(no claimants)")
			return nil
		}
		for _, m := range snap.Markers {
			fmt.Println(m)
		}
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <relative-stable-name>",
	Short: "Add the given device's claim on a stable name and converge the symlink",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLinkUpdate(args[0], true)
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <relative-stable-name>",
	Short: "Remove the given device's claim on a stable name and converge the symlink",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLinkUpdate(args[0], false)
	},
}

var deviceID string

func init() {
	for _, c := range []*cobra.Command{addCmd, removeCmd} {
		c.Flags().StringVar(&devicesFile, "devices", "", "JSON file describing the device set (id, node, subsystem, major, minor, priority, initialized)")
		c.Flags().StringVar(&deviceID, "id", "", "device id to act as (must be present in --devices)")
		c.MarkFlagRequired("id")
		c.MarkFlagRequired("devices")
	}
}

func runLinkUpdate(relStableName string, add bool) error {
	store, err := loadDeviceStore(devicesFile)
	if err != nil {
		return err
	}
	dev, err := store.DeviceByID(deviceID)
	if err != nil {
		return err
	}

	idx := linkfs.NewClaimIndex(scratchRoot)
	arb := linkfs.NewArbiter(idx, store)
	updater := linkfs.NewUpdater(idx, arb, devfsRoot)

	stableName := filepath.Join(devfsRoot, relStableName)
	if err := updater.LinkUpdate(dev, stableName, add); err != nil {
		return err
	}
	fmt.Printf("ok: link_update(%s, add=%v) converged\n", stableName, add)
	return nil
}
