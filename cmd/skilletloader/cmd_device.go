package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/skilletloader/pkg/audit"
	"github.com/newtron-network/skilletloader/pkg/cli"
	"github.com/newtron-network/skilletloader/pkg/device"
	"github.com/newtron-network/skilletloader/pkg/util"
)

var contentType string

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Manage dynamic content",
}

var contentUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Download and install the latest dynamic content",
	Long: `Check for the latest dynamic content version, download it and install
it, waiting for each job to finish.

Examples:
  skilletloader content update --host fw1
  skilletloader content update --host fw1 --type anti-virus`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !device.ValidContentType(contentType) {
			return fmt.Errorf("invalid content type %q", contentType)
		}
		dev, err := connectDevice(util.ParseEnviron(os.Environ()))
		if err != nil {
			return err
		}

		start := time.Now()
		err = device.UpdateContent(cmd.Context(), dev, contentType, pollOptions())
		event := audit.NewEvent("", dev.Name(), audit.EventTypeContentUpdate).
			WithUser(currentUser()).
			WithCommand(contentType, "").
			WithDuration(time.Since(start))
		if err != nil {
			audit.Log(event.WithError(err))
			return err
		}
		audit.Log(event.WithSuccess())
		fmt.Println(cli.Green("Dynamic content is up to date."))
		return nil
	},
}

var waitReadyCmd = &cobra.Command{
	Use:   "wait-ready",
	Short: "Wait until the device reports ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := connectDevice(util.ParseEnviron(os.Environ()))
		if err != nil {
			return err
		}
		ok, err := device.WaitForReady(cmd.Context(), dev, dev.Name(), pollOptions())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s did not become ready", dev.Name())
		}
		fmt.Printf("%s is %s\n", dev.Name(), cli.Green("ready"))
		return nil
	},
}

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Show device system facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := connectDevice(util.ParseEnviron(os.Environ()))
		if err != nil {
			return err
		}
		facts, err := dev.Facts(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(facts)
		}
		keys := make([]string, 0, len(facts))
		for k := range facts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		t := cli.NewTable("FACT", "VALUE")
		for _, k := range keys {
			t.Row(k, facts[k])
		}
		t.Flush()
		return nil
	},
}

func init() {
	contentUpdateCmd.Flags().StringVar(&contentType, "type", "content", "Content type (content, anti-virus, wildfire)")
	addDeviceFlags(contentUpdateCmd)
	contentCmd.AddCommand(contentUpdateCmd)
}
