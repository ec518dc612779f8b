package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/skilletloader/pkg/cli"
	"github.com/newtron-network/skilletloader/pkg/device"
	"github.com/newtron-network/skilletloader/pkg/render"
	"github.com/newtron-network/skilletloader/pkg/skillet"
	"github.com/newtron-network/skilletloader/pkg/util"
)

type loadConfigOptions struct {
	noCommit  bool
	dryRun    bool
	waitReady bool
	name      string
	vars      []string
}

var loadConfigOpts loadConfigOptions

var loadConfigCmd = &cobra.Command{
	Use:   "load-config <skillet>",
	Short: "Import a template skillet as a full configuration and load it",
	Long: `Render a template skillet as a complete configuration file, import it to
the device, load it into the candidate configuration and commit.

The first snippet of the skillet is rendered. The file is saved on the
device under the snippet name unless --name is given.

Examples:
  skilletloader load-config ./full_config --host fw1
  skilletloader load-config ./full_config --host fw1 --name lab-base.xml --no-commit
  skilletloader load-config ./full_config --dry-run --var FW_NAME=fw1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env := util.ParseEnviron(os.Environ())

		var dev device.Device
		if loadConfigOpts.dryRun {
			name, _ := resolveHost(hostName, env, userSettings)
			if name == "" {
				name = "dry-run"
			}
			dev = device.NewMemory(name)
		} else {
			d, err := connectDevice(env)
			if err != nil {
				return err
			}
			dev = d
		}

		res, err := runLoadConfig(ctx, args[0], dev, loadConfigOpts, env, os.Stdout)
		if res != nil {
			recordRun(ctx, res)
		}
		if mem, ok := dev.(*device.Memory); ok {
			printConfigs(os.Stdout, mem)
		}
		return err
	},
}

func init() {
	f := loadConfigCmd.Flags()
	f.BoolVar(&loadConfigOpts.noCommit, "no-commit", false, "Leave the loaded configuration uncommitted")
	f.BoolVar(&loadConfigOpts.dryRun, "dry-run", false, "Render and record the file without contacting a device")
	f.BoolVar(&loadConfigOpts.waitReady, "wait-ready", false, "Wait for the device to report ready first")
	f.StringVar(&loadConfigOpts.name, "name", "", "File name to save on the device (default: snippet name)")
	f.StringArrayVar(&loadConfigOpts.vars, "var", nil, "Set a variable (key=value, repeatable)")
}

// runLoadConfig imports and loads the template skillet at path, then commits
// unless told not to.
func runLoadConfig(ctx context.Context, path string, dev device.Device, opts loadConfigOptions, env map[string]string, out io.Writer) (*skillet.Result, error) {
	s, err := skillet.Load(path, render.New())
	if err != nil {
		return nil, err
	}
	input, err := contextInput(env, opts.vars)
	if err != nil {
		return nil, err
	}

	if opts.waitReady && !opts.dryRun {
		ok, err := device.WaitForReady(ctx, dev, dev.Name(), pollOptions())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%s did not become ready", dev.Name())
		}
	}

	progress := skillet.NewConsoleProgress(verbose)
	progress.W = out
	executor := &skillet.Executor{
		Device:   dev,
		Progress: progress,
		DryRun:   opts.dryRun,
		User:     currentUser(),
	}

	res, err := executor.ImportAndLoad(ctx, s, s.NewContext(input), opts.name)
	if err != nil {
		return res, err
	}
	if opts.noCommit || opts.dryRun {
		fmt.Fprintln(out, cli.Yellow("Configuration loaded, not committed."))
		return res, nil
	}
	return res, executor.Commit(ctx, res)
}

func printConfigs(out io.Writer, mem *device.Memory) {
	if len(mem.Configs) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s\n", cli.Bold("Imported configuration files:"))
	for name, content := range mem.Configs {
		marker := ""
		if name == mem.Loaded {
			marker = " (loaded)"
		}
		fmt.Fprintf(out, "  %s%s, %d bytes\n", name, marker, len(content))
		fmt.Fprintf(out, "     %s\n", cli.Dim(util.Truncate(content, 200)))
	}
}
