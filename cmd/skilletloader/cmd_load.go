package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/skilletloader/pkg/capture"
	"github.com/newtron-network/skilletloader/pkg/cli"
	"github.com/newtron-network/skilletloader/pkg/device"
	"github.com/newtron-network/skilletloader/pkg/history"
	"github.com/newtron-network/skilletloader/pkg/render"
	"github.com/newtron-network/skilletloader/pkg/skillet"
	"github.com/newtron-network/skilletloader/pkg/util"
)

// loadOptions are the load command flags.
type loadOptions struct {
	noCommit    bool
	dryRun      bool
	lenientJSON bool
	waitReady   bool
	snippets    []string
	entry       string
	vars        []string
}

var loadOpts loadOptions

var loadCmd = &cobra.Command{
	Use:   "load <skillet>",
	Short: "Apply a skillet to a device",
	Long: `Apply a panos skillet to a device and commit.

Snippets run in order and the first failure aborts the run. Snippets that
were already applied stay in the candidate configuration and nothing is
committed.

With --dry-run no device is contacted: requests are recorded and printed.

Examples:
  skilletloader load ./base_config --host fw1
  skilletloader load ./base_config --host fw1 --var hostname=fw1-lab
  skilletloader load ./base_config --dry-run --snippet address_objects
  skilletloader load ./security_rules --host fw1 --entry allow-dns`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env := util.ParseEnviron(os.Environ())

		var dev device.Device
		if loadOpts.dryRun {
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

		res, err := runLoad(ctx, args[0], dev, loadOpts, env, os.Stdout)
		if res != nil {
			recordRun(ctx, res)
		}
		if mem, ok := dev.(*device.Memory); ok {
			printRequests(os.Stdout, mem.Requests())
		}
		return err
	},
}

func init() {
	f := loadCmd.Flags()
	f.BoolVar(&loadOpts.noCommit, "no-commit", false, "Leave changes in the candidate configuration")
	f.BoolVar(&loadOpts.dryRun, "dry-run", false, "Record requests without contacting a device")
	f.BoolVar(&loadOpts.lenientJSON, "lenient-json", false, "Record JSON capture failures instead of aborting")
	f.BoolVar(&loadOpts.waitReady, "wait-ready", false, "Wait for the device to report ready first")
	f.StringSliceVar(&loadOpts.snippets, "snippet", nil, "Only run the named snippets (repeatable)")
	f.StringVar(&loadOpts.entry, "entry", "", "Only push the entry with this name from each element")
	f.StringArrayVar(&loadOpts.vars, "var", nil, "Set a variable (key=value, repeatable)")
}

// runLoad loads the skillet at path and executes it against dev, then
// commits unless told not to. The result is returned whenever execution
// started, even on failure.
func runLoad(ctx context.Context, path string, dev device.Device, opts loadOptions, env map[string]string, out io.Writer) (*skillet.Result, error) {
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
		Device:         dev,
		Capturer:       &capture.Capturer{SoftJSONErrors: opts.lenientJSON},
		Progress:       progress,
		SplitThreshold: userSettings.SplitThreshold,
		Entry:          opts.entry,
		Only:           opts.snippets,
		DryRun:         opts.dryRun,
		User:           currentUser(),
	}

	res, err := executor.Execute(ctx, s, s.NewContext(input))
	if err != nil {
		return res, err
	}
	if opts.noCommit || opts.dryRun {
		fmt.Fprintln(out, cli.Yellow("Changes staged, not committed."))
		return res, nil
	}
	return res, executor.Commit(ctx, res)
}

// contextInput overlays --var assignments on the environment.
func contextInput(env map[string]string, vars []string) (map[string]string, error) {
	input := make(map[string]string, len(env)+len(vars))
	for k, v := range env {
		input[k] = v
	}
	for _, kv := range vars {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", kv)
		}
		input[k] = v
	}
	return input, nil
}

// recordRun saves res to the run history. Failures are logged, not
// returned: the run outcome matters more than its record.
func recordRun(ctx context.Context, res *skillet.Result) {
	store, closeFn, err := openHistory(context.WithoutCancel(ctx))
	if err != nil {
		util.Warnf("Could not open run history: %v", err)
		return
	}
	defer closeFn()
	if err := store.Save(context.WithoutCancel(ctx), history.NewRecord(res)); err != nil {
		util.Warnf("Could not record run %s: %v", res.RunID, err)
	}
}

func printRequests(out io.Writer, reqs []*device.Request) {
	if len(reqs) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s\n", cli.Bold("Recorded requests:"))
	for i, r := range reqs {
		fmt.Fprintf(out, "  %d. %s\n", i+1, r)
		if r.Element != "" {
			fmt.Fprintf(out, "     %s\n", cli.Dim(util.Truncate(r.Element, 200)))
		}
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}
