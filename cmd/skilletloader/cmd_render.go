package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/skilletloader/pkg/cli"
	"github.com/newtron-network/skilletloader/pkg/render"
	"github.com/newtron-network/skilletloader/pkg/skillet"
	"github.com/newtron-network/skilletloader/pkg/util"
)

var renderVars []string

var renderCmd = &cobra.Command{
	Use:   "render <skillet>",
	Short: "Render every snippet to stdout",
	Long: `Render the snippets of a skillet against the current variables and print
them. No device is contacted. This is how template skillets are used.

Examples:
  skilletloader render ./templates/bootstrap --var hostname=fw1 > bootstrap.xml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRender(args[0], util.ParseEnviron(os.Environ()), renderVars, os.Stdout)
	},
}

func init() {
	renderCmd.Flags().StringArrayVar(&renderVars, "var", nil, "Set a variable (key=value, repeatable)")
}

func runRender(path string, env map[string]string, vars []string, out io.Writer) error {
	s, err := skillet.Load(path, render.New())
	if err != nil {
		return err
	}
	input, err := contextInput(env, vars)
	if err != nil {
		return err
	}
	instances, err := s.RenderAll(s.NewContext(input))
	if err != nil {
		return err
	}

	// A single template prints bare so the output can be redirected to a file.
	// Rendering drops the template's final newline, as Jinja does.
	if len(instances) == 1 && !s.Type().Executable() {
		payload := instances[0].Payload
		fmt.Fprint(out, payload)
		if !strings.HasSuffix(payload, "\n") {
			fmt.Fprintln(out)
		}
		return nil
	}
	for _, inst := range instances {
		fmt.Fprintf(out, "<!-- %s", inst.Name())
		if inst.XPath != "" {
			fmt.Fprintf(out, " %s", inst.XPath)
		}
		fmt.Fprintln(out, " -->")
		fmt.Fprintln(out, strings.TrimRight(inst.Payload, "\n"))
	}
	return nil
}

var showCmd = &cobra.Command{
	Use:   "show <skillet>",
	Short: "Show a skillet's variables and snippets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := skillet.Load(args[0], render.New())
		if err != nil {
			return err
		}
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(s.Definition.Raw())
		}
		printSkillet(os.Stdout, s)
		return nil
	},
}

func printSkillet(out io.Writer, s *skillet.Skillet) {
	def := s.Definition
	fmt.Fprintf(out, "%s %s (%s)\n", cli.Bold(def.Name), def.Label, s.Type())
	if def.Description != "" {
		fmt.Fprintf(out, "%s\n", def.Description)
	}
	fmt.Fprintf(out, "Collection: %s\n", strings.Join(def.Collection(), ", "))
	if labels := labelList(def.Labels); labels != "" {
		fmt.Fprintf(out, "Labels: %s\n", labels)
	}
	if s.Dir != "" {
		fmt.Fprintf(out, "Directory: %s\n", s.Dir)
	}

	fmt.Fprintf(out, "\n%s\n", cli.Bold("Variables:"))
	vt := cli.NewTable("NAME", "TYPE", "DEFAULT", "DESCRIPTION").WithPrefix("  ")
	if out != os.Stdout {
		vt.WithWriter(out)
	}
	for _, v := range s.Variables() {
		vt.Row(v.Name, v.TypeHint, fmt.Sprint(v.Default), v.Description)
	}
	vt.Flush()

	fmt.Fprintf(out, "\n%s\n", cli.Bold("Snippets:"))
	st := cli.NewTable("NAME", "CMD", "WHEN", "XPATH", "ENTRIES").WithPrefix("  ")
	if out != os.Stdout {
		st.WithWriter(out)
	}
	for _, snip := range s.Snippets() {
		entries, err := snip.Entries()
		list := strings.Join(entries, ",")
		if err != nil {
			list = cli.Dim("-")
		}
		kind := string(snip.Kind)
		if kind == "" {
			kind = cli.Dim("template")
		}
		st.Row(snip.Name, kind, snip.When, snip.Field("xpath"), list)
	}
	st.Flush()
}

// labelList renders labels other than collection as sorted key=value pairs.
func labelList(labels map[string]any) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		if k != "collection" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, labels[k])
	}
	return strings.Join(parts, ", ")
}
