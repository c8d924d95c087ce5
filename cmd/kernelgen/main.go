// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ProbeChain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ProbeChain. If not, see <http://www.gnu.org/licenses/>.

// Command kernelgen builds a VLIW SIMD kernel for one tree forest shape
// (forest height, node count, batch size, and round count) and prints a
// per-engine slot-count table and a bundle-count headline; the bundles
// themselves are not written out.
package main

import (
	"bufio"
	"fmt"
	"os"
	"reflect"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/naoina/toml"
	"github.com/olekukonko/tablewriter"
	"github.com/probechain/vkernelgen/kernelbuilder"
	"github.com/probechain/vkernelgen/ops"
	"github.com/sirupsen/logrus"
	cli "gopkg.in/urfave/cli.v1"
)

var log = logrus.New()

const version = "0.1.0"

// tomlSettings ensures TOML keys line up 1:1 with Go struct field names,
// same convention the node config loader uses.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// kernelConfig is the shape a kernel is generated for; settable by flags or
// a TOML file passed via -config.
type kernelConfig struct {
	ForestHeight int
	NNodes       int
	BatchSize    int
	Rounds       int
	PipeDepth    int
	NTmpPools    int
}

func defaultKernelConfig() kernelConfig {
	return kernelConfig{
		ForestHeight: 10,
		NNodes:       1024,
		BatchSize:    256,
		Rounds:       16,
		PipeDepth:    traversalDefaultPipeDepth,
		NTmpPools:    traversalDefaultNTmpPools,
	}
}

const (
	traversalDefaultPipeDepth = 2
	traversalDefaultNTmpPools = 6
)

func loadConfigFile(path string, cfg *kernelConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
}

func main() {
	app := cli.NewApp()
	app.Name = "kernelgen"
	app.Version = version
	app.Usage = "build a VLIW SIMD tree-traversal kernel and summarize its bundles"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "TOML file overriding the kernel shape"},
		cli.IntFlag{Name: "forest-height", Value: 10, Usage: "tree forest height"},
		cli.IntFlag{Name: "n-nodes", Value: 1024, Usage: "nodes per tree"},
		cli.IntFlag{Name: "batch-size", Value: 256, Usage: "items per batch (must be a multiple of VLEN)"},
		cli.IntFlag{Name: "rounds", Value: 16, Usage: "traversal round count"},
		cli.IntFlag{Name: "pipe-depth", Value: traversalDefaultPipeDepth, Usage: "software-pipelining depth for divergent gather rounds"},
		cli.IntFlag{Name: "n-tmp-pools", Value: traversalDefaultNTmpPools, Usage: "rotating temp-vector pool size"},
		cli.BoolFlag{Name: "no-color", Usage: "disable colorized summary output"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("kernelgen: build failed")
	}
}

func run(ctx *cli.Context) error {
	cfg := defaultKernelConfig()
	if file := ctx.String("config"); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return fmt.Errorf("loading config %s: %w", file, err)
		}
	}
	if ctx.IsSet("forest-height") {
		cfg.ForestHeight = ctx.Int("forest-height")
	}
	if ctx.IsSet("n-nodes") {
		cfg.NNodes = ctx.Int("n-nodes")
	}
	if ctx.IsSet("batch-size") {
		cfg.BatchSize = ctx.Int("batch-size")
	}
	if ctx.IsSet("rounds") {
		cfg.Rounds = ctx.Int("rounds")
	}
	if ctx.IsSet("pipe-depth") {
		cfg.PipeDepth = ctx.Int("pipe-depth")
	}
	if ctx.IsSet("n-tmp-pools") {
		cfg.NTmpPools = ctx.Int("n-tmp-pools")
	}

	useColor := !ctx.Bool("no-color") && isatty.IsTerminal(os.Stdout.Fd())

	log.WithFields(logrus.Fields{
		"forest_height": cfg.ForestHeight,
		"n_nodes":       cfg.NNodes,
		"batch_size":    cfg.BatchSize,
		"rounds":        cfg.Rounds,
	}).Info("building kernel")

	kb := kernelbuilder.New(
		kernelbuilder.WithPipeDepth(cfg.PipeDepth),
		kernelbuilder.WithNTmpPools(cfg.NTmpPools),
	)
	if err := kb.BuildKernel(cfg.ForestHeight, cfg.NNodes, cfg.BatchSize, cfg.Rounds); err != nil {
		return err
	}

	printSummary(kb, useColor)
	return nil
}

func printSummary(kb *kernelbuilder.Builder, useColor bool) {
	bundles := kb.Bundles()

	counts := map[ops.Engine]int{}
	for _, bundle := range bundles {
		for engine, slots := range bundle {
			counts[engine] += len(slots)
		}
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Engine", "Slot Count"})
	for _, e := range []ops.Engine{ops.EngineLoad, ops.EngineStore, ops.EngineAlu, ops.EngineValu, ops.EngineFlow, ops.EngineDebug} {
		table.Append([]string{e.String(), fmt.Sprintf("%d", counts[e])})
	}
	table.Render()

	headline := fmt.Sprintf("%d bundles, %d cycles", len(bundles), len(bundles))
	if useColor {
		if len(bundles) <= kernelbuilder.Baseline {
			headline = color.GreenString(headline + " (within baseline)")
		} else {
			headline = color.YellowString(headline + " (over baseline)")
		}
	}
	fmt.Println(headline)
}
