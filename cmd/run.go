/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/goibm/InputParameters"
	"github.com/notargets/goibm/model_problems/NavierStokes"
	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
)

type RunOptions struct {
	CaseFile   string
	OutDir     string
	NP         int
	Restart    int // Time index to continue from, negative uses the case file
	Graph      bool
	GraphScale float64
	Profile    string // cpu | mem
	Perf       bool
	Verbose    bool
}

// RunCmd represents the run command
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate a case file",
	Long: `
Reads a YAML case, advances the flow and writes forces-<start>.txt, iterations-<start>.txt
and restart-<step>.gob files to the output directory,
goibm run -I case.yaml -d outdir --np 4`,
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		ro := &RunOptions{
			NP:         viper.GetInt("np"),
			Verbose:    viper.GetBool("verbose"),
			Profile:    viper.GetString("profile"),
			GraphScale: viper.GetFloat64("graphScale"),
		}
		if ro.CaseFile, err = cmd.Flags().GetString("inputConditionsFile"); err != nil {
			panic(err)
		}
		if ro.OutDir, err = cmd.Flags().GetString("outputDir"); err != nil {
			panic(err)
		}
		ro.Restart, _ = cmd.Flags().GetInt("restart")
		ro.Graph, _ = cmd.Flags().GetBool("graph")
		ro.Perf, _ = cmd.Flags().GetBool("perf")
		if err = Run(ro); err != nil {
			panic(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(RunCmd)
	RunCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML case file: mesh, flow, parameters and bodies")
	RunCmd.Flags().StringP("outputDir", "d", ".", "directory for force, iteration and restart files")
	RunCmd.Flags().IntP("np", "n", 1, "number of parallel ranks")
	RunCmd.Flags().IntP("restart", "r", -1, "time index of the restart file to continue from")
	RunCmd.Flags().BoolP("graph", "g", false, "display the force history while computing")
	RunCmd.Flags().Float64("graphScale", 4, "force axis range of the graph, [-scale, scale]")
	RunCmd.Flags().String("profile", "", "write a profile to the output directory: cpu or mem")
	RunCmd.Flags().Bool("perf", false, "count the CPU instructions retired by each rank (linux)")
	RunCmd.Flags().BoolP("verbose", "v", false, "print the case and the progress of the run")
	for _, name := range []string{"np", "profile", "graphScale", "verbose"} {
		if err := viper.BindPFlag(name, RunCmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func processInput(ro *RunOptions) (ip *InputParameters.InputParameters, err error) {
	if len(ro.CaseFile) == 0 {
		exampleFile := `
########################################
mesh:
  - {direction: x, start: -2, subDomains: [{end: 2, cells: 64}]}
  - {direction: y, start: -2, subDomains: [{end: 2, cells: 64}]}
flow:
  nu: 0.025
  initialVelocity: [1, 0]
  boundaryConditions:
    - {location: xMinus, u: {type: DIRICHLET, value: 1}, v: {type: DIRICHLET, value: 0}}
    - {location: xPlus, u: {type: CONVECTIVE, value: 1}, v: {type: CONVECTIVE, value: 1}}
    - {location: yMinus, u: {type: PERIODIC}, v: {type: PERIODIC}}
    - {location: yPlus, u: {type: PERIODIC}, v: {type: PERIODIC}}
parameters: {dt: 0.005, nt: 400, nsave: 50, solver: IBPM}
bodies:
  - {name: cylinder, file: circle.body}
########################################
`
		fmt.Printf("Example File:%s\n", exampleFile)
		return nil, fmt.Errorf("must supply a case file (-I, --inputConditionsFile): %w", types.ErrConfiguration)
	}
	var data []byte
	if data, err = ioutil.ReadFile(ro.CaseFile); err != nil {
		return
	}
	ip = &InputParameters.InputParameters{}
	if err = ip.Parse(data); err != nil {
		return
	}
	if ro.Restart >= 0 {
		ip.Parameters.StartStep = ro.Restart
	}
	if ro.NP < 1 {
		err = fmt.Errorf("number of ranks %d: %w", ro.NP, types.ErrConfiguration)
	}
	return
}

func Run(ro *RunOptions) (err error) {
	var ip *InputParameters.InputParameters
	if ip, err = processInput(ro); err != nil {
		return
	}
	if ro.Verbose {
		ip.Print()
	}
	switch strings.ToLower(ro.Profile) {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(ro.OutDir), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(ro.OutDir), profile.NoShutdownHook).Stop()
	default:
		return fmt.Errorf("profile %q: %w", ro.Profile, types.ErrUnsupportedType)
	}
	var plot *ForcePlot
	if ro.Graph {
		plot = NewForcePlot(ip, ro.GraphScale)
	}
	caseDir := filepath.Dir(ro.CaseFile)
	return utils.RunSPMD(ro.NP, func(comm *utils.Comm) (err error) {
		var sim *NavierStokes.Simulation
		if sim, err = NavierStokes.NewSimulation(comm, ip, ro.OutDir, NavierStokes.Options{
			Verbose: ro.Verbose,
			Out:     os.Stdout,
			Dir:     caseDir,
		}); err != nil {
			return
		}
		if plot != nil && comm.Rank() == 0 {
			sim.OnStep = plot.Update
		}
		if !ro.Perf {
			return sim.Run()
		}
		var count uint64
		if count, err = countInstructions(sim.Run); err != nil {
			return
		}
		counts := utils.AllGather(comm, count)
		if comm.Rank() == 0 {
			for rank, c := range counts {
				fmt.Printf("rank %d: %d CPU instructions\n", rank, c)
			}
		}
		return
	})
}
