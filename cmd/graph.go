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
	"image/color"
	"sync"

	"github.com/notargets/avs/chart2d"
	utils2 "github.com/notargets/avs/utils"

	"github.com/notargets/goibm/InputParameters"
)

var forceColors = []color.RGBA{utils2.RED, utils2.GREEN, utils2.BLUE, utils2.WHITE}

// ForcePlot draws the force history of every body while the run progresses
type ForcePlot struct {
	chart    *chart2d.Chart2D
	plotOnce sync.Once
	tMin     float32
	tMax     float32
	scale    float32
	tPrev    float32
	fPrev    []float32 // Last plotted value of each force component
}

func NewForcePlot(ip *InputParameters.InputParameters, scale float64) (fp *ForcePlot) {
	p := ip.Parameters
	fp = &ForcePlot{
		tMin:  float32(float64(p.StartStep) * p.Dt),
		tMax:  float32(float64(p.Nt) * p.Dt),
		scale: float32(scale),
	}
	if fp.tMax <= fp.tMin {
		fp.tMax = fp.tMin + 1
	}
	return
}

// Update has the signature of Simulation.OnStep
func (fp *ForcePlot) Update(tIdx int, t float64, forces [][]float64) {
	fp.plotOnce.Do(func() {
		fp.chart = chart2d.NewChart2D(fp.tMin, fp.tMax, -fp.scale, fp.scale,
			1920, 1280, utils2.WHITE, utils2.BLACK)
	})
	for col, line := range fp.segments(t, forces) {
		fp.chart.AddLine(line, col)
	}
}

// segments joins the previous sample of each force component to the new one, the first
// sample only records the starting point
func (fp *ForcePlot) segments(t float64, forces [][]float64) (lines map[color.RGBA][]float32) {
	var (
		n     int
		tNew  = float32(t)
		first = fp.fPrev == nil
	)
	lines = make(map[color.RGBA][]float32)
	for b := range forces {
		for d := range forces[b] {
			f := float32(forces[b][d])
			if first {
				fp.fPrev = append(fp.fPrev, f)
			} else {
				col := forceColors[n%len(forceColors)]
				lines[col] = append(lines[col], fp.tPrev, fp.fPrev[n], tNew, f)
				fp.fPrev[n] = f
			}
			n++
		}
	}
	fp.tPrev = tNew
	return
}
