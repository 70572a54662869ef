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
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/notargets/goibm/body"
	"github.com/notargets/goibm/types"
)

type BodyOptions struct {
	Shape  string // circle | sphere
	Center string // Comma separated coordinates
	Radius float64
	Ds     float64
	File   string
}

// BodyCmd represents the body command
var BodyCmd = &cobra.Command{
	Use:       "body [circle|sphere]",
	Short:     "Write a marker file for a circle or a sphere",
	Args:      cobra.ExactValidArgs(1),
	ValidArgs: []string{"circle", "sphere"},
	Run: func(cmd *cobra.Command, args []string) {
		bo := &BodyOptions{Shape: args[0]}
		bo.Center, _ = cmd.Flags().GetString("center")
		bo.Radius, _ = cmd.Flags().GetFloat64("radius")
		bo.Ds, _ = cmd.Flags().GetFloat64("ds")
		bo.File, _ = cmd.Flags().GetString("output")
		n, err := WriteBodyFile(bo)
		if err != nil {
			panic(err)
		}
		fmt.Printf("wrote %d markers to %s\n", n, bo.File)
	},
}

func init() {
	rootCmd.AddCommand(BodyCmd)
	BodyCmd.Flags().String("center", "0,0", "comma separated center coordinates")
	BodyCmd.Flags().Float64("radius", 0.5, "radius")
	BodyCmd.Flags().Float64("ds", 0.01, "marker spacing, usually the mesh width near the body")
	BodyCmd.Flags().StringP("output", "o", "body.txt", "marker file to write")
}

func parseCenter(s string) (c []float64, err error) {
	for _, field := range strings.Split(s, ",") {
		var x float64
		if x, err = strconv.ParseFloat(strings.TrimSpace(field), 64); err != nil {
			return nil, fmt.Errorf("center %q: %v: %w", s, err, types.ErrConfiguration)
		}
		c = append(c, x)
	}
	return
}

func WriteBodyFile(bo *BodyOptions) (n int, err error) {
	var (
		center []float64
		coords [][]float64
		fp     *os.File
	)
	if center, err = parseCenter(bo.Center); err != nil {
		return
	}
	if bo.Radius <= 0 || bo.Ds <= 0 {
		return 0, fmt.Errorf("radius %g and spacing %g must be positive: %w", bo.Radius, bo.Ds, types.ErrConfiguration)
	}
	switch strings.ToLower(bo.Shape) {
	case "circle":
		if len(center) != 2 {
			return 0, fmt.Errorf("circle center needs 2 coordinates, have %d: %w", len(center), types.ErrConfiguration)
		}
		coords = body.Circle(center, bo.Radius, bo.Ds)
	case "sphere":
		if len(center) != 3 {
			return 0, fmt.Errorf("sphere center needs 3 coordinates, have %d: %w", len(center), types.ErrConfiguration)
		}
		coords = body.Sphere(center, bo.Radius, bo.Ds)
	default:
		return 0, fmt.Errorf("shape %q: %w", bo.Shape, types.ErrUnsupportedType)
	}
	if fp, err = os.Create(bo.File); err != nil {
		return
	}
	defer func() {
		if cerr := fp.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err = fmt.Fprintf(fp, "%d\n", len(coords)); err != nil {
		return
	}
	return len(coords), body.WriteBody(fp, coords)
}
