package body

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/notargets/goibm/types"
)

// ReadBody parses a marker file: one marker per line, whitespace separated coordinates. A first
// line holding a single integer is the marker count and is checked against the markers read.
func ReadBody(r io.Reader) (coords [][]float64, err error) {
	var (
		scanner  = bufio.NewScanner(r)
		lineNum  int
		declared = -1
		ncols    = -1
	)
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if declared < 0 && len(coords) == 0 && len(fields) == 1 {
			if n, perr := strconv.Atoi(fields[0]); perr == nil {
				declared = n
				continue
			}
		}
		if ncols < 0 {
			ncols = len(fields)
		}
		if len(fields) != ncols {
			return nil, fmt.Errorf("line %d has %d coordinates, expected %d: %w",
				lineNum, len(fields), ncols, types.ErrFileFormat)
		}
		c := make([]float64, ncols)
		for d, field := range fields {
			if c[d], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, fmt.Errorf("line %d: %v: %w", lineNum, err, types.ErrFileFormat)
			}
		}
		coords = append(coords, c)
	}
	if err = scanner.Err(); err != nil {
		return
	}
	if declared >= 0 && declared != len(coords) {
		return nil, fmt.Errorf("header declares %d markers, file holds %d: %w",
			declared, len(coords), types.ErrFileFormat)
	}
	return
}

// WriteBody writes markers so that ReadBody recovers them bit for bit
func WriteBody(w io.Writer, coords [][]float64) (err error) {
	bw := bufio.NewWriter(w)
	for _, c := range coords {
		for d, x := range c {
			if d > 0 {
				bw.WriteByte('\t')
			}
			bw.WriteString(strconv.FormatFloat(x, 'e', -1, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Circle places markers around a circle, spaced by about ds
func Circle(center []float64, radius, ds float64) (coords [][]float64) {
	n := int(math.Ceil(2 * math.Pi * radius / ds))
	if n < 3 {
		n = 3
	}
	coords = make([][]float64, n)
	for i := range coords {
		theta := 2 * math.Pi * float64(i) / float64(n)
		coords[i] = []float64{center[0] + radius*math.Cos(theta), center[1] + radius*math.Sin(theta)}
	}
	return
}

// Sphere places markers on a sphere with a Fibonacci lattice of spacing about ds
func Sphere(center []float64, radius, ds float64) (coords [][]float64) {
	n := int(math.Ceil(4 * math.Pi * radius * radius / (ds * ds)))
	if n < 4 {
		n = 4
	}
	golden := math.Pi * (3 - math.Sqrt(5))
	coords = make([][]float64, n)
	for i := range coords {
		z := 1 - 2*(float64(i)+0.5)/float64(n)
		r := math.Sqrt(1 - z*z)
		phi := golden * float64(i)
		coords[i] = []float64{
			center[0] + radius*r*math.Cos(phi),
			center[1] + radius*r*math.Sin(phi),
			center[2] + radius*z,
		}
	}
	return
}
