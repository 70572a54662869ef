package NavierStokes

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
	"strconv"

	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
)

// RestartData is the global state needed to continue a run
type RestartData struct {
	Solver     string
	TimeIndex  int
	Time       float64
	U, P, F    []float64 // Global vectors, F is nil without bodies
	ConvPrev   []float64 // Convective term of the last completed step
	HaveConv   bool
	Convective [][]float64 // Boundary values of the convective faces
}

// bcastError hands rank 0's outcome to every rank
func bcastError(comm *utils.Comm, err error, what string) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if msg = utils.Bcast(comm, msg, 0); msg == "" {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%s on rank 0: %s", what, msg)
}

func (ns *NavierStokes) restartData() (rd *RestartData) {
	rd = &RestartData{
		Solver:     ns.impl.name(),
		TimeIndex:  ns.tIdx,
		Time:       ns.t,
		U:          ns.Mesh.ULayout.Gather(ns.comm, ns.U),
		P:          ns.Mesh.PLayout.Gather(ns.comm, ns.P),
		ConvPrev:   ns.Mesh.ULayout.Gather(ns.comm, ns.convPrev),
		HaveConv:   ns.haveConvPrev,
		Convective: ns.BC.ConvectiveState(),
	}
	if f, l := ns.impl.forceUnknowns(); l != nil {
		rd.F = l.Gather(ns.comm, f)
	}
	return
}

// WriteRestart gob encodes the global state, rank 0 writes
func (ns *NavierStokes) WriteRestart(w io.Writer) (err error) {
	if err = ns.checkState("write restart", Initialized, Stepping, Finalized); err != nil {
		return
	}
	rd := ns.restartData()
	if ns.comm.Rank() == 0 {
		err = gob.NewEncoder(w).Encode(rd)
	}
	return bcastError(ns.comm, err, "writing restart")
}

// ReadRestart replaces the initial condition by a saved state, rank 0 reads
func (ns *NavierStokes) ReadRestart(r io.Reader) (err error) {
	if err = ns.checkState("read restart", Initialized); err != nil {
		return
	}
	var rd *RestartData
	if ns.comm.Rank() == 0 {
		rd = &RestartData{}
		if err = gob.NewDecoder(r).Decode(rd); err != nil {
			err = fmt.Errorf("decoding restart: %v: %w", err, types.ErrFileFormat)
		}
	}
	if err = bcastError(ns.comm, err, "reading restart"); err != nil {
		return
	}
	rd = utils.Bcast(ns.comm, rd, 0)
	return ns.restore(rd)
}

func (ns *NavierStokes) restore(rd *RestartData) (err error) {
	var (
		ul = ns.Mesh.ULayout
		pl = ns.Mesh.PLayout
	)
	if rd.Solver != ns.impl.name() {
		return fmt.Errorf("restart written by solver %s, running %s: %w", rd.Solver, ns.impl.name(),
			types.ErrFileFormat)
	}
	if len(rd.U) != ul.N || len(rd.ConvPrev) != ul.N || len(rd.P) != pl.N {
		return fmt.Errorf("restart holds %d velocity and %d pressure unknowns, mesh has %d and %d: %w",
			len(rd.U), len(rd.P), ul.N, pl.N, types.ErrFileFormat)
	}
	f, fl := ns.impl.forceUnknowns()
	if fl != nil && rd.F != nil && len(rd.F) != fl.N {
		return fmt.Errorf("restart holds %d force unknowns, bodies have %d: %w",
			len(rd.F), fl.N, types.ErrFileFormat)
	}
	if err = ns.BC.RestoreConvectiveState(rd.Convective); err != nil {
		return
	}
	copy(ns.U, ul.Scatter(rd.U))
	copy(ns.P, pl.Scatter(rd.P))
	copy(ns.convPrev, ul.Scatter(rd.ConvPrev))
	if fl != nil && rd.F != nil {
		copy(f, fl.Scatter(rd.F))
	}
	ns.haveConvPrev = rd.HaveConv
	ns.tIdx, ns.t = rd.TimeIndex, rd.Time
	ns.bc1.Update()
	ns.bc2.Update()
	return
}

// WriteForces appends one line: the time then the force components of every body
func WriteForces(w io.Writer, t float64, forces [][]float64) (err error) {
	bw := bufio.NewWriter(w)
	bw.WriteString(strconv.FormatFloat(t, 'f', 6, 64))
	for _, f := range forces {
		for _, v := range f {
			bw.WriteByte('\t')
			bw.WriteString(strconv.FormatFloat(v, 'e', 10, 64))
		}
	}
	bw.WriteByte('\n')
	return bw.Flush()
}

// WriteIterations appends one line: the time index then the iterations of each linear solve
func WriteIterations(w io.Writer, tIdx int, its []int) (err error) {
	bw := bufio.NewWriter(w)
	bw.WriteString(strconv.Itoa(tIdx))
	for _, it := range its {
		bw.WriteByte('\t')
		bw.WriteString(strconv.Itoa(it))
	}
	bw.WriteByte('\n')
	return bw.Flush()
}
