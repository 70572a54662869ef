package NavierStokes

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/notargets/goibm/InputParameters"
	"github.com/notargets/goibm/utils"
)

// Simulation drives a solver through the time steps of a case and writes its outputs:
// forces-<start>.txt, iterations-<start>.txt and restart-<step>.gob in OutDir
type Simulation struct {
	comm   *utils.Comm
	Solver Solver
	Case   *InputParameters.InputParameters
	OutDir string
	// OnStep is called by rank 0 after every step
	OnStep func(tIdx int, t float64, forces [][]float64)
}

func NewSimulation(comm *utils.Comm, ip *InputParameters.InputParameters, outDir string,
	opts Options) (sim *Simulation, err error) {
	sim = &Simulation{
		comm:   comm,
		Case:   ip,
		OutDir: outDir,
	}
	sim.Solver, err = NewSolver(comm, ip, opts)
	return
}

func RestartFile(dir string, step int) string {
	return filepath.Join(dir, fmt.Sprintf("restart-%d.gob", step))
}

// Run initializes the solver, continues from the restart of StartStep when it is positive,
// and advances until time index Nt (collective)
func (sim *Simulation) Run() (err error) {
	var (
		s       = sim.Solver
		p       = sim.Case.Parameters
		rank0   = sim.comm.Rank() == 0
		elapsed time.Duration
		steps   int
	)
	if err = s.Initialize(); err != nil {
		return
	}
	if p.StartStep > 0 {
		if err = sim.readRestart(p.StartStep); err != nil {
			return
		}
	}
	var forcesFile, itersFile *os.File
	if rank0 {
		if err = os.MkdirAll(sim.OutDir, 0755); err == nil {
			if forcesFile, err = os.Create(filepath.Join(sim.OutDir, fmt.Sprintf("forces-%d.txt", p.StartStep))); err == nil {
				itersFile, err = os.Create(filepath.Join(sim.OutDir, fmt.Sprintf("iterations-%d.txt", p.StartStep)))
			}
		}
		defer func() {
			for _, fp := range []*os.File{forcesFile, itersFile} {
				if fp == nil {
					continue
				}
				if cerr := fp.Close(); err == nil {
					err = cerr
				}
			}
		}()
	}
	if err = bcastError(sim.comm, err, "creating outputs"); err != nil {
		return
	}
	s.PrintHeader()
	for s.TimeIndex() < p.Nt {
		start := time.Now()
		if err = s.Advance(); err != nil {
			return
		}
		elapsed += time.Since(start)
		steps++
		tIdx := s.TimeIndex()
		if rank0 {
			if s.Forces() != nil {
				err = WriteForces(forcesFile, s.Time(), s.Forces())
			}
			if err == nil {
				err = WriteIterations(itersFile, tIdx, s.Iterations())
			}
			if err != nil {
				return
			}
			if sim.OnStep != nil {
				sim.OnStep(tIdx, s.Time(), s.Forces())
			}
		}
		if steps == 1 || tIdx == p.Nt || (p.NSave > 0 && tIdx%p.NSave == 0) {
			s.PrintUpdate()
		}
		if p.NRestart > 0 && tIdx%p.NRestart == 0 {
			if err = sim.writeRestart(tIdx); err != nil {
				return
			}
		}
	}
	s.PrintFinal(elapsed, steps)
	return s.Finalize()
}

func (sim *Simulation) writeRestart(step int) (err error) {
	var fp *os.File
	if sim.comm.Rank() == 0 {
		fp, err = os.Create(RestartFile(sim.OutDir, step))
	}
	if err = bcastError(sim.comm, err, "creating restart"); err != nil {
		return
	}
	err = sim.Solver.WriteRestart(fp)
	if fp != nil {
		if cerr := fp.Close(); err == nil {
			err = cerr
		}
	}
	return
}

func (sim *Simulation) readRestart(step int) (err error) {
	var fp *os.File
	if sim.comm.Rank() == 0 {
		fp, err = os.Open(RestartFile(sim.OutDir, step))
	}
	if err = bcastError(sim.comm, err, "opening restart"); err != nil {
		return
	}
	if fp != nil {
		defer fp.Close()
	}
	return sim.Solver.ReadRestart(fp)
}
