//go:build linux

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
	"runtime"

	perf "github.com/hodgesds/perf-utils"
)

// countInstructions runs fn with a hardware instruction counter on the calling thread. When
// the counter cannot be opened fn still runs and the count is zero.
func countInstructions(fn func() error) (count uint64, err error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	var (
		ran  bool
		pv   *perf.ProfileValue
		perr error
	)
	pv, perr = perf.CPUInstructions(func() error {
		ran = true
		err = fn()
		return err
	})
	if !ran {
		fmt.Printf("perf counters unavailable: %v\n", perr)
		return 0, fn()
	}
	if err != nil {
		return
	}
	if perr != nil {
		return 0, perr
	}
	return pv.Value, nil
}
