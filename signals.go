package mash

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// installSignalHandlers wires SIGINT and SIGTSTP to buffered, non-blocking
// channel sends rather than mutating the job table from within the signal
// goroutine directly. The source shell's handler touches jobs_list inline,
// which spec §9 flags as unsafe; here the REPL drains sh.sigint/sh.sigtstp
// at the top of every loop iteration (see pollSignals) and only then calls
// JobTable.EndCurrent/StopCurrent.
func (sh *Shell) installSignalHandlers() {
	raw := make(chan os.Signal, 4)
	signal.Notify(raw, syscall.SIGINT, syscall.SIGTSTP)
	go func() {
		for sig := range raw {
			switch sig {
			case syscall.SIGINT:
				select {
				case sh.sigint <- struct{}{}:
				default:
				}
			case syscall.SIGTSTP:
				select {
				case sh.sigtstp <- struct{}{}:
				default:
				}
			}
		}
	}()
}

// pollSignals drains any pending SIGINT/SIGTSTP flags and applies them to
// the job table. Called once at the top of the REPL loop.
func (sh *Shell) pollSignals() {
	for {
		select {
		case <-sh.sigint:
			if j := sh.Jobs.EndCurrent(); j != nil {
				sh.trace("SIGINT ended job [%d]", j.Pos)
			}
		case <-sh.sigtstp:
			if j := sh.Jobs.StopCurrent(); j != nil {
				fmt.Fprintf(os.Stderr, "\n[%d]+ Stopped %s\n", j.Pos, j.Command)
			}
		default:
			return
		}
	}
}
