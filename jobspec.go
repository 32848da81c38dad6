package mash

import "strconv"

// resolveJobspec parses a %-prefixed jobspec per the glossary:
// %+, %% or bare % -> current (relevance 0); %- -> previous (relevance 1);
// %<N> -> job at position N. A non-%-prefixed argument is not a jobspec at
// all (kill/disown treat a bare integer as a pid), so ok is false.
func (sh *Shell) resolveJobspec(s string) (job *Job, ok bool) {
	if s == "" || s[0] != '%' {
		return nil, false
	}
	rest := s[1:]
	switch rest {
	case "", "+", "%":
		return sh.Jobs.ByRelevance(0), true
	case "-":
		return sh.Jobs.ByRelevance(1), true
	}
	if n, err := strconv.Atoi(rest); err == nil {
		return sh.Jobs.ByPos(n), true
	}
	return nil, true
}
