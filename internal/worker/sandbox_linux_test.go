//go:build linux

package worker

import (
	"testing"

	"golang.org/x/sys/unix"
)

// TestBuildFilterShape checks the BPF program buildFilter assembles
// without installing it: actually calling Transition here would apply an
// irreversible seccomp filter to the test binary's own process, which is
// exactly the kind of destructive action a unit test must not do. A
// worker binary's own end-to-end smoke test is the right place to assert
// the installed filter behaves correctly, in a disposable child process.
func TestBuildFilterShape(t *testing.T) {
	allowed := []uintptr{unix.SYS_READ, unix.SYS_WRITE, unix.SYS_EXIT_GROUP}
	prog := buildFilter(allowed)

	// load instruction + 2 per allowed syscall + trailing kill.
	wantLen := 1 + 2*len(allowed) + 1
	if len(prog) != wantLen {
		t.Fatalf("len(prog) = %d, want %d", len(prog), wantLen)
	}

	last := prog[len(prog)-1]
	if last.Code != unix.BPF_RET|unix.BPF_K || last.K != unix.SECCOMP_RET_KILL_PROCESS {
		t.Errorf("last instruction = %+v, want KILL_PROCESS return", last)
	}

	for i, sysno := range allowed {
		check := prog[1+2*i]
		ret := prog[1+2*i+1]
		if check.Code != unix.BPF_JMP|unix.BPF_JEQ|unix.BPF_K || check.K != uint32(sysno) {
			t.Errorf("check[%d] = %+v, want JEQ on syscall %d", i, check, sysno)
		}
		if ret.Code != unix.BPF_RET|unix.BPF_K || ret.K != unix.SECCOMP_RET_ALLOW {
			t.Errorf("ret[%d] = %+v, want ALLOW return", i, ret)
		}
	}
}
