//go:build linux

package worker

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// transition installs a seccomp-bpf filter that allows only the given
// syscall numbers and kills the process on anything else. The filter is
// architecture-agnostic in the sense that it never inspects arguments,
// only the syscall number at seccomp_data offset 0 — enough for the
// coarse per-worker allow-lists this package uses (spec §3's "syscall
// filtering" sandbox kind), without the complexity of a full arg-aware
// filter a general-purpose sandbox would need.
func transition(allowedSyscalls []uintptr) error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("worker: sandbox: set no_new_privs: %w", err)
	}

	prog := buildFilter(allowedSyscalls)
	fprog := unix.SockFprog{
		Len:    uint16(len(prog)),
		Filter: &prog[0],
	}
	_, _, errno := unix.Syscall(unix.SYS_PRCTL, unix.PR_SET_SECCOMP, unix.SECCOMP_MODE_FILTER, uintptr(unsafe.Pointer(&fprog)))
	if errno != 0 {
		return fmt.Errorf("worker: sandbox: install seccomp filter: %w", errno)
	}
	return nil
}

// buildFilter assembles a classic BPF program: load the syscall number,
// compare against each allowed value, return ALLOW on match, and fall
// through to KILL_PROCESS. One JEQ/RET pair per allowed syscall keeps the
// program trivial to read and well under BPF_MAXINSNS.
func buildFilter(allowed []uintptr) []unix.SockFilter {
	prog := []unix.SockFilter{
		// A = seccomp_data.nr
		{Code: unix.BPF_LD | unix.BPF_W | unix.BPF_ABS, K: 0},
	}
	for _, sysno := range allowed {
		// Jt=0 falls through to the ALLOW return below; Jf=1 skips it to
		// reach the next syscall's check.
		prog = append(prog, unix.SockFilter{
			Code: unix.BPF_JMP | unix.BPF_JEQ | unix.BPF_K,
			Jt:   0,
			Jf:   1,
			K:    uint32(sysno),
		})
		prog = append(prog, unix.SockFilter{
			Code: unix.BPF_RET | unix.BPF_K,
			K:    unix.SECCOMP_RET_ALLOW,
		})
	}
	prog = append(prog, unix.SockFilter{
		Code: unix.BPF_RET | unix.BPF_K,
		K:    unix.SECCOMP_RET_KILL_PROCESS,
	})
	return prog
}
