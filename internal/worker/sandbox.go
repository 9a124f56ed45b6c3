package worker

// Transition performs the one-time, irreversible move out of the
// unsandboxed Init phase (spec §3: "a worker surrenders ambient authority
// once it has everything it needs and before it processes any
// untrusted input"). On Linux this installs a seccomp-bpf syscall filter;
// elsewhere it is a no-op so development builds still run.
//
// allowedSyscalls is a denylist-by-default allow-list: any syscall number
// not in the set triggers SECCOMP_RET_KILL_PROCESS.
func Transition(allowedSyscalls []uintptr) error {
	return transition(allowedSyscalls)
}
