//go:build !linux

package worker

// transition is a no-op outside Linux: seccomp-bpf is Linux-specific, and
// development/test builds on other platforms run unsandboxed.
func transition(_ []uintptr) error { return nil }
