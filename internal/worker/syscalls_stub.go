//go:build !linux

package worker

// FileSyscalls, NetSyscalls, ExecSyscalls and USBSyscalls are nil outside
// Linux: transition is a no-op there, so the allow-list content doesn't
// matter, but worker binaries still call these so they build everywhere.
func FileSyscalls() []uintptr { return nil }
func NetSyscalls() []uintptr  { return nil }
func ExecSyscalls() []uintptr { return nil }
func USBSyscalls() []uintptr  { return nil }
