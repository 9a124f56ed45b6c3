//go:build linux

package worker

import "golang.org/x/sys/unix"

// coreSyscalls covers the operations every worker needs regardless of
// role: reading/writing its pipe pair and exiting (spec §3 "a worker
// surrenders ambient authority... the sandboxed phase only needs enough
// syscalls to serve requests over its two pipes").
var coreSyscalls = []uintptr{
	unix.SYS_READ,
	unix.SYS_WRITE,
	unix.SYS_CLOSE,
	unix.SYS_EXIT,
	unix.SYS_EXIT_GROUP,
	unix.SYS_RT_SIGRETURN,
	unix.SYS_RT_SIGACTION,
	unix.SYS_RT_SIGPROCMASK,
	unix.SYS_MMAP,
	unix.SYS_MUNMAP,
	unix.SYS_MADVISE,
	unix.SYS_BRK,
	unix.SYS_FUTEX,
	unix.SYS_CLOCK_GETTIME,
	unix.SYS_NANOSLEEP,
	unix.SYS_SCHED_YIELD,
	unix.SYS_FSTAT,
	unix.SYS_LSEEK,
	unix.SYS_GETRANDOM,
}

// FileSyscalls extends coreSyscalls with the filesystem calls device_reader
// and fs_builder need to walk a mounted partition and read/write sectors
// (spec §4.4: device_reader/fs_builder both operate on an already-opened
// block device, not the filesystem namespace at large, but still need
// openat/pread on it).
func FileSyscalls() []uintptr {
	return append(append([]uintptr{}, coreSyscalls...),
		unix.SYS_OPENAT,
		unix.SYS_PREAD64,
		unix.SYS_PWRITE64,
		unix.SYS_FSYNC,
		unix.SYS_IOCTL,
		unix.SYS_STATX,
		unix.SYS_GETDENTS64,
	)
}

// NetSyscalls extends coreSyscalls with the socket calls net_io and
// analyzer need to speak HTTP to the configured upload/download/antivirus
// endpoints (spec §4.7).
func NetSyscalls() []uintptr {
	return append(append([]uintptr{}, coreSyscalls...),
		unix.SYS_SOCKET,
		unix.SYS_CONNECT,
		unix.SYS_SENDTO,
		unix.SYS_RECVFROM,
		unix.SYS_SETSOCKOPT,
		unix.SYS_GETSOCKOPT,
		unix.SYS_POLL,
		unix.SYS_EPOLL_CREATE1,
		unix.SYS_EPOLL_CTL,
		unix.SYS_EPOLL_WAIT,
		unix.SYS_OPENAT,
		unix.SYS_PREAD64,
		unix.SYS_GETPEERNAME,
		unix.SYS_GETSOCKNAME,
	)
}

// ExecSyscalls extends coreSyscalls with the process-creation calls
// cmd_exec needs to run its configured binary (spec §4.4.1 Stage C/D).
func ExecSyscalls() []uintptr {
	return append(append([]uintptr{}, coreSyscalls...),
		unix.SYS_CLONE,
		unix.SYS_EXECVE,
		unix.SYS_WAIT4,
		unix.SYS_PIPE2,
		unix.SYS_DUP2,
		unix.SYS_OPENAT,
		unix.SYS_FCNTL,
	)
}

// USBSyscalls extends coreSyscalls with the device-enumeration calls
// usb_dev needs to stat the mock/real device paths it reports.
func USBSyscalls() []uintptr {
	return append(append([]uintptr{}, coreSyscalls...),
		unix.SYS_OPENAT,
		unix.SYS_STATX,
		unix.SYS_IOCTL,
	)
}
