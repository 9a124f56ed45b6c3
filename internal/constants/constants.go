package constants

import "time"

// Frame and payload ceilings (spec §4.1).
const (
	// MaxFramePayload bounds a single IPC message so a write of a message
	// is atomic from the application's viewpoint (spec §4.1).
	MaxFramePayload = 1 << 20 // 1 MiB

	// FrameLengthPrefixSize is the width of the length-delimited frame
	// header: a 4-byte little-endian unsigned length.
	FrameLengthPrefixSize = 4
)

// Default pipeline chunk sizes.
const (
	// DefaultFileChunkSize is the chunk size used when streaming a file's
	// content between the device/filesystem reader and the tar writer.
	DefaultFileChunkSize = 256 * 1024

	// DefaultBitmapChunkSize is the chunk size used when streaming the
	// dirty-sector bitmap from the filesystem builder to the block writer
	// (spec §4.5).
	DefaultBitmapChunkSize = 64 * 1024

	// DefaultSectorSize is the logical sector size assumed when no
	// device-reported block size is available.
	DefaultSectorSize = 512
)

// Default per-stage timeouts (spec §5 "Timeouts").
const (
	DefaultAnalyzeTimeout  = 5 * time.Minute
	DefaultUploadTimeout   = 10 * time.Minute
	DefaultDownloadTimeout = 10 * time.Minute
	DefaultCommandTimeout  = 5 * time.Minute

	// DefaultAnalyzePollInterval is how often the analyser worker polls
	// the antivirus server for a verdict.
	DefaultAnalyzePollInterval = 2 * time.Second

	// WorkerGraceShutdown bounds how long the supervisor waits for a
	// worker to exit in response to End before sending a kill signal.
	WorkerGraceShutdown = 5 * time.Second
)

// Well-known environment variables (spec §6).
const (
	EnvBinPath    = "USBSAS_BIN_PATH"
	EnvConfigPath = "USBSAS_CONFIG"
	EnvMockInDev  = "USBSAS_MOCK_IN_DEV"
	EnvMockOutDev = "USBSAS_MOCK_OUT_DEV"
)
