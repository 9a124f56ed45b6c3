package usbsas

import "github.com/usbsas/usbsas-core/internal/constants"

// Re-export the handful of constants a cmd/ binary or external caller
// needs without importing internal/constants directly.
const (
	MaxFramePayload       = constants.MaxFramePayload
	FrameLengthPrefixSize = constants.FrameLengthPrefixSize

	DefaultFileChunkSize   = constants.DefaultFileChunkSize
	DefaultBitmapChunkSize = constants.DefaultBitmapChunkSize
	DefaultSectorSize      = constants.DefaultSectorSize

	DefaultAnalyzeTimeout  = constants.DefaultAnalyzeTimeout
	DefaultUploadTimeout   = constants.DefaultUploadTimeout
	DefaultDownloadTimeout = constants.DefaultDownloadTimeout
	DefaultCommandTimeout  = constants.DefaultCommandTimeout

	WorkerGraceShutdown = constants.WorkerGraceShutdown
)
