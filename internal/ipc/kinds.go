package ipc

// Kind tags the concrete payload an Envelope carries, playing the role a
// oneof field number plays in a real protobuf schema (spec §4.1: "one
// oneof per direction per worker"). Request kinds and response kinds share
// one numbering space, so every Kind names exactly one payload shape and
// Decode always picks the shape from the Kind; UnmarshalEnvelope itself
// does not check which direction a Kind belongs to.
type Kind uint32

const (
	KindUnknown Kind = iota

	// Requests common to every worker.
	KindReqInit
	KindReqEnd

	// device_reader
	KindReqDevices
	KindRespDevices
	KindReqOpenDevice
	KindReqPartitions
	KindRespPartitions
	KindReqOpenPartition
	KindReqReadDir
	KindRespReadDir
	KindReqGetAttr
	KindRespGetAttr
	KindReqReadSectors
	KindRespReadSectors
	KindReqReadFile
	KindRespReadFile

	// filter / fs_builder
	KindReqSelectFiles
	KindRespSelectFiles
	KindReqNewFile
	KindReqWriteFileChunk
	KindReqEndFile
	KindReqWriteBitmapChunk
	KindReqMkFsHeader

	// block_writer
	KindReqWriteSectors
	KindReqWipe

	// net/analyzer
	KindReqUploadChunk
	KindReqPollAnalyze
	KindRespAnalyzeReport
	KindReqDownloadChunk
	KindRespDownloadChunk

	// cmd_exec
	KindReqExecCmd
	KindRespExecCmd

	// usb_dev (img_disk control)
	KindReqImgDisk

	// Responses common to every worker (spec §4.2: "four standard variants").
	KindRespStatus
	KindRespEnd
	KindRespError

	// Frontend-facing requests with no internal-worker equivalent: the
	// frontend speaks this same framing directly to the supervisor over
	// its Unix socket (spec §6), but InitTransfer/Report name the
	// transfer as a whole rather than one worker's request.
	KindReqInitTransfer
	KindRespInitTransfer
	KindReqReport
	KindRespReport

	// KindReqWipeDisk is the frontend's standalone wipe request (spec
	// §4.4.3): unlike KindReqWipe, which the supervisor sends to
	// block_writer mid-choreography with a pattern byte and pass count,
	// this names the destination itself since no transfer is in flight.
	KindReqWipeDisk
)
