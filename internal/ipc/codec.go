package ipc

import "fmt"

// Encode marshals msg under kind and wraps it in an Envelope, ready for
// WriteFrame. Callers pass the concrete struct matching kind; a mismatch
// is a programming error and panics, the same contract protobuf-generated
// oneof setters have.
func Encode(kind Kind, msg any) []byte {
	var body []byte
	switch kind {
	case KindReqInit:
		body = marshalInit(nil, msg.(InitMsg))
	case KindReqEnd, KindRespEnd:
		body = marshalEnd(nil, msg.(EndMsg))
	case KindRespStatus:
		body = marshalStatus(nil, msg.(StatusMsg))
	case KindRespError:
		body = marshalError(nil, msg.(ErrorMsg))
	case KindReqDevices:
		body = nil
	case KindRespDevices:
		body = marshalDevicesResp(nil, msg.(DevicesResp))
	case KindReqOpenDevice:
		body = marshalOpenDevice(nil, msg.(OpenDeviceReq))
	case KindReqPartitions:
		body = nil
	case KindRespPartitions:
		body = marshalPartitionsResp(nil, msg.(PartitionsResp))
	case KindReqOpenPartition:
		body = marshalOpenPartition(nil, msg.(OpenPartitionReq))
	case KindReqReadDir:
		body = marshalReadDirReq(nil, msg.(ReadDirReq))
	case KindRespReadDir:
		body = marshalReadDirResp(nil, msg.(ReadDirResp))
	case KindReqGetAttr:
		body = marshalGetAttrReq(nil, msg.(GetAttrReq))
	case KindRespGetAttr:
		body = marshalGetAttrResp(nil, msg.(GetAttrResp))
	case KindReqReadFile:
		body = marshalReadFileReq(nil, msg.(ReadFileReq))
	case KindRespReadFile:
		body = marshalReadFileResp(nil, msg.(ReadFileResp))
	case KindReqReadSectors:
		body = marshalReadSectorsReq(nil, msg.(ReadSectorsReq))
	case KindRespReadSectors:
		body = marshalReadSectorsResp(nil, msg.(ReadSectorsResp))
	case KindReqSelectFiles:
		body = marshalSelectFilesReq(nil, msg.(SelectFilesReq))
	case KindRespSelectFiles:
		body = marshalSelectFilesResp(nil, msg.(SelectFilesResp))
	case KindReqNewFile:
		body = marshalNewFileReq(nil, msg.(NewFileReq))
	case KindReqWriteFileChunk:
		body = marshalWriteFileChunkReq(nil, msg.(WriteFileChunkReq))
	case KindReqEndFile:
		body = marshalEnd(nil, msg.(EndMsg))
	case KindReqWriteBitmapChunk:
		body = marshalWriteBitmapChunkReq(nil, msg.(WriteBitmapChunkReq))
	case KindReqMkFsHeader:
		body = marshalMkFsHeaderReq(nil, msg.(MkFsHeaderReq))
	case KindReqWriteSectors:
		body = marshalWriteSectorsReq(nil, msg.(WriteSectorsReq))
	case KindReqWipe:
		body = marshalWipeReq(nil, msg.(WipeReq))
	case KindReqUploadChunk:
		body = marshalUploadChunkReq(nil, msg.(UploadChunkReq))
	case KindReqPollAnalyze:
		body = marshalPollAnalyzeReq(nil, msg.(PollAnalyzeReq))
	case KindRespAnalyzeReport:
		body = marshalAnalyzeReportResp(nil, msg.(AnalyzeReportResp))
	case KindReqDownloadChunk:
		body = marshalDownloadChunkReq(nil, msg.(DownloadChunkReq))
	case KindRespDownloadChunk:
		body = marshalDownloadChunkResp(nil, msg.(DownloadChunkResp))
	case KindReqExecCmd:
		body = marshalExecCmdReq(nil, msg.(ExecCmdReq))
	case KindRespExecCmd:
		body = marshalExecCmdResp(nil, msg.(ExecCmdResp))
	case KindReqImgDisk:
		body = marshalImgDiskReq(nil, msg.(ImgDiskReq))
	case KindReqInitTransfer:
		body = marshalInitTransferReq(nil, msg.(InitTransferReq))
	case KindRespInitTransfer:
		body = marshalInitTransferResp(nil, msg.(InitTransferResp))
	case KindReqReport:
		body = marshalReportReq(nil, msg.(ReportReq))
	case KindRespReport:
		body = marshalReportResp(nil, msg.(ReportResp))
	case KindReqWipeDisk:
		body = marshalWipeDiskReq(nil, msg.(WipeDiskReq))
	default:
		panic(fmt.Sprintf("ipc: Encode: unhandled kind %d", kind))
	}
	return MarshalEnvelope(nil, Envelope{Kind: kind, Body: body})
}

// Decode unwraps an Envelope and decodes its body into the struct that
// kind identifies. The returned value must be type-asserted by the caller.
func Decode(frame []byte) (Kind, any, error) {
	env, err := UnmarshalEnvelope(frame)
	if err != nil {
		return KindUnknown, nil, err
	}
	var (
		v   any
		derr error
	)
	switch env.Kind {
	case KindReqInit:
		v, derr = unmarshalInit(env.Body)
	case KindReqEnd, KindRespEnd:
		v, derr = unmarshalEnd(env.Body)
	case KindRespStatus:
		v, derr = unmarshalStatus(env.Body)
	case KindRespError:
		v, derr = unmarshalError(env.Body)
	case KindReqDevices:
		v, derr = struct{}{}, nil
	case KindRespDevices:
		v, derr = unmarshalDevicesResp(env.Body)
	case KindReqOpenDevice:
		v, derr = unmarshalOpenDevice(env.Body)
	case KindReqPartitions:
		v, derr = struct{}{}, nil
	case KindRespPartitions:
		v, derr = unmarshalPartitionsResp(env.Body)
	case KindReqOpenPartition:
		v, derr = unmarshalOpenPartition(env.Body)
	case KindReqReadDir:
		v, derr = unmarshalReadDirReq(env.Body)
	case KindRespReadDir:
		v, derr = unmarshalReadDirResp(env.Body)
	case KindReqGetAttr:
		v, derr = unmarshalGetAttrReq(env.Body)
	case KindRespGetAttr:
		v, derr = unmarshalGetAttrResp(env.Body)
	case KindReqReadFile:
		v, derr = unmarshalReadFileReq(env.Body)
	case KindRespReadFile:
		v, derr = unmarshalReadFileResp(env.Body)
	case KindReqReadSectors:
		v, derr = unmarshalReadSectorsReq(env.Body)
	case KindRespReadSectors:
		v, derr = unmarshalReadSectorsResp(env.Body)
	case KindReqSelectFiles:
		v, derr = unmarshalSelectFilesReq(env.Body)
	case KindRespSelectFiles:
		v, derr = unmarshalSelectFilesResp(env.Body)
	case KindReqNewFile:
		v, derr = unmarshalNewFileReq(env.Body)
	case KindReqWriteFileChunk:
		v, derr = unmarshalWriteFileChunkReq(env.Body)
	case KindReqEndFile:
		v, derr = unmarshalEnd(env.Body)
	case KindReqWriteBitmapChunk:
		v, derr = unmarshalWriteBitmapChunkReq(env.Body)
	case KindReqMkFsHeader:
		v, derr = unmarshalMkFsHeaderReq(env.Body)
	case KindReqWriteSectors:
		v, derr = unmarshalWriteSectorsReq(env.Body)
	case KindReqWipe:
		v, derr = unmarshalWipeReq(env.Body)
	case KindReqUploadChunk:
		v, derr = unmarshalUploadChunkReq(env.Body)
	case KindReqPollAnalyze:
		v, derr = unmarshalPollAnalyzeReq(env.Body)
	case KindRespAnalyzeReport:
		v, derr = unmarshalAnalyzeReportResp(env.Body)
	case KindReqDownloadChunk:
		v, derr = unmarshalDownloadChunkReq(env.Body)
	case KindRespDownloadChunk:
		v, derr = unmarshalDownloadChunkResp(env.Body)
	case KindReqExecCmd:
		v, derr = unmarshalExecCmdReq(env.Body)
	case KindRespExecCmd:
		v, derr = unmarshalExecCmdResp(env.Body)
	case KindReqImgDisk:
		v, derr = unmarshalImgDiskReq(env.Body)
	case KindReqInitTransfer:
		v, derr = unmarshalInitTransferReq(env.Body)
	case KindRespInitTransfer:
		v, derr = unmarshalInitTransferResp(env.Body)
	case KindReqReport:
		v, derr = unmarshalReportReq(env.Body)
	case KindRespReport:
		v, derr = unmarshalReportResp(env.Body)
	case KindReqWipeDisk:
		v, derr = unmarshalWipeDiskReq(env.Body)
	default:
		return env.Kind, nil, fmt.Errorf("ipc: Decode: unhandled kind %d", env.Kind)
	}
	return env.Kind, v, derr
}
