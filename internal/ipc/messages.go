package ipc

import "google.golang.org/protobuf/encoding/protowire"

// Every message type below follows the same shape as the teacher's
// uapi/marshal.go: a plain struct, a marshalX(buf, v) []byte that appends
// the wire encoding, and an unmarshalX(buf) (v, error) that decodes one
// full message from a frame payload already extracted by ReadFrame.

// --- Common to every worker (spec §4.2) ---

// StatusMsg reports transfer progress; a worker may send any number of
// these before its final response.
type StatusMsg struct {
	Kind    string
	Current uint64
	Total   uint64
}

func marshalStatus(buf []byte, v StatusMsg) []byte {
	buf = appendString(buf, 1, v.Kind)
	buf = appendVarint(buf, 2, v.Current)
	buf = appendVarint(buf, 3, v.Total)
	return buf
}

func unmarshalStatus(buf []byte) (StatusMsg, error) {
	var v StatusMsg
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			s, n, err := consumeString(b)
			v.Kind = s
			return n, err
		case 2:
			x, n, err := consumeVarint(b)
			v.Current = x
			return n, err
		case 3:
			x, n, err := consumeVarint(b)
			v.Total = x
			return n, err
		}
		return -1, nil
	})
	return v, err
}

// ErrorMsg is the terminal error response every worker may send instead
// of its normal success response (spec §4.2, §5).
type ErrorMsg struct {
	Code    string
	Message string
}

func marshalError(buf []byte, v ErrorMsg) []byte {
	buf = appendString(buf, 1, v.Code)
	buf = appendString(buf, 2, v.Message)
	return buf
}

func unmarshalError(buf []byte) (ErrorMsg, error) {
	var v ErrorMsg
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			s, n, err := consumeString(b)
			v.Code = s
			return n, err
		case 2:
			s, n, err := consumeString(b)
			v.Message = s
			return n, err
		}
		return -1, nil
	})
	return v, err
}

// EndMsg carries no fields; it is used both as the shutdown request every
// worker accepts and as the acknowledgement it sends back.
type EndMsg struct{}

func marshalEnd(buf []byte, _ EndMsg) []byte   { return buf }
func unmarshalEnd(buf []byte) (EndMsg, error)  { return EndMsg{}, decodeFields(buf, skipAll) }
func skipAll(num protowire.Number, typ protowire.Type, b []byte) (int, error) { return -1, nil }

// InitMsg is the first request sent to a freshly spawned worker, naming
// the transfer it will serve (spec §3: workers are stateless between
// transfers and are told which one they're handling).
type InitMsg struct {
	TransferID string
	Worker     string
}

func marshalInit(buf []byte, v InitMsg) []byte {
	buf = appendString(buf, 1, v.TransferID)
	buf = appendString(buf, 2, v.Worker)
	return buf
}

func unmarshalInit(buf []byte) (InitMsg, error) {
	var v InitMsg
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			s, n, err := consumeString(b)
			v.TransferID = s
			return n, err
		case 2:
			s, n, err := consumeString(b)
			v.Worker = s
			return n, err
		}
		return -1, nil
	})
	return v, err
}

// --- device_reader ---

type DeviceInfo struct {
	ID        string
	Vendor    string
	Model     string
	Serial    string
	SizeBytes uint64
	Removable bool
}

func marshalDeviceInfo(v DeviceInfo) []byte {
	var buf []byte
	buf = appendString(buf, 1, v.ID)
	buf = appendString(buf, 2, v.Vendor)
	buf = appendString(buf, 3, v.Model)
	buf = appendString(buf, 4, v.Serial)
	buf = appendVarint(buf, 5, v.SizeBytes)
	buf = appendBool(buf, 6, v.Removable)
	return buf
}

func unmarshalDeviceInfo(buf []byte) (DeviceInfo, error) {
	var v DeviceInfo
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			s, n, err := consumeString(b)
			v.ID = s
			return n, err
		case 2:
			s, n, err := consumeString(b)
			v.Vendor = s
			return n, err
		case 3:
			s, n, err := consumeString(b)
			v.Model = s
			return n, err
		case 4:
			s, n, err := consumeString(b)
			v.Serial = s
			return n, err
		case 5:
			x, n, err := consumeVarint(b)
			v.SizeBytes = x
			return n, err
		case 6:
			x, n, err := consumeVarint(b)
			v.Removable = x != 0
			return n, err
		}
		return -1, nil
	})
	return v, err
}

// DevicesResp lists every removable device the usb_dev (or device_reader)
// worker found attached when handed a Devices request (spec §4.4: usb_dev
// discovery).
type DevicesResp struct {
	Devices []DeviceInfo
}

func marshalDevicesResp(buf []byte, v DevicesResp) []byte {
	for _, d := range v.Devices {
		buf = appendSubmessage(buf, 1, marshalDeviceInfo(d))
	}
	return buf
}

func unmarshalDevicesResp(buf []byte) (DevicesResp, error) {
	var v DevicesResp
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		sub, n, err := consumeBytes(b)
		if err != nil {
			return 0, err
		}
		d, err := unmarshalDeviceInfo(sub)
		if err != nil {
			return 0, err
		}
		v.Devices = append(v.Devices, d)
		return n, nil
	})
	return v, err
}

// OpenDeviceReq selects which previously enumerated device subsequent
// requests (Partitions, ReadSectors, ...) operate against.
type OpenDeviceReq struct {
	DeviceID string
}

func marshalOpenDevice(buf []byte, v OpenDeviceReq) []byte { return appendString(buf, 1, v.DeviceID) }

func unmarshalOpenDevice(buf []byte) (OpenDeviceReq, error) {
	var v OpenDeviceReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		s, n, err := consumeString(b)
		v.DeviceID = s
		return n, err
	})
	return v, err
}

type PartitionInfo struct {
	Index     uint32
	FsType    string
	SizeBytes uint64
}

func marshalPartitionInfo(v PartitionInfo) []byte {
	var buf []byte
	buf = appendVarint(buf, 1, uint64(v.Index))
	buf = appendString(buf, 2, v.FsType)
	buf = appendVarint(buf, 3, v.SizeBytes)
	return buf
}

func unmarshalPartitionInfo(buf []byte) (PartitionInfo, error) {
	var v PartitionInfo
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			x, n, err := consumeVarint(b)
			v.Index = uint32(x)
			return n, err
		case 2:
			s, n, err := consumeString(b)
			v.FsType = s
			return n, err
		case 3:
			x, n, err := consumeVarint(b)
			v.SizeBytes = x
			return n, err
		}
		return -1, nil
	})
	return v, err
}

type PartitionsResp struct {
	Partitions []PartitionInfo
}

func marshalPartitionsResp(buf []byte, v PartitionsResp) []byte {
	for _, p := range v.Partitions {
		buf = appendSubmessage(buf, 1, marshalPartitionInfo(p))
	}
	return buf
}

func unmarshalPartitionsResp(buf []byte) (PartitionsResp, error) {
	var v PartitionsResp
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		sub, n, err := consumeBytes(b)
		if err != nil {
			return 0, err
		}
		p, err := unmarshalPartitionInfo(sub)
		if err != nil {
			return 0, err
		}
		v.Partitions = append(v.Partitions, p)
		return n, nil
	})
	return v, err
}

// OpenPartitionReq selects a partition index found by a previous
// Partitions request.
type OpenPartitionReq struct {
	Index uint32
}

func marshalOpenPartition(buf []byte, v OpenPartitionReq) []byte {
	return appendVarint(buf, 1, uint64(v.Index))
}

func unmarshalOpenPartition(buf []byte) (OpenPartitionReq, error) {
	var v OpenPartitionReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		x, n, err := consumeVarint(b)
		v.Index = uint32(x)
		return n, err
	})
	return v, err
}

type ReadDirReq struct {
	Path string
}

func marshalReadDirReq(buf []byte, v ReadDirReq) []byte { return appendString(buf, 1, v.Path) }

func unmarshalReadDirReq(buf []byte) (ReadDirReq, error) {
	var v ReadDirReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		s, n, err := consumeString(b)
		v.Path = s
		return n, err
	})
	return v, err
}

// FileEntry describes one directory entry as reported by the
// device_reader's filesystem walk (spec §4.4).
type FileEntry struct {
	Name        string
	IsDir       bool
	SizeBytes   uint64
	ModTimeUnix int64
}

func marshalFileEntry(v FileEntry) []byte {
	var buf []byte
	buf = appendString(buf, 1, v.Name)
	buf = appendBool(buf, 2, v.IsDir)
	buf = appendVarint(buf, 3, v.SizeBytes)
	buf = appendVarint(buf, 4, uint64(v.ModTimeUnix))
	return buf
}

func unmarshalFileEntry(buf []byte) (FileEntry, error) {
	var v FileEntry
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			s, n, err := consumeString(b)
			v.Name = s
			return n, err
		case 2:
			x, n, err := consumeVarint(b)
			v.IsDir = x != 0
			return n, err
		case 3:
			x, n, err := consumeVarint(b)
			v.SizeBytes = x
			return n, err
		case 4:
			x, n, err := consumeVarint(b)
			v.ModTimeUnix = int64(x)
			return n, err
		}
		return -1, nil
	})
	return v, err
}

type ReadDirResp struct {
	Entries []FileEntry
}

func marshalReadDirResp(buf []byte, v ReadDirResp) []byte {
	for _, e := range v.Entries {
		buf = appendSubmessage(buf, 1, marshalFileEntry(e))
	}
	return buf
}

func unmarshalReadDirResp(buf []byte) (ReadDirResp, error) {
	var v ReadDirResp
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		sub, n, err := consumeBytes(b)
		if err != nil {
			return 0, err
		}
		e, err := unmarshalFileEntry(sub)
		if err != nil {
			return 0, err
		}
		v.Entries = append(v.Entries, e)
		return n, nil
	})
	return v, err
}

type GetAttrReq struct{ Path string }

func marshalGetAttrReq(buf []byte, v GetAttrReq) []byte { return appendString(buf, 1, v.Path) }

func unmarshalGetAttrReq(buf []byte) (GetAttrReq, error) {
	var v GetAttrReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		s, n, err := consumeString(b)
		v.Path = s
		return n, err
	})
	return v, err
}

type GetAttrResp struct{ Entry FileEntry }

func marshalGetAttrResp(buf []byte, v GetAttrResp) []byte {
	return appendSubmessage(buf, 1, marshalFileEntry(v.Entry))
}

func unmarshalGetAttrResp(buf []byte) (GetAttrResp, error) {
	var v GetAttrResp
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		sub, n, err := consumeBytes(b)
		if err != nil {
			return 0, err
		}
		e, err := unmarshalFileEntry(sub)
		v.Entry = e
		return n, err
	})
	return v, err
}

// ReadSectorsReq/Resp move raw sectors between device_reader and its
// caller (used by usb_dev->fs_builder during a USB->USB copy and by
// usb_dev->img_disk during ImgDisk).
type ReadSectorsReq struct {
	Offset uint64
	Count  uint32
}

func marshalReadSectorsReq(buf []byte, v ReadSectorsReq) []byte {
	buf = appendVarint(buf, 1, v.Offset)
	buf = appendVarint(buf, 2, uint64(v.Count))
	return buf
}

func unmarshalReadSectorsReq(buf []byte) (ReadSectorsReq, error) {
	var v ReadSectorsReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			x, n, err := consumeVarint(b)
			v.Offset = x
			return n, err
		case 2:
			x, n, err := consumeVarint(b)
			v.Count = uint32(x)
			return n, err
		}
		return -1, nil
	})
	return v, err
}

type ReadSectorsResp struct{ Data []byte }

func marshalReadSectorsResp(buf []byte, v ReadSectorsResp) []byte { return appendBytes(buf, 1, v.Data) }

func unmarshalReadSectorsResp(buf []byte) (ReadSectorsResp, error) {
	var v ReadSectorsResp
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		d, n, err := consumeBytes(b)
		v.Data = d
		return n, err
	})
	return v, err
}

// --- filter / fs_builder ---

// SelectFilesReq carries the paths a user picked in the file browser,
// which the filter stage (spec §4.6) partitions into accepted/filtered.
type SelectFilesReq struct {
	Paths []string
}

func marshalSelectFilesReq(buf []byte, v SelectFilesReq) []byte {
	for _, p := range v.Paths {
		buf = appendString(buf, 1, p)
	}
	return buf
}

func unmarshalSelectFilesReq(buf []byte) (SelectFilesReq, error) {
	var v SelectFilesReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		s, n, err := consumeString(b)
		v.Paths = append(v.Paths, s)
		return n, err
	})
	return v, err
}

type SelectFilesResp struct {
	Accepted []string
	Filtered []string
	Rejected []string
}

func marshalSelectFilesResp(buf []byte, v SelectFilesResp) []byte {
	for _, p := range v.Accepted {
		buf = appendString(buf, 1, p)
	}
	for _, p := range v.Filtered {
		buf = appendString(buf, 2, p)
	}
	for _, p := range v.Rejected {
		buf = appendString(buf, 3, p)
	}
	return buf
}

func unmarshalSelectFilesResp(buf []byte) (SelectFilesResp, error) {
	var v SelectFilesResp
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			s, n, err := consumeString(b)
			v.Accepted = append(v.Accepted, s)
			return n, err
		case 2:
			s, n, err := consumeString(b)
			v.Filtered = append(v.Filtered, s)
			return n, err
		case 3:
			s, n, err := consumeString(b)
			v.Rejected = append(v.Rejected, s)
			return n, err
		}
		return -1, nil
	})
	return v, err
}

type NewFileReq struct {
	Path      string
	SizeBytes uint64
}

func marshalNewFileReq(buf []byte, v NewFileReq) []byte {
	buf = appendString(buf, 1, v.Path)
	buf = appendVarint(buf, 2, v.SizeBytes)
	return buf
}

func unmarshalNewFileReq(buf []byte) (NewFileReq, error) {
	var v NewFileReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			s, n, err := consumeString(b)
			v.Path = s
			return n, err
		case 2:
			x, n, err := consumeVarint(b)
			v.SizeBytes = x
			return n, err
		}
		return -1, nil
	})
	return v, err
}

type WriteFileChunkReq struct{ Data []byte }

func marshalWriteFileChunkReq(buf []byte, v WriteFileChunkReq) []byte {
	return appendBytes(buf, 1, v.Data)
}

func unmarshalWriteFileChunkReq(buf []byte) (WriteFileChunkReq, error) {
	var v WriteFileChunkReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		d, n, err := consumeBytes(b)
		v.Data = d
		return n, err
	})
	return v, err
}

// WriteBitmapChunkReq streams one chunk of the dirty-sector bitmap from
// fs_builder to block_writer (spec §4.5).
type WriteBitmapChunkReq struct {
	Offset uint64
	Bits   []byte
	Last   bool // true on the final chunk of the bitmap
}

func marshalWriteBitmapChunkReq(buf []byte, v WriteBitmapChunkReq) []byte {
	buf = appendVarint(buf, 1, v.Offset)
	buf = appendBytes(buf, 2, v.Bits)
	buf = appendBool(buf, 3, v.Last)
	return buf
}

func unmarshalWriteBitmapChunkReq(buf []byte) (WriteBitmapChunkReq, error) {
	var v WriteBitmapChunkReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			x, n, err := consumeVarint(b)
			v.Offset = x
			return n, err
		case 2:
			d, n, err := consumeBytes(b)
			v.Bits = d
			return n, err
		case 3:
			x, n, err := consumeVarint(b)
			v.Last = x != 0
			return n, err
		}
		return -1, nil
	})
	return v, err
}

type MkFsHeaderReq struct {
	Label          string
	TotalSizeBytes uint64
}

func marshalMkFsHeaderReq(buf []byte, v MkFsHeaderReq) []byte {
	buf = appendString(buf, 1, v.Label)
	buf = appendVarint(buf, 2, v.TotalSizeBytes)
	return buf
}

func unmarshalMkFsHeaderReq(buf []byte) (MkFsHeaderReq, error) {
	var v MkFsHeaderReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			s, n, err := consumeString(b)
			v.Label = s
			return n, err
		case 2:
			x, n, err := consumeVarint(b)
			v.TotalSizeBytes = x
			return n, err
		}
		return -1, nil
	})
	return v, err
}

// --- block_writer ---

type WriteSectorsReq struct {
	Offset uint64
	Data   []byte
}

func marshalWriteSectorsReq(buf []byte, v WriteSectorsReq) []byte {
	buf = appendVarint(buf, 1, v.Offset)
	buf = appendBytes(buf, 2, v.Data)
	return buf
}

func unmarshalWriteSectorsReq(buf []byte) (WriteSectorsReq, error) {
	var v WriteSectorsReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			x, n, err := consumeVarint(b)
			v.Offset = x
			return n, err
		case 2:
			d, n, err := consumeBytes(b)
			v.Data = d
			return n, err
		}
		return -1, nil
	})
	return v, err
}

type WipeReq struct {
	PatternByte uint32
	PassCount   uint32
}

func marshalWipeReq(buf []byte, v WipeReq) []byte {
	buf = appendVarint(buf, 1, uint64(v.PatternByte))
	buf = appendVarint(buf, 2, uint64(v.PassCount))
	return buf
}

func unmarshalWipeReq(buf []byte) (WipeReq, error) {
	var v WipeReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			x, n, err := consumeVarint(b)
			v.PatternByte = uint32(x)
			return n, err
		case 2:
			x, n, err := consumeVarint(b)
			v.PassCount = uint32(x)
			return n, err
		}
		return -1, nil
	})
	return v, err
}

// --- net / analyzer ---

type UploadChunkReq struct {
	Data  []byte
	Final bool
}

func marshalUploadChunkReq(buf []byte, v UploadChunkReq) []byte {
	buf = appendBytes(buf, 1, v.Data)
	buf = appendBool(buf, 2, v.Final)
	return buf
}

func unmarshalUploadChunkReq(buf []byte) (UploadChunkReq, error) {
	var v UploadChunkReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			d, n, err := consumeBytes(b)
			v.Data = d
			return n, err
		case 2:
			x, n, err := consumeVarint(b)
			v.Final = x != 0
			return n, err
		}
		return -1, nil
	})
	return v, err
}

type PollAnalyzeReq struct{}

func marshalPollAnalyzeReq(buf []byte, _ PollAnalyzeReq) []byte { return buf }
func unmarshalPollAnalyzeReq(buf []byte) (PollAnalyzeReq, error) {
	return PollAnalyzeReq{}, decodeFields(buf, skipAll)
}

// Verdict is one antivirus engine's verdict on the uploaded bundle, part
// of the AnalyzeReport carried back from the antivirus server (spec §4.7,
// §9 Open Question: unknown report version is treated as a fatal error
// rather than silently accepted).
type Verdict struct {
	Engine string
	Clean  bool
	Path   string // file path within the bundle this verdict covers
}

func marshalVerdict(v Verdict) []byte {
	var buf []byte
	buf = appendString(buf, 1, v.Engine)
	buf = appendBool(buf, 2, v.Clean)
	buf = appendString(buf, 3, v.Path)
	return buf
}

func unmarshalVerdict(buf []byte) (Verdict, error) {
	var v Verdict
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			s, n, err := consumeString(b)
			v.Engine = s
			return n, err
		case 2:
			x, n, err := consumeVarint(b)
			v.Clean = x != 0
			return n, err
		case 3:
			s, n, err := consumeString(b)
			v.Path = s
			return n, err
		}
		return -1, nil
	})
	return v, err
}

type AnalyzeReportResp struct {
	Version  uint32
	Done     bool
	Verdicts []Verdict
}

func marshalAnalyzeReportResp(buf []byte, v AnalyzeReportResp) []byte {
	buf = appendVarint(buf, 1, uint64(v.Version))
	buf = appendBool(buf, 2, v.Done)
	for _, vd := range v.Verdicts {
		buf = appendSubmessage(buf, 3, marshalVerdict(vd))
	}
	return buf
}

func unmarshalAnalyzeReportResp(buf []byte) (AnalyzeReportResp, error) {
	var v AnalyzeReportResp
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			x, n, err := consumeVarint(b)
			v.Version = uint32(x)
			return n, err
		case 2:
			x, n, err := consumeVarint(b)
			v.Done = x != 0
			return n, err
		case 3:
			sub, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			vd, err := unmarshalVerdict(sub)
			if err != nil {
				return 0, err
			}
			v.Verdicts = append(v.Verdicts, vd)
			return n, nil
		}
		return -1, nil
	})
	return v, err
}

type DownloadChunkReq struct{}

func marshalDownloadChunkReq(buf []byte, _ DownloadChunkReq) []byte { return buf }
func unmarshalDownloadChunkReq(buf []byte) (DownloadChunkReq, error) {
	return DownloadChunkReq{}, decodeFields(buf, skipAll)
}

type DownloadChunkResp struct {
	Data  []byte
	Final bool
}

func marshalDownloadChunkResp(buf []byte, v DownloadChunkResp) []byte {
	buf = appendBytes(buf, 1, v.Data)
	buf = appendBool(buf, 2, v.Final)
	return buf
}

func unmarshalDownloadChunkResp(buf []byte) (DownloadChunkResp, error) {
	var v DownloadChunkResp
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			d, n, err := consumeBytes(b)
			v.Data = d
			return n, err
		case 2:
			x, n, err := consumeVarint(b)
			v.Final = x != 0
			return n, err
		}
		return -1, nil
	})
	return v, err
}

// --- cmd_exec ---

type ExecCmdReq struct {
	Argv []string
}

func marshalExecCmdReq(buf []byte, v ExecCmdReq) []byte {
	for _, a := range v.Argv {
		buf = appendString(buf, 1, a)
	}
	return buf
}

func unmarshalExecCmdReq(buf []byte) (ExecCmdReq, error) {
	var v ExecCmdReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		s, n, err := consumeString(b)
		v.Argv = append(v.Argv, s)
		return n, err
	})
	return v, err
}

type ExecCmdResp struct {
	ExitCode int32
	Stdout   []byte
	Stderr   []byte
}

func marshalExecCmdResp(buf []byte, v ExecCmdResp) []byte {
	buf = appendVarint(buf, 1, uint64(uint32(v.ExitCode)))
	buf = appendBytes(buf, 2, v.Stdout)
	buf = appendBytes(buf, 3, v.Stderr)
	return buf
}

func unmarshalExecCmdResp(buf []byte) (ExecCmdResp, error) {
	var v ExecCmdResp
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			x, n, err := consumeVarint(b)
			v.ExitCode = int32(uint32(x))
			return n, err
		case 2:
			d, n, err := consumeBytes(b)
			v.Stdout = d
			return n, err
		case 3:
			d, n, err := consumeBytes(b)
			v.Stderr = d
			return n, err
		}
		return -1, nil
	})
	return v, err
}

// ReadFileReq asks device_reader for the content of one regular file
// found during a ReadDir walk, read in fixed-size chunks (spec §4.4.1
// Stage A: "ask the filesystem reader to read it in fixed-size chunks").
type ReadFileReq struct {
	Path   string
	Offset uint64
	Length uint32
}

func marshalReadFileReq(buf []byte, v ReadFileReq) []byte {
	buf = appendString(buf, 1, v.Path)
	buf = appendVarint(buf, 2, v.Offset)
	buf = appendVarint(buf, 3, uint64(v.Length))
	return buf
}

func unmarshalReadFileReq(buf []byte) (ReadFileReq, error) {
	var v ReadFileReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			s, n, err := consumeString(b)
			v.Path = s
			return n, err
		case 2:
			x, n, err := consumeVarint(b)
			v.Offset = x
			return n, err
		case 3:
			x, n, err := consumeVarint(b)
			v.Length = uint32(x)
			return n, err
		}
		return -1, nil
	})
	return v, err
}

// ReadFileResp carries one chunk of file content; Final marks the chunk
// that reaches end-of-file.
type ReadFileResp struct {
	Data  []byte
	Final bool
}

func marshalReadFileResp(buf []byte, v ReadFileResp) []byte {
	buf = appendBytes(buf, 1, v.Data)
	buf = appendBool(buf, 2, v.Final)
	return buf
}

func unmarshalReadFileResp(buf []byte) (ReadFileResp, error) {
	var v ReadFileResp
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			d, n, err := consumeBytes(b)
			v.Data = d
			return n, err
		case 2:
			x, n, err := consumeVarint(b)
			v.Final = x != 0
			return n, err
		}
		return -1, nil
	})
	return v, err
}

// --- usb_dev / img_disk ---

type ImgDiskReq struct {
	DeviceID string
}

func marshalImgDiskReq(buf []byte, v ImgDiskReq) []byte { return appendString(buf, 1, v.DeviceID) }

func unmarshalImgDiskReq(buf []byte) (ImgDiskReq, error) {
	var v ImgDiskReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		s, n, err := consumeString(b)
		v.DeviceID = s
		return n, err
	})
	return v, err
}

// --- frontend-facing (spec §6) ---

// DescriptorMsg is the wire shape of descriptor.Descriptor, carried as a
// submessage of InitTransferReq: the frontend picks a source and a
// destination from the Devices response and sends both back verbatim.
type DescriptorMsg struct {
	Kind        uint32
	DeviceID    string
	Vendor      string
	Model       string
	Serial      string
	URL         string
	Path        string
	CommandBin  string
	CommandArgs []string
	Title       string
	Description string
}

func marshalDescriptorMsg(v DescriptorMsg) []byte {
	var buf []byte
	buf = appendVarint(buf, 1, uint64(v.Kind))
	buf = appendString(buf, 2, v.DeviceID)
	buf = appendString(buf, 3, v.Vendor)
	buf = appendString(buf, 4, v.Model)
	buf = appendString(buf, 5, v.Serial)
	buf = appendString(buf, 6, v.URL)
	buf = appendString(buf, 7, v.Path)
	buf = appendString(buf, 8, v.CommandBin)
	for _, a := range v.CommandArgs {
		buf = appendString(buf, 9, a)
	}
	buf = appendString(buf, 10, v.Title)
	buf = appendString(buf, 11, v.Description)
	return buf
}

func unmarshalDescriptorMsg(buf []byte) (DescriptorMsg, error) {
	var v DescriptorMsg
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			x, n, err := consumeVarint(b)
			v.Kind = uint32(x)
			return n, err
		case 2:
			s, n, err := consumeString(b)
			v.DeviceID = s
			return n, err
		case 3:
			s, n, err := consumeString(b)
			v.Vendor = s
			return n, err
		case 4:
			s, n, err := consumeString(b)
			v.Model = s
			return n, err
		case 5:
			s, n, err := consumeString(b)
			v.Serial = s
			return n, err
		case 6:
			s, n, err := consumeString(b)
			v.URL = s
			return n, err
		case 7:
			s, n, err := consumeString(b)
			v.Path = s
			return n, err
		case 8:
			s, n, err := consumeString(b)
			v.CommandBin = s
			return n, err
		case 9:
			s, n, err := consumeString(b)
			v.CommandArgs = append(v.CommandArgs, s)
			return n, err
		case 10:
			s, n, err := consumeString(b)
			v.Title = s
			return n, err
		case 11:
			s, n, err := consumeString(b)
			v.Description = s
			return n, err
		}
		return -1, nil
	})
	return v, err
}

// InitTransferReq names the source and destination the frontend chose
// from a prior Devices response, plus the filesystem label to build for a
// USB destination (spec §4.3 "Selecting").
type InitTransferReq struct {
	Src    DescriptorMsg
	Dst    DescriptorMsg
	FsType string
}

func marshalInitTransferReq(buf []byte, v InitTransferReq) []byte {
	buf = appendSubmessage(buf, 1, marshalDescriptorMsg(v.Src))
	buf = appendSubmessage(buf, 2, marshalDescriptorMsg(v.Dst))
	buf = appendString(buf, 3, v.FsType)
	return buf
}

func unmarshalInitTransferReq(buf []byte) (InitTransferReq, error) {
	var v InitTransferReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			sub, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			d, err := unmarshalDescriptorMsg(sub)
			v.Src = d
			return n, err
		case 2:
			sub, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			d, err := unmarshalDescriptorMsg(sub)
			v.Dst = d
			return n, err
		case 3:
			s, n, err := consumeString(b)
			v.FsType = s
			return n, err
		}
		return -1, nil
	})
	return v, err
}

// InitTransferResp carries the id the supervisor derived for the new
// transfer, echoed back on Report so the frontend can match it up.
type InitTransferResp struct {
	TransferID string
}

func marshalInitTransferResp(buf []byte, v InitTransferResp) []byte {
	return appendString(buf, 1, v.TransferID)
}

func unmarshalInitTransferResp(buf []byte) (InitTransferResp, error) {
	var v InitTransferResp
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		s, n, err := consumeString(b)
		v.TransferID = s
		return n, err
	})
	return v, err
}

// ReportReq asks for the finished report of the transfer currently in
// the Reporting state; the frontend doesn't repeat the transfer id since
// at most one transfer is ever in flight (spec §4.3 "Concurrency").
type ReportReq struct{}

func marshalReportReq(buf []byte, _ ReportReq) []byte { return buf }
func unmarshalReportReq(buf []byte) (ReportReq, error) {
	return ReportReq{}, decodeFields(buf, skipAll)
}

// ReportResp is the wire shape of report.Report (spec §4.7).
type ReportResp struct {
	TransferID    string
	StartedAtUnix int64
	EndedAtUnix   int64
	Status        string
	FileNames     []string
	ErrorFiles    []string
	FilteredFiles []string
	RejectedFiles []string
	BytesWritten  uint64
	ErrorMessage  string
}

func marshalReportResp(buf []byte, v ReportResp) []byte {
	buf = appendString(buf, 1, v.TransferID)
	buf = appendVarint(buf, 2, uint64(v.StartedAtUnix))
	buf = appendVarint(buf, 3, uint64(v.EndedAtUnix))
	buf = appendString(buf, 4, v.Status)
	for _, f := range v.FileNames {
		buf = appendString(buf, 5, f)
	}
	for _, f := range v.ErrorFiles {
		buf = appendString(buf, 6, f)
	}
	for _, f := range v.FilteredFiles {
		buf = appendString(buf, 7, f)
	}
	for _, f := range v.RejectedFiles {
		buf = appendString(buf, 8, f)
	}
	buf = appendVarint(buf, 9, v.BytesWritten)
	buf = appendString(buf, 10, v.ErrorMessage)
	return buf
}

func unmarshalReportResp(buf []byte) (ReportResp, error) {
	var v ReportResp
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			s, n, err := consumeString(b)
			v.TransferID = s
			return n, err
		case 2:
			x, n, err := consumeVarint(b)
			v.StartedAtUnix = int64(x)
			return n, err
		case 3:
			x, n, err := consumeVarint(b)
			v.EndedAtUnix = int64(x)
			return n, err
		case 4:
			s, n, err := consumeString(b)
			v.Status = s
			return n, err
		case 5:
			s, n, err := consumeString(b)
			v.FileNames = append(v.FileNames, s)
			return n, err
		case 6:
			s, n, err := consumeString(b)
			v.ErrorFiles = append(v.ErrorFiles, s)
			return n, err
		case 7:
			s, n, err := consumeString(b)
			v.FilteredFiles = append(v.FilteredFiles, s)
			return n, err
		case 8:
			s, n, err := consumeString(b)
			v.RejectedFiles = append(v.RejectedFiles, s)
			return n, err
		case 9:
			x, n, err := consumeVarint(b)
			v.BytesWritten = x
			return n, err
		case 10:
			s, n, err := consumeString(b)
			v.ErrorMessage = s
			return n, err
		}
		return -1, nil
	})
	return v, err
}

// WipeDiskReq is the frontend's standalone wipe request (KindReqWipeDisk):
// it names the destination directly since, unlike the mid-transfer
// KindReqWipe the supervisor sends block_writer, no transfer precedes it.
type WipeDiskReq struct {
	DestPath       string
	FsType         string
	Quick          bool
	TotalSizeBytes int64
}

func marshalWipeDiskReq(buf []byte, v WipeDiskReq) []byte {
	buf = appendString(buf, 1, v.DestPath)
	buf = appendString(buf, 2, v.FsType)
	buf = appendBool(buf, 3, v.Quick)
	buf = appendVarint(buf, 4, uint64(v.TotalSizeBytes))
	return buf
}

func unmarshalWipeDiskReq(buf []byte) (WipeDiskReq, error) {
	var v WipeDiskReq
	err := decodeFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			s, n, err := consumeString(b)
			v.DestPath = s
			return n, err
		case 2:
			s, n, err := consumeString(b)
			v.FsType = s
			return n, err
		case 3:
			x, n, err := consumeVarint(b)
			v.Quick = x != 0
			return n, err
		case 4:
			x, n, err := consumeVarint(b)
			v.TotalSizeBytes = int64(x)
			return n, err
		}
		return -1, nil
	})
	return v, err
}
