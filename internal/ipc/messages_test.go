package ipc

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		msg  any
	}{
		{"init", KindReqInit, InitMsg{TransferID: "t-1", Worker: "device_reader"}},
		{"end", KindReqEnd, EndMsg{}},
		{"status", KindRespStatus, StatusMsg{Kind: "copy", Current: 3, Total: 10}},
		{"error", KindRespError, ErrorMsg{Code: "backend_closed", Message: "device gone"}},
		{
			"devices", KindRespDevices,
			DevicesResp{Devices: []DeviceInfo{
				{ID: "sda", Vendor: "SanDisk", Model: "Cruzer", Serial: "abc123", SizeBytes: 1 << 30, Removable: true},
				{ID: "sdb", Vendor: "Kingston", Model: "DataTraveler", Serial: "xyz", SizeBytes: 1 << 28},
			}},
		},
		{"open_device", KindReqOpenDevice, OpenDeviceReq{DeviceID: "sda"}},
		{
			"partitions", KindRespPartitions,
			PartitionsResp{Partitions: []PartitionInfo{{Index: 1, FsType: "vfat", SizeBytes: 512 << 20}}},
		},
		{
			"read_dir", KindRespReadDir,
			ReadDirResp{Entries: []FileEntry{
				{Name: "a.txt", SizeBytes: 12, ModTimeUnix: 1000},
				{Name: "sub", IsDir: true},
			}},
		},
		{
			"select_files", KindRespSelectFiles,
			SelectFilesResp{
				Accepted: []string{"/a.txt"},
				Filtered: []string{"/.git/config"},
				Rejected: []string{"/broken"},
			},
		},
		{"new_file", KindReqNewFile, NewFileReq{Path: "/a.txt", SizeBytes: 4096}},
		{"write_chunk", KindReqWriteFileChunk, WriteFileChunkReq{Data: []byte{1, 2, 3, 4}}},
		{"bitmap_chunk", KindReqWriteBitmapChunk, WriteBitmapChunkReq{Offset: 1024, Bits: []byte{0xff, 0x0f}, Last: true}},
		{"write_sectors", KindReqWriteSectors, WriteSectorsReq{Offset: 0, Data: []byte{0xde, 0xad}}},
		{"wipe", KindReqWipe, WipeReq{PatternByte: 0, PassCount: 3}},
		{
			"analyze_report", KindRespAnalyzeReport,
			AnalyzeReportResp{
				Version: 2,
				Done:    true,
				Verdicts: []Verdict{
					{Engine: "clamav", Clean: true},
					{Engine: "eicar", Clean: false, Path: "/eicar.com"},
				},
			},
		},
		{"exec_cmd", KindReqExecCmd, ExecCmdReq{Argv: []string{"mkfs.vfat", "-n", "USB"}}},
		{
			"exec_cmd_resp", KindRespExecCmd,
			ExecCmdResp{ExitCode: 0, Stdout: []byte("done"), Stderr: nil},
		},
		{"img_disk", KindReqImgDisk, ImgDiskReq{DeviceID: "sdb"}},
		{
			"init_transfer", KindReqInitTransfer,
			InitTransferReq{
				Src:    DescriptorMsg{Kind: 1, DeviceID: "sda"},
				Dst:    DescriptorMsg{Kind: 3, Path: "/tmp/out.img"},
				FsType: "vfat",
			},
		},
		{"init_transfer_resp", KindRespInitTransfer, InitTransferResp{TransferID: "deadbeef"}},
		{"report_req", KindReqReport, ReportReq{}},
		{
			"report_resp", KindRespReport,
			ReportResp{
				TransferID:    "deadbeef",
				StartedAtUnix: 1000,
				EndedAtUnix:   1010,
				Status:        "ok",
				FileNames:     []string{"/a.txt"},
				BytesWritten:  4096,
			},
		},
		{
			"wipe_disk", KindReqWipeDisk,
			WipeDiskReq{DestPath: "/dev/mock0", FsType: "vfat", Quick: true, TotalSizeBytes: 1 << 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := Encode(tt.kind, tt.msg)
			gotKind, gotMsg, err := Decode(frame)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if gotKind != tt.kind {
				t.Errorf("kind = %v, want %v", gotKind, tt.kind)
			}
			if !reflect.DeepEqual(gotMsg, tt.msg) {
				t.Errorf("got %#v, want %#v", gotMsg, tt.msg)
			}
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	frame := MarshalEnvelope(nil, Envelope{Kind: Kind(9999), Body: []byte("x")})
	if _, _, err := Decode(frame); err == nil {
		t.Error("Decode: expected error for unknown kind, got nil")
	}
}

func TestEnvelopeSkipsUnknownFields(t *testing.T) {
	// A field number the current Envelope schema doesn't define must be
	// skipped rather than breaking decoding of the fields it does know.
	buf := appendVarint(nil, 1, uint64(KindReqEnd))
	buf = appendVarint(buf, 99, 12345)
	buf = appendBytes(buf, 2, []byte("body"))
	env, err := UnmarshalEnvelope(buf)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope: %v", err)
	}
	if string(env.Body) != "body" {
		t.Errorf("Body = %q, want %q", env.Body, "body")
	}
}
