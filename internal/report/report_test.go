package report

import (
	"path/filepath"
	"testing"
)

func TestBuilderEnforcesMutualExclusion(t *testing.T) {
	b := NewBuilder("t-1")
	if err := b.AddFile("/a.txt"); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := b.AddRejected("/a.txt"); err == nil {
		t.Error("AddRejected: expected error re-adding a path already in file_names, got nil")
	}
}

func TestBuilderReclassifyMovesExistingFile(t *testing.T) {
	b := NewBuilder("t-1")
	if err := b.AddFile("/eicar.com"); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := b.AddFile("/ok.txt"); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := b.Reclassify("/eicar.com"); err != nil {
		t.Fatalf("Reclassify: %v", err)
	}

	r := b.Finish("ok", "")
	if len(r.FileNames) != 1 || r.FileNames[0] != "/ok.txt" {
		t.Errorf("file_names = %v, want [/ok.txt]", r.FileNames)
	}
	if len(r.RejectedFiles) != 1 || r.RejectedFiles[0] != "/eicar.com" {
		t.Errorf("rejected_files = %v, want [/eicar.com]", r.RejectedFiles)
	}

	if err := b.AddRejected("/eicar.com"); err == nil {
		t.Error("AddRejected: expected error re-adding a path already in rejected_files, got nil")
	}
}

func TestBuilderFinish(t *testing.T) {
	b := NewBuilder("t-1")
	_ = b.AddFile("/a.txt")
	_ = b.AddFiltered("/.git/config")
	_ = b.AddRejected("/b.tmp")
	b.AddBytesWritten(1024)

	r := b.Finish("ok", "")
	if r.TransferID != "t-1" {
		t.Errorf("TransferID = %q", r.TransferID)
	}
	if len(r.FileNames) != 1 || len(r.FilteredFiles) != 1 || len(r.RejectedFiles) != 1 {
		t.Errorf("unexpected report shape: %+v", r)
	}
	if r.BytesWritten != 1024 {
		t.Errorf("BytesWritten = %d, want 1024", r.BytesWritten)
	}
	if r.Status != "ok" {
		t.Errorf("Status = %q, want ok", r.Status)
	}
}

func TestStoreSaveGetList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.bolt")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	b1 := NewBuilder("t-1")
	_ = b1.AddFile("/a.txt")
	r1 := b1.Finish("ok", "")
	if err := store.Save(r1); err != nil {
		t.Fatalf("Save: %v", err)
	}

	b2 := NewBuilder("t-2")
	_ = b2.AddError("/b.txt")
	r2 := b2.Finish("error", "device gone")
	if err := store.Save(r2); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, found, err := store.Get("t-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("Get: t-1 not found")
	}
	if len(got.FileNames) != 1 || got.FileNames[0] != "/a.txt" {
		t.Errorf("Get(t-1).FileNames = %v", got.FileNames)
	}

	_, found, err = store.Get("does-not-exist")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Error("Get: expected not found for unknown transfer id")
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
}
