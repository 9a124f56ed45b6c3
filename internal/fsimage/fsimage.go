// Package fsimage is the filesystem builder's destination container: a
// single growable file standing in for a real FAT/NTFS/ext4 image (spec
// §9: "dynamic dispatch... no open-world polymorphism required" and
// spec.md's Non-goals explicitly exclude a real filesystem driver). It
// gives fs_builder something concrete to write files into and emit a
// dirty-sector bitmap from, and gives block_writer something concrete to
// read dirty sectors out of.
package fsimage

import (
	"fmt"
	"os"
)

// SectorSize is the unit the dirty-sector bitmap addresses (spec §4.5).
const SectorSize = 512

// Image is a sparse-backed destination file. Bytes written to it mark
// their covering sectors dirty; Bitmap reports exactly those sectors.
type Image struct {
	f     *os.File
	path  string
	size  int64
	dirty []bool // one entry per sector
}

// Create truncates path to totalSize bytes and prepares an empty dirty
// bitmap, the fs_builder equivalent of formatting a blank filesystem of a
// given size (spec §4.4 Stage C: "initialise a blank image... sized to the
// device").
func Create(path string, totalSize int64) (*Image, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("fsimage: create %s: %w", path, err)
	}
	if err := f.Truncate(totalSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("fsimage: truncate %s to %d: %w", path, totalSize, err)
	}
	numSectors := (totalSize + SectorSize - 1) / SectorSize
	return &Image{f: f, path: path, size: totalSize, dirty: make([]bool, numSectors)}, nil
}

// Open reopens an already-built image read-only, the shape block_writer
// uses after fs_builder has closed it (spec §5: "handed off by filename
// only... produced by the filesystem builder, then opened for reading by
// the block writer").
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fsimage: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("fsimage: stat %s: %w", path, err)
	}
	return &Image{f: f, path: path, size: info.Size()}, nil
}

func (img *Image) Path() string { return img.path }
func (img *Image) Size() int64  { return img.size }

// WriteAt writes p at byte offset off and marks every sector it touches
// dirty.
func (img *Image) WriteAt(p []byte, off int64) (int, error) {
	n, err := img.f.WriteAt(p, off)
	if err != nil {
		return n, fmt.Errorf("fsimage: write at %d: %w", off, err)
	}
	first := off / SectorSize
	last := (off + int64(n) - 1) / SectorSize
	for s := first; s <= last && int(s) < len(img.dirty); s++ {
		img.dirty[s] = true
	}
	return n, nil
}

func (img *Image) ReadAt(p []byte, off int64) (int, error) { return img.f.ReadAt(p, off) }

func (img *Image) Flush() error { return img.f.Sync() }

func (img *Image) Close() error { return img.f.Close() }

// WriteHeader stamps a minimal filesystem header/label at offset 0,
// standing in for a real mkfs call (spec §4.4.3: "writes a fresh blank
// filesystem of the requested type"). fsType is recorded verbatim; no
// real on-disk format is produced, per the package's stated Non-goal.
func (img *Image) WriteHeader(fsType, label string) error {
	header := fmt.Sprintf("USBSASIMG1 fstype=%s label=%s\n", fsType, label)
	_, err := img.WriteAt([]byte(header), 0)
	return err
}

// Bitmap renders the current dirty-sector state as a packed bit array,
// one bit per sector, bit i = sector i, LSB-first within each byte (spec
// §4.5: "Bit i of the bitmap corresponds to sector i of the image").
func (img *Image) Bitmap() []byte {
	out := make([]byte, (len(img.dirty)+7)/8)
	for i, d := range img.dirty {
		if d {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// SectorCount returns how many SectorSize-sized sectors the image spans.
func (img *Image) SectorCount() int64 { return (img.size + SectorSize - 1) / SectorSize }

// BitSet reports whether bit i is set in a packed bitmap as produced by
// Bitmap, used by block_writer to decide whether to copy sector i.
func BitSet(bitmap []byte, i int64) bool {
	byteIdx := i / 8
	if byteIdx < 0 || int(byteIdx) >= len(bitmap) {
		return false
	}
	return bitmap[byteIdx]&(1<<uint(i%8)) != 0
}
