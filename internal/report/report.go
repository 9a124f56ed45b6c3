// Package report accumulates the four mutually-exclusive file lists a
// finished transfer is summarized by (spec §4.8: file_names, error_files,
// filtered_files, rejected_files) and persists a history of past reports
// to a local bbolt database so a kiosk can answer "what did transfer X
// do" after the fact without keeping every worker process alive.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Report is the terminal summary of one transfer.
type Report struct {
	TransferID string    `json:"transfer_id"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Status     string    `json:"status"` // "ok" | "error" | "aborted"

	FileNames     []string `json:"file_names"`
	ErrorFiles    []string `json:"error_files"`
	FilteredFiles []string `json:"filtered_files"`
	RejectedFiles []string `json:"rejected_files"`

	BytesWritten uint64 `json:"bytes_written"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Builder accumulates a Report's file lists as the pipeline runs. Adding
// the same path to more than one list is a caller bug, not something
// Builder silently tolerates, since spec §4.8 requires the four lists to
// stay mutually exclusive.
type Builder struct {
	r    Report
	seen map[string]string // path -> which list it's already in
}

func NewBuilder(transferID string) *Builder {
	return &Builder{
		r:    Report{TransferID: transferID, StartedAt: time.Now()},
		seen: make(map[string]string),
	}
}

func (b *Builder) addOnce(list *[]string, listName, path string) error {
	if existing, ok := b.seen[path]; ok {
		return fmt.Errorf("report: %q already recorded in %s list, cannot also add to %s", path, existing, listName)
	}
	b.seen[path] = listName
	*list = append(*list, path)
	return nil
}

func (b *Builder) AddFile(path string) error     { return b.addOnce(&b.r.FileNames, "file_names", path) }
func (b *Builder) AddError(path string) error    { return b.addOnce(&b.r.ErrorFiles, "error_files", path) }
func (b *Builder) AddFiltered(path string) error { return b.addOnce(&b.r.FilteredFiles, "filtered_files", path) }
func (b *Builder) AddRejected(path string) error { return b.addOnce(&b.r.RejectedFiles, "rejected_files", path) }

// Reclassify moves path out of whichever list it currently occupies and
// into rejected_files, for a verdict that arrives after the path was
// already recorded elsewhere (spec §4.7: a DIRTY analysis verdict turns an
// already-copied file into a rejection, it doesn't duplicate it). A path
// never seen before is rejected outright, same as AddRejected.
func (b *Builder) Reclassify(path string) error {
	switch existing := b.seen[path]; existing {
	case "", "rejected_files":
		// not seen yet, or already rejected: fall through to addOnce below.
	case "file_names":
		b.r.FileNames = removePath(b.r.FileNames, path)
	case "error_files":
		b.r.ErrorFiles = removePath(b.r.ErrorFiles, path)
	case "filtered_files":
		b.r.FilteredFiles = removePath(b.r.FilteredFiles, path)
	default:
		return fmt.Errorf("report: %q in unknown list %s, cannot reclassify", path, existing)
	}
	delete(b.seen, path)
	return b.addOnce(&b.r.RejectedFiles, "rejected_files", path)
}

func removePath(list []string, path string) []string {
	for i, p := range list {
		if p == path {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (b *Builder) AddBytesWritten(n uint64) { b.r.BytesWritten += n }

// Finish finalizes the report with a terminal status and returns it.
func (b *Builder) Finish(status string, errMsg string) Report {
	b.r.EndedAt = time.Now()
	b.r.Status = status
	b.r.ErrorMessage = errMsg
	return b.r
}

var historyBucket = []byte("transfers")

// Store is a local, append-only history of finished transfer reports,
// backed by a single bbolt file so a kiosk survives a reboot between
// transfers without a separate database service.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (creating if absent) the bbolt database at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("report: open store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(historyBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("report: init bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save persists r under its TransferID, overwriting any previous report
// for the same ID (a transfer is only ever saved once in practice, but
// idempotent save keeps a retried write harmless).
func (s *Store) Save(r Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(historyBucket).Put([]byte(r.TransferID), data)
	})
}

// Get loads a previously saved report by transfer ID.
func (s *Store) Get(transferID string) (Report, bool, error) {
	var r Report
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(historyBucket).Get([]byte(transferID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return Report{}, false, fmt.Errorf("report: get %s: %w", transferID, err)
	}
	return r, found, nil
}

// List returns every stored report, most recently started first.
func (s *Store) List() ([]Report, error) {
	var reports []Report
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(historyBucket).ForEach(func(_, v []byte) error {
			var r Report
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			reports = append(reports, r)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("report: list: %w", err)
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].StartedAt.After(reports[j].StartedAt)
	})
	return reports, nil
}
