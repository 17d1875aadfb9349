package scheduler

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/store"
)

// dumpFormatVersion is written into every dump's metadata.json so a
// reader can pick the right compatibility shim for older layouts (spec
// §4.5 "versioned on-disk layout... compatibility shims for prior
// versions").
const dumpFormatVersion = 1

// dumpMetadata is the first entry written to every dump archive.
type dumpMetadata struct {
	FormatVersion int    `json:"formatVersion"`
	EngineVersion string `json:"engineVersion"`
}

// NewDumpUID mints a dump identifier, named dumps/<uuid>.dump on disk
// (spec §6.4).
func NewDumpUID() string {
	return uuid.NewString()
}

// dump streams every index's settings and documents, plus the full task
// log, into a single tar+gzip archive at dst (spec §4.5 "Dumps stream
// tasks/keys/settings/documents to a tar+gzip archive"). Key management is
// out of scope for this engine, so keys.json is always an empty array,
// kept only so the archive shape matches what a restorer expects.
func (s *Scheduler) dump(dst string) error {
	if dst == "" {
		return fmt.Errorf("dump task missing destination")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create dump parent directory: %w", err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create dump file %s: %w", dst, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	if err := writeJSONEntry(tw, "metadata.json", dumpMetadata{FormatVersion: dumpFormatVersion, EngineVersion: store.EngineVersion}); err != nil {
		return err
	}
	if err := writeJSONEntry(tw, "keys.json", []struct{}{}); err != nil {
		return err
	}
	if err := s.dumpTasks(tw); err != nil {
		return err
	}

	indexUIDs, err := s.idx.Indexes()
	if err != nil {
		return err
	}
	for _, uid := range indexUIDs {
		if err := s.dumpIndex(tw, uid); err != nil {
			return fmt.Errorf("dump index %q: %w", uid, err)
		}
	}
	return nil
}

func (s *Scheduler) dumpTasks(tw *tar.Writer) error {
	var all []Task
	for _, status := range []TaskStatus{StatusEnqueued, StatusProcessing, StatusSucceeded, StatusFailed, StatusCanceled} {
		tasks, err := s.store.ListByStatus(status)
		if err != nil {
			return err
		}
		all = append(all, tasks...)
	}
	return writeJSONEntry(tw, "tasks.json", all)
}

func (s *Scheduler) dumpIndex(tw *tar.Writer, indexUID string) error {
	env, err := s.idx.Environment(indexUID)
	if err != nil {
		return err
	}

	settings := env.Settings().Get()
	if err := writeJSONEntry(tw, filepath.Join("indexes", indexUID, "settings.json"), settings); err != nil {
		return err
	}

	docids, err := store.LoadDocidAllocator(env)
	if err != nil {
		return err
	}

	// Documents are archived in the store's native OBKV encoding rather
	// than re-decoded to JSON, so a restorer can write them straight back
	// via Environment.PutDocument without duplicating internal/indexer's
	// decode logic here.
	return env.View(func(tx *bbolt.Tx) error {
		live := docids.Live()
		it := live.Iterator()
		for it.HasNext() {
			docid := it.Next()
			blob := env.GetDocument(tx, docid)
			if blob == nil {
				continue
			}
			name := filepath.Join("indexes", indexUID, "documents", fmt.Sprintf("%d.obkv", docid))
			if err := writeBytesEntry(tw, name, blob); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeJSONEntry(tw *tar.Writer, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal dump entry %s: %w", name, err)
	}
	return writeBytesEntry(tw, name, data)
}

func writeBytesEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header for %s: %w", name, err)
	}
	_, err := tw.Write(data)
	return err
}
