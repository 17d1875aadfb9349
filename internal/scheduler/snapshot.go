package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
)

// snapshot hot-copies indexUID's environment file to dst under a read
// transaction (spec §4.5 "Snapshots copy environment files under a read
// transaction via the KV store's hot-copy primitive"). dst is the
// destination directory; the copy lands at dst/data.mdb, mirroring the
// on-disk layout an Environment.Open expects so a snapshot directory can
// be opened directly as an index environment.
func (s *Scheduler) snapshot(indexUID, dst string) error {
	if dst == "" {
		return fmt.Errorf("snapshot task for index %q missing destination", indexUID)
	}
	env, err := s.idx.Environment(indexUID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("create snapshot destination %s: %w", dst, err)
	}
	return env.CopyTo(filepath.Join(dst, "data.mdb"))
}
