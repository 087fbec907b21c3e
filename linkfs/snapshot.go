package linkfs

import (
	"os"
	"time"
)

// ClaimSnapshot is a point-in-time read of a claim dir: which device ids
// currently hold a marker there, and the directory's own identity
// (inode + mtime) as observed by Stat. It exists so the updater's
// concurrent-change detection (§4.5 step 5d: "if the dir's identity and
// mtime are unchanged, no concurrent claimant joined") and any caller
// that wants to display the claim state (the devlinksctl debug CLI) share
// one read path instead of duplicating the stat-and-compare logic.
type ClaimSnapshot struct {
	Dir      string
	Exists   bool
	Markers  []string
	info     os.FileInfo
	ModTime  time.Time
}

// Snapshot reads the current state of relStableName's claim dir. A
// missing claim dir is not an error: Exists is false and Markers is nil.
func (c *ClaimIndex) Snapshot(relStableName string) (ClaimSnapshot, error) {
	dir, _ := c.ClaimDir(relStableName)
	snap := ClaimSnapshot{Dir: dir}

	fi, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return snap, err
	}
	snap.Exists = true
	snap.info = fi
	snap.ModTime = fi.ModTime()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return snap, err
	}
	for _, e := range entries {
		snap.Markers = append(snap.Markers, e.Name())
	}
	return snap, nil
}

// SameIdentity reports whether snap and other describe the same claim dir
// inode with an unchanged modification time — the signal the updater
// uses to decide whether a concurrent claimant joined or left between two
// snapshots taken around a writer call.
func (snap ClaimSnapshot) SameIdentity(other ClaimSnapshot) bool {
	if !snap.Exists || !other.Exists {
		return snap.Exists == other.Exists
	}
	return os.SameFile(snap.info, other.info) && snap.ModTime.Equal(other.ModTime)
}
