package linkfs

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// mustMknodChar creates a character device node at path (major:minor
// 1:3, i.e. /dev/null's numbers) for use in refuse-clobber tests. It
// requires CAP_MKNOD; callers running as a non-root, non-capable user
// should expect this to skip.
func mustMknodChar(t *testing.T, path string) os.FileInfo {
	t.Helper()
	dev := unix.Mkdev(1, 3)
	if err := unix.Mknod(path, unix.S_IFCHR|0666, int(dev)); err != nil {
		t.Skipf("mknod not permitted in this environment: %v", err)
	}
	fi, err := os.Lstat(path)
	if err != nil {
		t.Fatalf("Lstat after mknod: %v", err)
	}
	return fi
}
