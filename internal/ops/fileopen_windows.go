//go:build windows

package ops

import (
	"os"

	"github.com/hpungsan/autoledger/internal/errors"
)

// openFileNoFollow opens a file for writing. O_NOFOLLOW does not exist on
// Windows; callers have already rejected symlinks with Lstat.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

// openFileNoFollowRead opens a file for reading. See openFileNoFollow.
func openFileNoFollowRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("file", path)
		}
		return nil, errors.NewInternal(err)
	}
	return f, nil
}
