//go:build !linux && !darwin

package mmap

import "os"

// mmap falls back to reading the whole file where mapping is unavailable
func mmap(f *os.File, length int) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

func munmap([]byte) error { return nil }

func madvise([]byte, int) error { return nil }

const (
	madvSequential = 0
	madvWillneed   = 0
)
