//go:build linux

package mmap

import (
	"os"
	"syscall"
)

func mmap(f *os.File, length int) ([]byte, error) {
	return syscall.Mmap(int(f.Fd()), 0, length, syscall.PROT_READ, syscall.MAP_SHARED)
}

func munmap(b []byte) error {
	return syscall.Munmap(b)
}

func madvise(b []byte, advice int) error {
	return syscall.Madvise(b, advice)
}

const (
	madvSequential = syscall.MADV_SEQUENTIAL
	madvWillneed   = syscall.MADV_WILLNEED
)
