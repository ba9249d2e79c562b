package sys

import (
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// DiskFree returns the bytes available on the filesystem holding dir, or 0
// when it cannot be determined.
func DiskFree(dir string) uint64 {
	if usage, err := disk.Usage(dir); err == nil {
		return usage.Free
	}
	return 0
}

// MemoryAvailable returns the host's available memory in bytes, or 0 when it
// cannot be determined.
func MemoryAvailable() uint64 {
	if vm, err := mem.VirtualMemory(); err == nil {
		return vm.Available
	}
	return 0
}
