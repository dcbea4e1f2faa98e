package converter

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"
)

// CheckResources verifies there is enough free disk under dir and enough
// available memory to start a conversion. A zero threshold disables a check.
func CheckResources(dir string, minFreeDisk, minFreeMem int64) error {
	if minFreeMem > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			log.Warnf("could not get memory usage: %v", err)
		} else if vm.Available < uint64(minFreeMem) {
			return fmt.Errorf("not enough free memory. Available: %d, Required: %d", vm.Available, minFreeMem)
		}
	}

	if minFreeDisk > 0 {
		d, err := disk.Usage(dir)
		if err != nil {
			log.Warnf("could not get disk usage for %s: %v", dir, err)
		} else if d.Free < uint64(minFreeDisk) {
			return fmt.Errorf("not enough free disk space. Available: %d, Required: %d", d.Free, minFreeDisk)
		}
	}
	return nil
}
