//go:build linux

package devmem

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// =============================================================================
// Sysfs Read Helpers
// =============================================================================

// readSysfsString reads a string from a sysfs attribute file.
func readSysfsString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// readSysfsUint reads an unsigned decimal integer from a sysfs attribute file.
func readSysfsUint(path string) (uint64, error) {
	s, err := readSysfsString(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, 10, 64)
}

// readSysfsHex reads a hexadecimal value from a sysfs attribute file.
func readSysfsHex(path string) (uint64, error) {
	s, err := readSysfsString(path)
	if err != nil {
		return 0, err
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

// =============================================================================
// Sysfs Write Helpers
// =============================================================================

// writeSysfsUint writes an unsigned decimal integer to a sysfs attribute.
func writeSysfsUint(path string, v uint64) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	_, err = f.WriteString(strconv.FormatUint(v, 10))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// =============================================================================
// Path Helpers
// =============================================================================

// bufferAttr returns the path of a u-dma-buf attribute.
func bufferAttr(root, name, attr string) string {
	return filepath.Join(root, name, attr)
}
