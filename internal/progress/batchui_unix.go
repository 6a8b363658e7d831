//go:build !windows

package progress

import "os"

// enableANSI is a no-op on platforms whose terminals speak ANSI natively.
func enableANSI(_ *os.File) {}
