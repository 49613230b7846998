// Package klog provides the kernel's console-style logging, grounded on
// the direct use of fmt.Printf/log.Printf for boot and diagnostic
// messages elsewhere in the kernel (ufs.go, driver.go) rather than a
// structured logging library.
package klog

import "log"

// Infof logs an informational boot/runtime message.
func Infof(format string, args ...interface{}) {
	log.Printf("[info] "+format, args...)
}

// Warnf logs a recoverable anomaly (eviction pressure, retried recovery).
func Warnf(format string, args ...interface{}) {
	log.Printf("[warn] "+format, args...)
}
