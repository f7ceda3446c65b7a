// Package logger holds the process-wide structured logger used by memctl and
// the default logger handed to the memory subsystem components.
package logger
