// Package checksum implements the two frame checksums used on a serial line:
// the Longitudinal Redundancy Check (LRC) carried by ASCII frames and the
// CRC-16/MODBUS carried by RTU frames.
//
// Both checksums are pure functions over a byte slice and have no error
// conditions.
package checksum
