// Package convert provides helpers for fast conversion of common go types.
//
// Conversion operations are essentially unsafe and avoid the use of memcpy().
package convert
