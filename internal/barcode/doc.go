// Package barcode locates and decodes QR codes in frames.
//
// A Backend reports each detection path as a Capability result instead of
// an error so the Detector can tell "no codes here" apart from "this path
// cannot run on this input" and fall back from multi-code to single-code
// detection only in the latter case. The default backend is built on
// gozxing; tests substitute their own.
package barcode
