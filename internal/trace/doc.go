// Package trace defines the record of one executed simulation event and the
// canonical text form used to compare runs.
//
// A run's trace is the ordered list of Records the EventManager dispatched.
// Two runs of the same model with the same input must produce byte-identical
// canonical traces, and therefore the same Digest.
//
// Descriptions are NFC-normalized at the serialization boundary so that
// visually identical names from different input files hash the same.
package trace
