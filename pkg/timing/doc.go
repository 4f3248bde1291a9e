// Package timing defines the data model shared by the in-target SDK and the
// profiler host: per-module load timings, per-component lifecycle phase
// timings, and the immutable ProfileResult snapshot built once per session.
//
// All durations are float64 milliseconds. Timestamps are milliseconds on the
// target process's monotonic clock, measured from the moment instrumentation
// was installed.
package timing
