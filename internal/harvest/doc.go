// Package harvest defines the records, work items and pluggable capabilities
// shared by the pipeline, the supervisor and the concrete sources and sinks.
package harvest
