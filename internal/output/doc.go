// Package output manages the result tree of a profiling session.
//
// Every directory is a Path carrying a dirmeta.json sidecar, and every file
// created through File carries a meta_<name>.json sidecar next to it.
// Array stores newline-delimited records in <name>.dat and reloads them
// when reopened. Metadata is a flat JSON object encoded with sonic.
//
// NewRunDir picks the adaptyst_<UTC timestamp>__<n> directory of a run and
// records when and where it happened. SaveSourceArchive packs the source
// files registered by modules into src.zip with an index.json mapping
// original paths to archive entries.
package output
