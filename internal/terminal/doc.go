// Package terminal is the session's user-facing output sink.
//
// Messages printed to the terminal start with "==> " (sections) or "-> "
// (subsections) and are coloured unless formatting is disabled. Messages
// attributed to an entity, node or module are not printed; they go to
// <log dir>/<owner>_<type>.log, one lazily opened file per owner and log
// type, with errors prefixed by "[ERROR] ".
package terminal
