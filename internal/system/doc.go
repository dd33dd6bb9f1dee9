/*
Package system coordinates a profiling session.

A System owns Entities built from a topology definition. Each Entity owns
Nodes of loaded modules and at most one workflow process. The workflow is
launched gated and released exactly once, when every module that opted
into profiling during init has called ProfileNotify. A profiling module
that returns without notifying is withdrawn from that count; when none is
left the workflow is terminated instead. A listener goroutine
per Entity serves the workflow's injection channel: it answers the
handshake with the injectable modules and their channel descriptors, and
fans region start/end messages out to every module.

Modules reach the session through the amod.API implementation in this
package, which resolves module IDs through the session's module.Registry.
*/
package system
