// Package inject is the workflow side of the coordinator channel.
//
// A workflow launched by the coordinator inherits a pair of pipe
// descriptors whose numbers are passed in ADAPTYST_READ_FD1 and
// ADAPTYST_WRITE_FD2. Connect performs the handshake:
//
//	-> init
//	<- ack
//	<- <name> <id> <rfd0> <rfd1> <wfd0> <wfd1> <path>   (one per module)
//	<- <STOP>
//
// after which code regions are reported as
//
//	-> start|end <pid>_<tid> <monotonic ns> <region name>
//	<- ack | invalid
//
// Each announced module also gets a dedicated channel, handed to its
// injection library through an Opener.
package inject
