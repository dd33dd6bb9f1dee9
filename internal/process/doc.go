// Package process spawns and supervises child processes for the
// coordinator: the profiled workflow and any helper commands.
//
// Features:
//   - Gated start: the child blocks until Notify releases it, so profiling
//     modules never miss the beginning of the workload
//   - CPU affinity from a CPUConfig mask (profiler or workflow partition)
//   - Stdout redirection to a pipe (default), a file, the terminal, a PTY
//     or the stdin of another Process
//   - Idempotent Join, non-consuming IsRunning, one-shot CloseStdin
//
// Go cannot run code between fork and exec, so children are started
// through a trampoline: the current executable is re-executed, waits for
// the notify byte, pins itself to the requested CPUs and then execs the
// real command (or runs a function registered with RegisterFunc). Every
// binary spawning processes must therefore call Init first thing in main,
// and test binaries must do it from TestMain:
//
//	func main() {
//		process.Init()
//		...
//	}
//
// Exit codes 200-209 are reserved for trampoline failures (see the Error*
// constants).
package process
