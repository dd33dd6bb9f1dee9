// Package module loads measurement modules and drives their lifecycle.
//
// A module is a table of symbols (see pkg/amod): its tags, the options it
// accepts with their help text, types and defaults, the log types it writes
// and the lifecycle functions the session calls. Tables come from a Loader:
// PluginLoader opens Go plugins from the module directory
// (<dir>/<name>/lib<name>.so, exporting "Symbols"), StaticLoader serves
// tables compiled into the binary.
//
// Construction validates the table and marshals user-supplied option
// strings into typed amod.Value instances once. Afterwards a Module goes
// through Init, Process (asynchronous), Wait and Close.
//
// The Registry hands out module IDs and records the last API error of each
// ID. It is owned by the session; there is no process-wide module table.
package module
