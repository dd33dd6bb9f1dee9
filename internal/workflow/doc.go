/*
Package workflow describes the program under analysis.

A Workflow builds the unstarted process an entity launches (gated) and the
graph description handed to every module's processing function. Command
runs an argv as-is; Compiled first turns a source file into an executable
with an external compiler invoked as "<compiler> <source> <output>".
*/
package workflow
