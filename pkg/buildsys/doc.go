// Package buildsys implements a minimal task runner based on Starlark for the task declarations
// and mvdan.cc/sh for the shell runtime.
//
// A task file declares options at global scope and tasks inside its configure() function. Every
// task command is executed with "set -e" semantics: the first failing command stops the task and
// every task depending on it.
package buildsys
