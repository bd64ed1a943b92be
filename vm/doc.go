// Package vm implements the LoomScript host runtime.
//
// This package contains:
//   - Instance lifecycle and the process handle registry
//   - The assembly loader and its phase state machine
//   - Type catalog caching and missing-type pruning
//   - Class declaration, initialization and static initializers
//   - Call-stack capture and fatal runtime error reports
package vm
