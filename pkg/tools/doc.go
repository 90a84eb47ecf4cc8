// Package tools defines server-side tool execution for the agentic loop.
// An Executor owns a set of named tools; the Registry routes calls from the
// model to the right executor, records metrics, and contains panics. Tool
// calls no registered executor can handle are left for the API caller to
// execute.
package tools
