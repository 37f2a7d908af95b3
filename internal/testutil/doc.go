// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing conversations and scripted mock sessions.
// They are not intended for production usage.
package testutil
