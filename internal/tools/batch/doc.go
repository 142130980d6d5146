// Package batch runs a tool operation over several ids and reports the
// outcome of each one, so one bad id does not hide the others.
package batch
