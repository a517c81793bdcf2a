// Package cli implements the offsync command-line client.
//
// Every command opens the local store named by --db, prepared for the
// tables of --schema, and works on it directly: insert, update, delete,
// get, list, status and reset never need the network. sync runs one
// replication round against --server; run keeps syncing every --interval
// until interrupted. reset drops download cursors, so the next sync fetches
// the named tables, or all of them, in full.
//
// Output is a table when stdout is a terminal and JSON lines otherwise.
package cli
