// Package preflight provides readiness checks for the inputs a
// registration run depends on.
//
// The register command calls RunAll before connecting to the server.
// A run processes every frame of a video and can take a long time, so
// failing fast on a missing reference dataset or a nearly full output
// disk beats discovering it mid-run.
package preflight
