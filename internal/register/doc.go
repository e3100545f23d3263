// Package register drives a registration run: it schedules frames
// against a server session with a bounded in-flight window, retries
// transient failures, restores frame order, and writes the annotated
// output pair while journaling every outcome.
package register
