// Package supervisor restarts a monitor whenever its polling loop ends.
//
// By default it restarts immediately and forever with the collaborators
// the monitor was first started with. Exponential backoff and a restart limit
// are available as options. Panics inside the loop count as failures.
package supervisor
