// Package rotation drives a credential rotation run.
//
// For every source the Runner unlocks and parses the container, routes each
// entry to a site script (Router), hands the routed entries to the Scheduler,
// which runs one automation subprocess per entry on a bounded worker pool
// with an exclusive local port per job, and finally rewrites the container
// with the successful secrets. Failed jobs keep their old secret.
package rotation
