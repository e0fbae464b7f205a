// Package gateway exposes stream sessions over HTTP.
//
// Producers POST chunk envelopes as NDJSON to register and feed a session;
// each line is buffered durably and fanned out live. Consumers GET the same
// session as Server-Sent Events, optionally passing ?after=N to skip chunks
// they already rendered. A consumer that reconnects after a network drop
// picks up exactly where it left off, while the producer keeps streaming
// undisturbed.
package gateway
