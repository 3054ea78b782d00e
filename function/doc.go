// Package function implements the invocation contract of the forwarder.
//
// Handler normalizes the invocation payload into events and delivers them to the collector.
// It is exposed as an AWS Lambda handler (Handler.Invoke) and as an http.Handler.
// Every invocation returns {"status":"success","events_sent":N} or {"status":"no data"} for an absent payload.
// Any failure is logged and returned to the caller unchanged.
package function
