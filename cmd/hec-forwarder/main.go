// Command hec-forwarder delivers streaming log records to Splunk HTTP Event Collector.
//
// It runs as an AWS Lambda function, as an HTTP invocation endpoint or as a one-shot CLI:
//
//	hec-forwarder lambda
//	hec-forwarder serve
//	hec-forwarder send --file payload.json.gz
//
// Inside Lambda the lambda sub-command is the default.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
