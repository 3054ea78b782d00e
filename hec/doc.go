// Package hec implements a minimal Splunk HTTP Event Collector client.
// Events are posted one by one, in order, and the first rejected event stops the delivery.
// https://docs.splunk.com/Documentation/Splunk/latest/Data/HECRESTendpoints
package hec
