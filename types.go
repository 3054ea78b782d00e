package hecfwd

// Token is the HEC authentication token sent as "Authorization: Splunk <token>".
type Token string

// Source is the Splunk source of an event.
// https://docs.splunk.com/Splexicon:Source
type Source string

// SourceType is the Splunk sourcetype of an event.
// https://docs.splunk.com/Splexicon:Sourcetype
type SourceType string

// Channel is a GUID identifying the HEC request channel. It is required by collectors with indexer acknowledgement enabled.
type Channel string

type Index string

const (
	// DefaultSource is set on every envelope unless overridden.
	DefaultSource Source = "oci:datasafe"
	// DefaultSourceType tells Splunk to extract fields from the JSON event.
	DefaultSourceType SourceType = "_json"
)

// String masks the token so it can be passed to logs safely.
func (t Token) String() string {
	if len(t) <= 4 {
		return "****"
	}

	return "****" + string(t[len(t)-4:])
}
