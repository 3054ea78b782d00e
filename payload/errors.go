package payload

import "errors"

var (
	// ErrNoData is returned when the payload is absent or empty.
	ErrNoData = errors.New("no data")
	// ErrRead is returned when the payload reader fails.
	ErrRead = errors.New("could not read payload")
	// ErrDecompression is returned for corrupt, truncated or oversized gzip payloads.
	ErrDecompression = errors.New("could not decompress gzip payload")
	// ErrDecoding is returned when the payload bytes are not valid UTF-8.
	ErrDecoding = errors.New("payload is not valid UTF-8")
	// ErrParse is returned when the payload text is not a valid JSON document.
	ErrParse = errors.New("payload is not valid JSON")
	// ErrRecordDecode is returned when a streaming record can not be decoded.
	// One malformed record fails the whole payload.
	ErrRecordDecode = errors.New("could not decode streaming record")
)
