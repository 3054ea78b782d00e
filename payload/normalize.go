package payload

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/go-logr/logr"
	"github.com/klauspost/compress/gzip"
)

// Event is a single JSON document forwarded to the collector as is.
type Event = json.RawMessage

// DefaultMaxDecompressedBytes limits the size of a decompressed gzip payload.
const DefaultMaxDecompressedBytes = 64 << 20

var gzipMagic = []byte{0x1f, 0x8b}

type options struct {
	maxDecompressedBytes int64
	log                  logr.Logger
}

type Option interface {
	apply(*options)
}

type maxDecompressedBytesOption int64

func (o maxDecompressedBytesOption) apply(opts *options) {
	opts.maxDecompressedBytes = int64(o)
}

// WithMaxDecompressedBytes overrides DefaultMaxDecompressedBytes. Non-positive values keep the default.
func WithMaxDecompressedBytes(n int64) Option {
	return maxDecompressedBytesOption(n)
}

type loggerOption struct {
	log logr.Logger
}

func (o loggerOption) apply(opts *options) {
	opts.log = o.log
}

func WithLogger(log logr.Logger) Option {
	return loggerOption{log}
}

// Normalizer turns raw invocation payloads into events.
type Normalizer struct {
	maxDecompressedBytes int64
	log                  logr.Logger
}

// NewNormalizer creates Normalizer. The logger is taken from ctx unless WithLogger is passed.
func NewNormalizer(ctx context.Context, opts ...Option) *Normalizer {
	options := options{
		maxDecompressedBytes: DefaultMaxDecompressedBytes,
		log:                  logr.FromContextOrDiscard(ctx),
	}
	for _, o := range opts {
		o.apply(&options)
	}
	if options.maxDecompressedBytes <= 0 {
		options.maxDecompressedBytes = DefaultMaxDecompressedBytes
	}

	return &Normalizer{
		maxDecompressedBytes: options.maxDecompressedBytes,
		log:                  options.log,
	}
}

// Normalize decodes raw with the default Normalizer.
func Normalize(raw any) ([]Event, error) {
	return NewNormalizer(context.Background()).Normalize(raw)
}

// Normalize decodes raw into an ordered list of events.
//
// raw is one of io.Reader, []byte, json.RawMessage, string or an already decoded JSON value
// such as map[string]any or []any. Decoding steps are applied in a fixed order:
// read, gunzip (only when the gzip magic number is present), UTF-8 validation, JSON parsing and
// finally structural dispatch on streaming records.
//
// A single streaming record is always returned as a one-element list.
// Absent input (nil, zero bytes or blank text) returns ErrNoData.
func (n *Normalizer) Normalize(raw any) ([]Event, error) {
	switch v := raw.(type) {
	case nil:
		return nil, ErrNoData
	case io.Reader:
		b, err := io.ReadAll(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRead, err)
		}

		return n.normalizeBytes(b)
	case []byte:
		return n.normalizeBytes(v)
	case json.RawMessage:
		return n.normalizeBytes(v)
	case string:
		return n.normalizeText(v)
	default:
		doc, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: could not encode %T: %w", ErrParse, v, err)
		}

		return dispatch(doc)
	}
}

func (n *Normalizer) normalizeBytes(b []byte) ([]Event, error) {
	if len(b) == 0 {
		return nil, ErrNoData
	}

	if bytes.HasPrefix(b, gzipMagic) {
		var err error
		compressed := len(b)
		if b, err = n.gunzip(b); err != nil {
			return nil, err
		}
		n.log.V(1).Info("payload decompressed", "compressedBytes", compressed, "bytes", len(b))
	}

	if !utf8.Valid(b) {
		return nil, ErrDecoding
	}

	return n.parse(b)
}

func (n *Normalizer) normalizeText(s string) ([]Event, error) {
	if strings.TrimSpace(s) == "" {
		return nil, ErrNoData
	}
	if !utf8.ValidString(s) {
		return nil, ErrDecoding
	}

	return n.parse([]byte(s))
}

func (n *Normalizer) parse(b []byte) ([]Event, error) {
	doc := bytes.TrimSpace(b)
	if !json.Valid(doc) {
		return nil, fmt.Errorf("%w: %w", ErrParse, syntaxError(doc))
	}

	return dispatch(doc)
}

// gunzip concatenates all gzip members of b. Trailing bytes that are not a gzip member are an error.
func (n *Normalizer) gunzip(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompression, err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, n.maxDecompressedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompression, err)
	}
	if int64(len(out)) > n.maxDecompressedBytes {
		return nil, fmt.Errorf("%w: decompressed payload exceeds %d bytes", ErrDecompression, n.maxDecompressedBytes)
	}

	return out, nil
}

// dispatch unwraps streaming records from a valid JSON document.
func dispatch(doc []byte) ([]Event, error) {
	switch doc[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(doc, &obj); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
		if records, ok := obj["records"]; ok {
			return decodeRecords(records)
		}
		if value, ok := obj["value"]; ok {
			event, err := decodeValue(value)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrRecordDecode, err)
			}

			return []Event{event}, nil
		}

		return []Event{doc}, nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(doc, &elems); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
		events := make([]Event, 0, len(elems))
		for i, elem := range elems {
			value, ok, err := recordValue(elem)
			if err != nil {
				return nil, fmt.Errorf("%w: element %d: %w", ErrRecordDecode, i, err)
			}
			if !ok {
				events = append(events, elem)

				continue
			}
			event, err := decodeValue(value)
			if err != nil {
				return nil, fmt.Errorf("%w: element %d: %w", ErrRecordDecode, i, err)
			}
			events = append(events, event)
		}

		return events, nil
	default:
		return []Event{doc}, nil
	}
}

func decodeRecords(raw json.RawMessage) ([]Event, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("%w: records is null", ErrRecordDecode)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: records is not an array: %w", ErrRecordDecode, err)
	}

	events := make([]Event, 0, len(records))
	for i, record := range records {
		value, ok, err := recordValue(record)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrRecordDecode, i, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: record %d: missing value", ErrRecordDecode, i)
		}
		event, err := decodeValue(value)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrRecordDecode, i, err)
		}
		events = append(events, event)
	}

	return events, nil
}

// recordValue returns the value field of a streaming record.
// ok is false when elem is not an object or has no value field.
func recordValue(elem json.RawMessage) (json.RawMessage, bool, error) {
	elem = bytes.TrimSpace(elem)
	if len(elem) == 0 || elem[0] != '{' {
		return nil, false, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(elem, &obj); err != nil {
		return nil, false, err
	}
	value, ok := obj["value"]

	return value, ok, nil
}

func decodeValue(value json.RawMessage) (Event, error) {
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return nil, fmt.Errorf("value is not a string: %s", value)
	}

	return DecodeRecord(s)
}

// DecodeRecord decodes the value of a single streaming record: base64 encoded UTF-8 JSON.
func DecodeRecord(value string) (Event, error) {
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if !utf8.Valid(b) {
		return nil, errors.New("decoded value is not valid UTF-8")
	}
	doc := bytes.TrimSpace(b)
	if !json.Valid(doc) {
		return nil, fmt.Errorf("decoded value is not valid JSON: %w", syntaxError(doc))
	}

	return doc, nil
}

// syntaxError returns the decoder's error for an invalid document.
func syntaxError(doc []byte) error {
	var v json.RawMessage
	if err := json.Unmarshal(doc, &v); err != nil {
		return err
	}

	return errors.New("unexpected data after top-level value")
}
