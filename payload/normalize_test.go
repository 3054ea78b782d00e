package payload_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zakharovvi/hec-forwarder/payload"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var b bytes.Buffer
	zw := gzip.NewWriter(&b)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return b.Bytes()
}

func eventsJSON(t *testing.T, events []payload.Event) string {
	t.Helper()
	b, err := json.Marshal(events)
	require.NoError(t, err)

	return string(b)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	records := `{"records": [
		{"stream": "datasafe", "partition": "0", "offset": 10, "value": "` + b64(`{"id":1,"op":"LOGIN"}`) + `"},
		{"stream": "datasafe", "partition": "0", "offset": 11, "value": "` + b64(`{"id":2,"op":"LOGOUT"}`) + `"},
		{"stream": "datasafe", "partition": "0", "offset": 12, "value": "` + b64(`"plain string"`) + `"}
	]}`

	tests := []struct {
		name string
		raw  any
		want string
	}{
		{
			name: "records envelope",
			raw:  records,
			want: `[{"id":1,"op":"LOGIN"},{"id":2,"op":"LOGOUT"},"plain string"]`,
		},
		{
			name: "records envelope as bytes",
			raw:  []byte(records),
			want: `[{"id":1,"op":"LOGIN"},{"id":2,"op":"LOGOUT"},"plain string"]`,
		},
		{
			name: "records envelope as reader",
			raw:  bytes.NewReader([]byte(records)),
			want: `[{"id":1,"op":"LOGIN"},{"id":2,"op":"LOGOUT"},"plain string"]`,
		},
		{
			name: "gzip empty records",
			raw:  gz(t, `{"records":[]}`),
			want: `[]`,
		},
		{
			name: "gzip reader",
			raw:  bytes.NewBuffer(gz(t, `{"value": "`+b64(`{"x":1}`)+`"}`)),
			want: `[{"x":1}]`,
		},
		{
			name: "gzip members are concatenated",
			raw:  append(gz(t, `[{"a":1}`), gz(t, `,{"b":2}]`)...),
			want: `[{"a":1},{"b":2}]`,
		},
		{
			name: "plain object",
			raw:  `{"a":1}`,
			want: `[{"a":1}]`,
		},
		{
			name: "single record is wrapped",
			raw:  `{"value": "` + b64(`{"x":1}`) + `"}`,
			want: `[{"x":1}]`,
		},
		{
			name: "list of records with pass-through",
			raw:  `[{"value": "` + b64(`{"x":1}`) + `"}, {"y": 2}, 3, "s", null]`,
			want: `[{"x":1},{"y":2},3,"s",null]`,
		},
		{
			name: "empty list",
			raw:  `[]`,
			want: `[]`,
		},
		{
			name: "scalar",
			raw:  json.RawMessage(`42`),
			want: `[42]`,
		},
		{
			name: "json null is an event",
			raw:  `null`,
			want: `[null]`,
		},
		{
			name: "large numbers are preserved",
			raw:  `{"value": "` + b64(`{"seq":12345678901234567890}`) + `"}`,
			want: `[{"seq":12345678901234567890}]`,
		},
		{
			name: "decoded map",
			raw:  map[string]any{"value": b64(`{"x":1}`)},
			want: `[{"x":1}]`,
		},
		{
			name: "decoded list",
			raw:  []any{map[string]any{"a": 1}, map[string]any{"value": b64(`[1,2]`)}},
			want: `[{"a":1},[1,2]]`,
		},
		{
			name: "surrounding whitespace",
			raw:  "\n\t {\"a\":1} \n",
			want: `[{"a":1}]`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			events, err := payload.Normalize(tt.raw)
			require.NoError(t, err)
			require.NotNil(t, events)
			assert.JSONEq(t, tt.want, eventsJSON(t, events))
		})
	}
}

func TestNormalize_PreservesOrder(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	var want []string
	sb.WriteString(`{"records":[`)
	for i := 0; i < 100; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		doc := `{"n":` + strings.Repeat("1", i%5+1) + `,"i":"` + string(rune('a'+i%26)) + `"}`
		want = append(want, doc)
		sb.WriteString(`{"value":"` + b64(doc) + `"}`)
	}
	sb.WriteString(`]}`)

	events, err := payload.Normalize(sb.String())
	require.NoError(t, err)
	require.Len(t, events, len(want))
	for i := range want {
		assert.JSONEq(t, want[i], string(events[i]))
	}
}

func TestNormalize_Errors(t *testing.T) {
	t.Parallel()

	truncated := gz(t, `{"records":[]}`)
	truncated = truncated[:len(truncated)-6]

	corrupt := gz(t, `{"a":1}`)
	corrupt[len(corrupt)-5] ^= 0xff

	tests := []struct {
		name    string
		raw     any
		wantErr error
	}{
		{"nil", nil, payload.ErrNoData},
		{"empty bytes", []byte{}, payload.ErrNoData},
		{"empty string", "", payload.ErrNoData},
		{"blank string", " \n\t", payload.ErrNoData},
		{"failing reader", errReader{}, payload.ErrRead},
		{"truncated gzip", truncated, payload.ErrDecompression},
		{"corrupt gzip", corrupt, payload.ErrDecompression},
		{"gzip header only", []byte{0x1f, 0x8b}, payload.ErrDecompression},
		{"invalid utf-8", []byte{'"', 0xff, 0xfe, '"'}, payload.ErrDecoding},
		{"invalid utf-8 string", "\"\xff\"", payload.ErrDecoding},
		{"gzip with trailing garbage", append(gz(t, `{"a":1}`), []byte("garbage after the member")...), payload.ErrDecompression},
		{"gzip with short trailing garbage", append(gz(t, `{"a":1}`), []byte("xyz")...), payload.ErrDecompression},
		{"second gzip member is corrupt", append(gz(t, `{"a":1}`), corrupt...), payload.ErrDecompression},
		{"invalid json", `{"a":`, payload.ErrParse},
		{"trailing data", `{"a":1} {"b":2}`, payload.ErrParse},
		{"gzip of empty text", gz(t, ""), payload.ErrParse},
		{"record missing value", `{"records":[{"key":"k"}]}`, payload.ErrRecordDecode},
		{"record is not an object", `{"records":["x"]}`, payload.ErrRecordDecode},
		{"records is not an array", `{"records":{"value":"e30="}}`, payload.ErrRecordDecode},
		{"records is null", `{"records":null}`, payload.ErrRecordDecode},
		{"invalid base64", `{"records":[{"value":"e30="},{"value":"!!!"}]}`, payload.ErrRecordDecode},
		{"value is not a string", `{"value": 1}`, payload.ErrRecordDecode},
		{"value is not json", `{"value":"` + b64("not json") + `"}`, payload.ErrRecordDecode},
		{"value is not utf-8", `{"value":"` + base64.StdEncoding.EncodeToString([]byte{0xff}) + `"}`, payload.ErrRecordDecode},
		{"list element is not json", `[{"a":1},{"value":"` + b64("{") + `"}]`, payload.ErrRecordDecode},
		{"unsupported go value", func() {}, payload.ErrParse},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			events, err := payload.Normalize(tt.raw)
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, events)
		})
	}
}

func TestNormalize_RecordIndexInError(t *testing.T) {
	t.Parallel()

	_, err := payload.Normalize(`{"records":[{"value":"e30="},{"value":"e30="},{"value":"%%%"}]}`)
	require.ErrorIs(t, err, payload.ErrRecordDecode)
	require.ErrorContains(t, err, "record 2")
}

func TestNormalizer_MaxDecompressedBytes(t *testing.T) {
	t.Parallel()

	doc := `{"a":"` + strings.Repeat("x", 1024) + `"}`
	n := payload.NewNormalizer(context.Background(), payload.WithMaxDecompressedBytes(512))
	_, err := n.Normalize(gz(t, doc))
	require.ErrorIs(t, err, payload.ErrDecompression)

	n = payload.NewNormalizer(context.Background(), payload.WithMaxDecompressedBytes(int64(len(doc))))
	events, err := n.Normalize(gz(t, doc))
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestNormalizer_MaxDecompressedBytesNonPositive(t *testing.T) {
	t.Parallel()

	for _, limit := range []int64{0, -1} {
		n := payload.NewNormalizer(context.Background(), payload.WithMaxDecompressedBytes(limit))
		events, err := n.Normalize(gz(t, `{"a":1}`))
		require.NoError(t, err, "limit %d must fall back to the default", limit)
		require.Len(t, events, 1)
	}
}

func TestNormalizer_MaxDecompressedBytesAcrossMembers(t *testing.T) {
	t.Parallel()

	n := payload.NewNormalizer(context.Background(), payload.WithMaxDecompressedBytes(10))
	_, err := n.Normalize(append(gz(t, `["aaaaaa",`), gz(t, `"bbbbbb"]`)...))
	require.ErrorIs(t, err, payload.ErrDecompression)
}

func TestDecodeRecord(t *testing.T) {
	t.Parallel()

	event, err := payload.DecodeRecord(b64(" {\"x\":1}\n"))
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(event))

	_, err = payload.DecodeRecord("not base64!")
	require.Error(t, err)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}
