package article

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func sampleRecord(t *testing.T) Record {
	t.Helper()
	published, err := time.Parse("2006-01-02T15:04:05-0700", "2023-05-01T10:00:00+1000")
	require.NoError(t, err)
	updated := time.Date(2023, 5, 2, 8, 30, 15, 250, time.FixedZone("", -5*3600))
	byline := "Residents are bracing for the storm."
	return Record{
		Title:              "Storm heads north",
		TimestampPublished: &published,
		TimestampUpdated:   &updated,
		Byline:             &byline,
		Content:            "Firstparagraph.Second.",
		Tags:               []string{"weather", "queensland", "weather"},
		SchemaVersion:      SchemaVersion,
	}
}

func requireSameRecord(t *testing.T, want, got Record) {
	t.Helper()
	require.Equal(t, want.Title, got.Title)
	require.Equal(t, want.Authors, got.Authors)
	require.Equal(t, want.Byline, got.Byline)
	require.Equal(t, want.Content, got.Content)
	require.Equal(t, want.Tags, got.Tags)
	require.Equal(t, want.SchemaVersion, got.SchemaVersion)
	requireSameTime(t, want.TimestampPublished, got.TimestampPublished)
	requireSameTime(t, want.TimestampUpdated, got.TimestampUpdated)
}

func requireSameTime(t *testing.T, want, got *time.Time) {
	t.Helper()
	if want == nil {
		require.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	require.True(t, want.Equal(*got), "want %s got %s", want, got)
	_, wantOffset := want.Zone()
	_, gotOffset := got.Zone()
	require.Equal(t, wantOffset, gotOffset)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	cases := map[string]Record{
		"full":    sampleRecord(t),
		"minimal": New(),
		"authors present but empty": {
			Authors:       []string{},
			Tags:          []string{},
			SchemaVersion: SchemaVersion,
		},
		"authors": {
			Title:         "Budget",
			Authors:       []string{"A. Writer", "B. Editor"},
			Tags:          []string{},
			SchemaVersion: SchemaVersion,
		},
		"nil tags": {
			Title:         "Untagged",
			SchemaVersion: SchemaVersion,
		},
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			raw, err := Encode(rec)
			require.NoError(t, err)
			got, err := Decode(raw)
			require.NoError(t, err)
			requireSameRecord(t, rec, got)
		})
	}
}

func TestDecodeKeepsNilAndEmptyTagsDistinct(t *testing.T) {
	t.Parallel()

	raw, err := Encode(Record{Title: "x", SchemaVersion: SchemaVersion})
	require.NoError(t, err)
	got, err := Decode(raw)
	require.NoError(t, err)
	require.Nil(t, got.Tags)

	raw, err = Encode(New())
	require.NoError(t, err)
	got, err = Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, got.Tags)
	require.Empty(t, got.Tags)
}

func TestEncodeRejectsUnsupportedVersion(t *testing.T) {
	t.Parallel()

	for _, version := range []uint32{0, 2} {
		_, err := Encode(Record{Title: "x", SchemaVersion: version})
		require.ErrorIs(t, err, ErrUnsupportedVersion)
	}
}

func TestEncodeRejectsInvalidUTF8(t *testing.T) {
	t.Parallel()

	rec := New()
	rec.Tags = []string{"ok", string([]byte{0xff, 0xfe})}
	_, err := Encode(rec)
	require.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	t.Parallel()

	var b []byte
	b = protowire.AppendTag(b, fieldSchemaVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)
	b = protowire.AppendTag(b, fieldTitle, protowire.BytesType)
	b = protowire.AppendString(b, "future")

	_, err := Decode(b)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeRejectsMissingVersion(t *testing.T) {
	t.Parallel()

	var b []byte
	b = protowire.AppendTag(b, fieldTitle, protowire.BytesType)
	b = protowire.AppendString(b, "no version")

	_, err := Decode(b)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	t.Parallel()

	raw, err := Encode(sampleRecord(t))
	require.NoError(t, err)
	raw = protowire.AppendTag(raw, 42, protowire.BytesType)
	raw = protowire.AppendString(raw, "added by a newer writer")

	got, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "Storm heads north", got.Title)
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	t.Parallel()

	raw, err := Encode(sampleRecord(t))
	require.NoError(t, err)

	_, err = Decode(raw[:len(raw)-3])
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeArbitraryText(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte("hello"))
	require.Error(t, err)
}
