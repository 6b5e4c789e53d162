package article

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the encoded record. Numbers are never reused.
const (
	fieldTitle          protowire.Number = 1
	fieldAuthors        protowire.Number = 2
	fieldPublished      protowire.Number = 3
	fieldUpdated        protowire.Number = 4
	fieldByline         protowire.Number = 5
	fieldContent        protowire.Number = 6
	fieldTags           protowire.Number = 7
	fieldSchemaVersion  protowire.Number = 8
	fieldAuthorsPresent protowire.Number = 9
	fieldTagsPresent    protowire.Number = 10
)

// Timestamp sub-message fields.
const (
	fieldTSSeconds protowire.Number = 1
	fieldTSNanos   protowire.Number = 2
	fieldTSOffset  protowire.Number = 3
)

var (
	// ErrInvalidUTF8 is returned by Encode when a string field is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("string field is not valid utf-8")
	// ErrUnsupportedVersion is returned by Encode and Decode for any schema version other than SchemaVersion.
	ErrUnsupportedVersion = errors.New("unsupported schema version")
	// ErrMalformed is returned by Decode when the payload is not a valid encoded record.
	ErrMalformed = errors.New("malformed record")
)

// Encode serializes r into its binary store form. Build records with New so the version is set.
func Encode(r Record) ([]byte, error) {
	if r.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, r.SchemaVersion)
	}
	if err := validateStrings(r); err != nil {
		return nil, err
	}

	b := make([]byte, 0, 64+len(r.Content))
	b = protowire.AppendTag(b, fieldSchemaVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.SchemaVersion))

	b = protowire.AppendTag(b, fieldTitle, protowire.BytesType)
	b = protowire.AppendString(b, r.Title)

	if r.Authors != nil {
		b = protowire.AppendTag(b, fieldAuthorsPresent, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
		for _, a := range r.Authors {
			b = protowire.AppendTag(b, fieldAuthors, protowire.BytesType)
			b = protowire.AppendString(b, a)
		}
	}
	if r.TimestampPublished != nil {
		b = protowire.AppendTag(b, fieldPublished, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeTimestamp(*r.TimestampPublished))
	}
	if r.TimestampUpdated != nil {
		b = protowire.AppendTag(b, fieldUpdated, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeTimestamp(*r.TimestampUpdated))
	}
	if r.Byline != nil {
		b = protowire.AppendTag(b, fieldByline, protowire.BytesType)
		b = protowire.AppendString(b, *r.Byline)
	}

	b = protowire.AppendTag(b, fieldContent, protowire.BytesType)
	b = protowire.AppendString(b, r.Content)

	if r.Tags != nil {
		b = protowire.AppendTag(b, fieldTagsPresent, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	for _, tag := range r.Tags {
		b = protowire.AppendTag(b, fieldTags, protowire.BytesType)
		b = protowire.AppendString(b, tag)
	}
	return b, nil
}

// Decode parses a binary record and rejects unknown schema versions.
func Decode(b []byte) (Record, error) {
	var r Record
	authorsPresent, tagsPresent := false, false
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Record{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldSchemaVersion && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return Record{}, fmt.Errorf("%w: schema version: %v", ErrMalformed, protowire.ParseError(m))
			}
			r.SchemaVersion = uint32(v)
			n = m
		case (num == fieldAuthorsPresent || num == fieldTagsPresent) && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return Record{}, fmt.Errorf("%w: presence marker %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			if num == fieldAuthorsPresent {
				authorsPresent = v != 0
			} else {
				tagsPresent = v != 0
			}
			n = m
		case typ == protowire.BytesType && isStringField(num):
			s, m := protowire.ConsumeString(b)
			if m < 0 {
				return Record{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			assignString(&r, num, s)
			n = m
		case typ == protowire.BytesType && (num == fieldPublished || num == fieldUpdated):
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Record{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			ts, err := decodeTimestamp(raw)
			if err != nil {
				return Record{}, err
			}
			if num == fieldPublished {
				r.TimestampPublished = &ts
			} else {
				r.TimestampUpdated = &ts
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Record{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}

	if r.SchemaVersion != SchemaVersion {
		return Record{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, r.SchemaVersion)
	}
	if authorsPresent && r.Authors == nil {
		r.Authors = []string{}
	}
	if tagsPresent && r.Tags == nil {
		r.Tags = []string{}
	}
	return r, nil
}

func isStringField(num protowire.Number) bool {
	switch num {
	case fieldTitle, fieldAuthors, fieldByline, fieldContent, fieldTags:
		return true
	default:
		return false
	}
}

func assignString(r *Record, num protowire.Number, s string) {
	switch num {
	case fieldTitle:
		r.Title = s
	case fieldAuthors:
		r.Authors = append(r.Authors, s)
	case fieldByline:
		byline := s
		r.Byline = &byline
	case fieldContent:
		r.Content = s
	case fieldTags:
		r.Tags = append(r.Tags, s)
	}
}

func encodeTimestamp(t time.Time) []byte {
	_, offset := t.Zone()
	var b []byte
	b = protowire.AppendTag(b, fieldTSSeconds, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(t.Unix()))
	b = protowire.AppendTag(b, fieldTSNanos, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.Nanosecond()))
	b = protowire.AppendTag(b, fieldTSOffset, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(offset)))
	return b
}

func decodeTimestamp(b []byte) (time.Time, error) {
	var sec, nanos, offset int64
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return time.Time{}, fmt.Errorf("%w: timestamp: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return time.Time{}, fmt.Errorf("%w: timestamp: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		v, m := protowire.ConsumeVarint(b)
		if m < 0 {
			return time.Time{}, fmt.Errorf("%w: timestamp: %v", ErrMalformed, protowire.ParseError(m))
		}
		switch num {
		case fieldTSSeconds:
			sec = protowire.DecodeZigZag(v)
		case fieldTSNanos:
			nanos = int64(v)
		case fieldTSOffset:
			offset = protowire.DecodeZigZag(v)
		}
		b = b[m:]
	}
	return time.Unix(sec, nanos).In(time.FixedZone("", int(offset))), nil
}

func validateStrings(r Record) error {
	check := func(field, s string) error {
		if !utf8.ValidString(s) {
			return fmt.Errorf("%w: %s", ErrInvalidUTF8, field)
		}
		return nil
	}
	if err := check("title", r.Title); err != nil {
		return err
	}
	for _, a := range r.Authors {
		if err := check("authors", a); err != nil {
			return err
		}
	}
	if r.Byline != nil {
		if err := check("byline", *r.Byline); err != nil {
			return err
		}
	}
	if err := check("content", r.Content); err != nil {
		return err
	}
	for _, tag := range r.Tags {
		if err := check("tags", tag); err != nil {
			return err
		}
	}
	return nil
}
