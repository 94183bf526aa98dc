package gourdianguard

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/google/uuid"
)

// Stored session sets use a small versioned binary layout:
//
//	magic   byte    'g'
//	version byte
//	count   uint32
//	count × record:
//	    id               [16]byte
//	    access token     uint32 length + bytes
//	    refresh token    uint32 length + bytes
//	    client type      uint32 length + bytes
//	    access issued    int64 unix nanoseconds
//	    access ttl       int64 nanoseconds
//	    refresh issued   int64 unix nanoseconds
//	    refresh ttl      int64 nanoseconds
//	crc32   uint32  IEEE checksum of everything before it
//
// All integers are big-endian.
const (
	sessionSetMagic          byte = 'g'
	sessionSetFormatVersion1 byte = 1

	sessionSetHeaderSize  = 1 + 1 + 4
	sessionSetTrailerSize = 4
	minRecordSize         = 16 + 3*4 + 4*8
	maxTokenLength        = 64 * 1024
)

// EncodeSessionSet serializes a set in the current format version.
func EncodeSessionSet(set SessionSet) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(sessionSetHeaderSize + len(set)*256 + sessionSetTrailerSize)

	buf.WriteByte(sessionSetMagic)
	buf.WriteByte(sessionSetFormatVersion1)
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(set))); err != nil {
		return nil, err
	}

	for _, r := range set {
		buf.Write(r.ID[:])
		for _, s := range []string{r.AccessToken, r.RefreshToken, r.ClientType} {
			if len(s) > maxTokenLength {
				return nil, fmt.Errorf("session field too long: %d bytes", len(s))
			}
			if err := binary.Write(&buf, binary.BigEndian, uint32(len(s))); err != nil {
				return nil, err
			}
			buf.WriteString(s)
		}
		for _, v := range []int64{
			r.AccessIssuedAt.UnixNano(),
			int64(r.AccessTTL),
			r.RefreshIssuedAt.UnixNano(),
			int64(r.RefreshTTL),
		} {
			if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
				return nil, err
			}
		}
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())
	if err := binary.Write(&buf, binary.BigEndian, sum); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSessionSet parses data written by EncodeSessionSet. Every failure wraps
// ErrCorruptSessionSet.
func DecodeSessionSet(data []byte) (SessionSet, error) {
	if len(data) < sessionSetHeaderSize+sessionSetTrailerSize {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrCorruptSessionSet, len(data))
	}

	body := data[:len(data)-sessionSetTrailerSize]
	want := binary.BigEndian.Uint32(data[len(data)-sessionSetTrailerSize:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptSessionSet)
	}
	if body[0] != sessionSetMagic {
		return nil, fmt.Errorf("%w: bad magic byte %#x", ErrCorruptSessionSet, body[0])
	}
	if body[1] != sessionSetFormatVersion1 {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorruptSessionSet, body[1])
	}

	count := binary.BigEndian.Uint32(body[2:6])
	reader := bytes.NewReader(body[sessionSetHeaderSize:])
	if uint64(count)*minRecordSize > uint64(reader.Len()) {
		return nil, fmt.Errorf("%w: record count %d exceeds payload", ErrCorruptSessionSet, count)
	}

	set := make(SessionSet, 0, count)
	for i := uint32(0); i < count; i++ {
		r, err := decodeRecord(reader)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptSessionSet, i, err)
		}
		set = append(set, r)
	}
	if reader.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptSessionSet, reader.Len())
	}
	return set, nil
}

func decodeRecord(reader *bytes.Reader) (SessionRecord, error) {
	var r SessionRecord

	var id uuid.UUID
	if _, err := io.ReadFull(reader, id[:]); err != nil {
		return r, err
	}
	r.ID = id

	fields := []*string{&r.AccessToken, &r.RefreshToken, &r.ClientType}
	for _, f := range fields {
		var n uint32
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return r, err
		}
		if n > maxTokenLength || int64(n) > int64(reader.Len()) {
			return r, fmt.Errorf("field length %d out of range", n)
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(reader, b); err != nil {
			return r, err
		}
		*f = string(b)
	}

	var nums [4]int64
	for i := range nums {
		if err := binary.Read(reader, binary.BigEndian, &nums[i]); err != nil {
			return r, err
		}
	}
	if nums[1] < 0 || nums[3] < 0 {
		return r, fmt.Errorf("negative ttl")
	}
	r.AccessIssuedAt = time.Unix(0, nums[0])
	r.AccessTTL = time.Duration(nums[1])
	r.RefreshIssuedAt = time.Unix(0, nums[2])
	r.RefreshTTL = time.Duration(nums[3])
	return r, nil
}
