package lsmkv

import "bytes"

// Field is an opaque byte string. Ordering is lexicographic over bytes;
// equality is byte-equality. A valid field has length >= 1.
type Field []byte

// Compare returns -1, 0 or 1 the way bytes.Compare does.
func (f Field) Compare(other Field) int {
	return bytes.Compare(f, other)
}

func (f Field) clone() Field {
	out := make(Field, len(f))
	copy(out, f)
	return out
}

// Entry is an ordered (key, value) pair. Neither field may be empty.
// Entries are totally ordered by key.
type Entry struct {
	Key   Field
	Value Field
}

// entryMetadataSize is the per-entry header: u32 key_len | u32 value_len.
const entryMetadataSize = 2 * uint32Size

// EncodedSize returns the on-disk size of the entry: 8 + len(key) + len(value).
func (e Entry) EncodedSize() int {
	return entryMetadataSize + len(e.Key) + len(e.Value)
}

// SerializeTo writes the length-prefixed encoding of e into buf, starting
// at offset 0: u32 key_len | u32 value_len | key_bytes | value_bytes,
// little-endian. Returns the number of bytes written. Fails with
// ErrBufferTooSmall if buf can't hold the whole encoding.
func (e Entry) SerializeTo(buf []byte) (int, error) {
	need := e.EncodedSize()
	if len(buf) < need {
		return 0, ErrBufferTooSmall
	}

	if err := putU32(buf, uint32(len(e.Key))); err != nil {
		return 0, err
	}
	if err := putU32(buf[uint32Size:], uint32(len(e.Value))); err != nil {
		return 0, err
	}
	offset := entryMetadataSize
	copy(buf[offset:], e.Key)
	offset += len(e.Key)
	copy(buf[offset:], e.Value)

	return need, nil
}

// EntryFrom reads one entry encoded at the start of buf. Fails with
// ErrCorruptData if either length is zero or exceeds what buf holds.
func EntryFrom(buf []byte) (Entry, error) {
	keyLen, err := getU32(buf)
	if err != nil {
		return Entry{}, err
	}
	valueLen, err := getU32(buf[uint32Size:])
	if err != nil {
		return Entry{}, err
	}
	if keyLen == 0 || valueLen == 0 {
		return Entry{}, wrapCorrupt("entry: zero-length key (%d) or value (%d)", keyLen, valueLen)
	}

	offset := entryMetadataSize
	key := make(Field, keyLen)
	if err := copyData(key, buf[offset:], int(keyLen)); err != nil {
		return Entry{}, err
	}
	offset += int(keyLen)

	value := make(Field, valueLen)
	if err := copyData(value, buf[offset:], int(valueLen)); err != nil {
		return Entry{}, err
	}

	return Entry{Key: key, Value: value}, nil
}

// Less orders entries by key, ascending.
func (e Entry) Less(other Entry) bool {
	return e.Key.Compare(other.Key) < 0
}
