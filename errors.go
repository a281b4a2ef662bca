package lsmkv

import (
	"github.com/cockroachdb/errors"
)

// Error kinds returned by the engine. Callers should compare with
// errors.Is, not with the sentinel's identity directly, since most
// returned errors are wrapped with operation context.
var (
	// ErrCorruptData is returned when a read observes lengths or counts
	// inconsistent with the file (zero key_len, a block with no entries,
	// a trailing count that exceeds the file size, ...).
	ErrCorruptData = errors.New("lsmkv: corrupt data")

	// ErrEntryTooLarge is returned when an entry's encoded size exceeds
	// the data block size minus the minimum metadata tail. Unrecoverable
	// for that write.
	ErrEntryTooLarge = errors.New("lsmkv: entry too large for block size")

	// ErrBufferTooSmall signals internal serialization API misuse.
	ErrBufferTooSmall = errors.New("lsmkv: buffer too small")

	// ErrIo wraps an underlying filesystem failure.
	ErrIo = errors.New("lsmkv: io error")

	// ErrLogic signals an invariant violation, e.g. merging an absent level.
	ErrLogic = errors.New("lsmkv: logic error")
)

// wrapIo wraps an *os.File-returned error as ErrIo, preserving the
// original error for errors.Is/errors.As and keeping a stack trace.
func wrapIo(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrIo)
}

func wrapCorrupt(format string, args ...interface{}) error {
	return errors.Wrapf(ErrCorruptData, format, args...)
}

func wrapLogic(format string, args ...interface{}) error {
	return errors.Wrapf(ErrLogic, format, args...)
}
