package lsmkv

import (
	"errors"
	"testing"
)

func Test_PutGetU32RoundTrip(t *testing.T) {
	buf := make([]byte, uint32Size)
	if err := putU32(buf, 0xdeadbeef); err != nil {
		t.Fatalf("putU32 failed: %v", err)
	}

	v, err := getU32(buf)
	if err != nil {
		t.Fatalf("getU32 failed: %v", err)
	}
	if v != 0xdeadbeef {
		t.Errorf("got %x, want %x", v, 0xdeadbeef)
	}
}

func Test_PutU32ShortBufferFails(t *testing.T) {
	buf := make([]byte, uint32Size-1)
	if err := putU32(buf, 1); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("expected ErrBufferTooSmall, got %v", err)
	}
}

func Test_GetU32ShortBufferFails(t *testing.T) {
	buf := make([]byte, uint32Size-1)
	if _, err := getU32(buf); !errors.Is(err, ErrCorruptData) {
		t.Errorf("expected ErrCorruptData, got %v", err)
	}
}

func Test_CopyDataShortDestFails(t *testing.T) {
	dst := make([]byte, 2)
	src := make([]byte, 4)
	if err := copyData(dst, src, 4); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("expected ErrBufferTooSmall, got %v", err)
	}
}

func Test_CopyDataShortSrcFails(t *testing.T) {
	dst := make([]byte, 4)
	src := make([]byte, 2)
	if err := copyData(dst, src, 4); !errors.Is(err, ErrCorruptData) {
		t.Errorf("expected ErrCorruptData, got %v", err)
	}
}
