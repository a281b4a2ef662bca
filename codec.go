package lsmkv

import "encoding/binary"

// uint32Size is the on-disk width of every length/offset/count field in
// the SSTable format. Kept as a named constant rather than a repeated
// binary.Size call since it also defines the trailing metadata unit.
const uint32Size = 4

// putU32 writes v as a little-endian u32 at the start of dst.
// Fails with ErrBufferTooSmall when dst can't hold 4 bytes.
func putU32(dst []byte, v uint32) error {
	if len(dst) < uint32Size {
		return ErrBufferTooSmall
	}
	binary.LittleEndian.PutUint32(dst, v)
	return nil
}

// getU32 reads a little-endian u32 from the start of src.
// Fails with ErrCorruptData when src is shorter than 4 bytes.
func getU32(src []byte) (uint32, error) {
	if len(src) < uint32Size {
		return 0, wrapCorrupt("codec: need %d bytes for u32, have %d", uint32Size, len(src))
	}
	return binary.LittleEndian.Uint32(src), nil
}

// copyData copies n bytes from src into dst starting at offset 0,
// failing with ErrCorruptData if src does not hold n bytes.
func copyData(dst []byte, src []byte, n int) error {
	if len(src) < n {
		return wrapCorrupt("codec: need %d bytes of data, have %d", n, len(src))
	}
	if len(dst) < n {
		return ErrBufferTooSmall
	}
	copy(dst[:n], src[:n])
	return nil
}
