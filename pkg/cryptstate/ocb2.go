package cryptstate

import "crypto/cipher"

// ocb2Encrypt and ocb2Decrypt implement the OCB2 block cipher mode that
// Mumble layers over AES-128: a sequence of doubling offsets in GF(2^128)
// masks each plaintext/ciphertext block before and after the underlying
// block cipher call, and a running checksum of the plaintext is sealed
// into a tag that authenticates both the ciphertext and its length.

// gfDouble multiplies blk by x in GF(2^128) using the standard
// reduction polynomial (matches the convention used by AES-GCM and OCB).
func gfDouble(blk [blockSize]byte) [blockSize]byte {
	var out [blockSize]byte
	carry := blk[0] & 0x80
	for i := 0; i < blockSize-1; i++ {
		out[i] = (blk[i] << 1) | (blk[i+1] >> 7)
	}
	out[blockSize-1] = blk[blockSize-1] << 1
	if carry != 0 {
		out[blockSize-1] ^= 0x87
	}
	return out
}

func xorBlock(a, b [blockSize]byte) [blockSize]byte {
	var out [blockSize]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func xorBytes(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// ocb2Encrypt encrypts plain under block with the given nonce, returning
// the ciphertext (same length as plain) and a 16-byte authentication tag.
func ocb2Encrypt(block cipher.Block, nonce [blockSize]byte, plain []byte) ([]byte, [blockSize]byte) {
	var offset [blockSize]byte
	block.Encrypt(offset[:], nonce[:])

	cipherText := make([]byte, len(plain))
	var checksum [blockSize]byte

	full := len(plain) / blockSize
	for i := 0; i < full; i++ {
		offset = gfDouble(offset)
		var pBlock, masked, enc [blockSize]byte
		copy(pBlock[:], plain[i*blockSize:(i+1)*blockSize])
		masked = xorBlock(pBlock, offset)
		block.Encrypt(enc[:], masked[:])
		cBlock := xorBlock(enc, offset)
		copy(cipherText[i*blockSize:(i+1)*blockSize], cBlock[:])
		checksum = xorBlock(checksum, pBlock)
	}

	rem := plain[full*blockSize:]
	if len(rem) > 0 {
		offset = gfDouble(offset)
		var pad [blockSize]byte
		block.Encrypt(pad[:], offset[:])

		var lastPlain [blockSize]byte
		copy(lastPlain[:], rem)
		// The unused tail of the pad (beyond len(rem)) folds into the
		// checksum so the tag also authenticates the plaintext length.
		copy(lastPlain[len(rem):], pad[len(rem):])

		out := make([]byte, len(rem))
		xorBytes(out, rem, pad[:len(rem)])
		copy(cipherText[full*blockSize:], out)

		checksum = xorBlock(checksum, lastPlain)
	}

	sum := xorBlock(checksum, offset)
	sum = gfDouble(sum)
	var tag [blockSize]byte
	block.Encrypt(tag[:], sum[:])

	return cipherText, tag
}

// ocb2Decrypt reverses ocb2Encrypt and reports whether the first 3 bytes
// of the recomputed tag match wireTag, the wire's truncated tag.
func ocb2Decrypt(block cipher.Block, nonce [blockSize]byte, cipherText []byte, wireTag [3]byte) ([]byte, bool) {
	var offset [blockSize]byte
	block.Encrypt(offset[:], nonce[:])

	plain := make([]byte, len(cipherText))
	var checksum [blockSize]byte

	full := len(cipherText) / blockSize
	for i := 0; i < full; i++ {
		offset = gfDouble(offset)
		var cBlock, masked, dec [blockSize]byte
		copy(cBlock[:], cipherText[i*blockSize:(i+1)*blockSize])
		masked = xorBlock(cBlock, offset)
		block.Decrypt(dec[:], masked[:])
		pBlock := xorBlock(dec, offset)
		copy(plain[i*blockSize:(i+1)*blockSize], pBlock[:])
		checksum = xorBlock(checksum, pBlock)
	}

	rem := cipherText[full*blockSize:]
	if len(rem) > 0 {
		offset = gfDouble(offset)
		var pad [blockSize]byte
		block.Encrypt(pad[:], offset[:])

		out := make([]byte, len(rem))
		xorBytes(out, rem, pad[:len(rem)])
		copy(plain[full*blockSize:], out)

		var lastPlain [blockSize]byte
		copy(lastPlain[:], out)
		copy(lastPlain[len(rem):], pad[len(rem):])
		checksum = xorBlock(checksum, lastPlain)
	}

	sum := xorBlock(checksum, offset)
	sum = gfDouble(sum)
	var tag [blockSize]byte
	block.Encrypt(tag[:], sum[:])

	if tag[0] != wireTag[0] || tag[1] != wireTag[1] || tag[2] != wireTag[2] {
		return nil, false
	}
	return plain, true
}
