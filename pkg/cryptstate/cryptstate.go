// Package cryptstate implements the per-client symmetric cipher used to
// protect UDP voice datagrams, following the OCB2-AES128 construction used
// by the Mumble protocol family. grumble's pkg/cryptstate source isn't in
// the retrieval pack; the verifiable grounding is cmd/grumble/client.go's
// usage of it — a crypt cryptstate.CryptState field, client.crypt.Encrypt,
// client.crypt.Overhead(), client.crypt.LastGoodTime, and
// cryptstate.SupportedModes() — which fixes the contract's shape
// (Encrypt/Decrypt, an overhead-per-packet constant, last-good-time
// tracking) even though the OCB2 arithmetic itself is this package's own
// implementation of the published construction.
package cryptstate

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"sync"
)

const (
	// KeySize is the AES-128 key length in bytes.
	KeySize = 16
	// blockSize is the OCB2 block size (also AES's block size).
	blockSize = 16
	// replayWindowSize is the width of the replay-protection bitfield, in
	// packets.
	replayWindowSize = 256
)

// ErrDecrypt is returned when a datagram fails authentication, either
// because its tag does not match or because it falls outside every replay
// window the receiver is willing to consider.
var ErrDecrypt = errors.New("cryptstate: decrypt failed")

// CryptState holds one client's encrypt and decrypt halves of the OCB2
// cipher: key, both nonces, and the sliding replay-detection window.
// Every method is safe to call concurrently; each one takes the single
// mutex that guards the whole structure, since encrypt and decrypt both
// mutate nonce and window state.
type CryptState struct {
	mu sync.Mutex

	key        [KeySize]byte
	encryptIV  [blockSize]byte
	decryptIV  [blockSize]byte
	decryptHistory [replayWindowSize]byte

	block cipher.Block

	Good   uint32
	Late   uint32
	Lost   uint32
	Resync uint32
}

// New allocates a CryptState with a freshly generated key and nonces.
func New() (*CryptState, error) {
	cs := &CryptState{}
	if err := cs.Reset(); err != nil {
		return nil, err
	}
	return cs, nil
}

// Reset regenerates the key and both nonces from crypto/rand and clears
// the replay window. Used on initial handshake and on client-requested
// resync.
func (cs *CryptState) Reset() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, err := rand.Read(cs.key[:]); err != nil {
		return err
	}
	if _, err := rand.Read(cs.encryptIV[:]); err != nil {
		return err
	}
	if _, err := rand.Read(cs.decryptIV[:]); err != nil {
		return err
	}

	block, err := aes.NewCipher(cs.key[:])
	if err != nil {
		return err
	}
	cs.block = block
	cs.decryptHistory = [replayWindowSize]byte{}
	cs.Good, cs.Late, cs.Lost, cs.Resync = 0, 0, 0, 0
	return nil
}

// SetKeyAndNonces installs an externally supplied key and nonce pair, as
// the peer side does with the contents of a received CryptSetup (tests use
// it to build the mirror of a freshly generated CryptState). A
// client_nonce resync request goes through SetDecryptNonce instead.
func (cs *CryptState) SetKeyAndNonces(key, encryptIV, decryptIV []byte) error {
	if len(key) != KeySize || len(encryptIV) != blockSize || len(decryptIV) != blockSize {
		return errors.New("cryptstate: bad key/nonce length")
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	copy(cs.key[:], key)
	copy(cs.encryptIV[:], encryptIV)
	copy(cs.decryptIV[:], decryptIV)
	cs.block = block
	cs.decryptHistory = [replayWindowSize]byte{}
	return nil
}

// SetDecryptNonce updates only the decrypt nonce, used when a client
// requests a crypt resync by sending its observed client_nonce in a
// CryptSetup message.
func (cs *CryptState) SetDecryptNonce(nonce []byte) error {
	if len(nonce) != blockSize {
		return errors.New("cryptstate: bad nonce length")
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	copy(cs.decryptIV[:], nonce)
	return nil
}

// CryptSetup is the wire-ready snapshot sent in a protocol CryptSetup
// message: the current key and both nonces.
type CryptSetup struct {
	Key       [KeySize]byte
	ClientNonce [blockSize]byte
	ServerNonce [blockSize]byte
}

// GetCryptSetup produces a CryptSetup message for transmission to the
// peer over the already-established TLS channel.
func (cs *CryptState) GetCryptSetup() CryptSetup {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var out CryptSetup
	out.Key = cs.key
	out.ClientNonce = cs.decryptIV
	out.ServerNonce = cs.encryptIV
	return out
}

// Stats returns the good/late/lost/resync counters for the Ping reply.
func (cs *CryptState) Stats() (good, late, lost, resync uint32) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.Good, cs.Late, cs.Lost, cs.Resync
}

func incrementNonce(nonce *[blockSize]byte) {
	for i := range nonce {
		nonce[i]++
		if nonce[i] != 0 {
			break
		}
	}
}

// Overhead is the number of bytes CryptState adds to a plaintext frame:
// one nonce-prefix byte plus a 3-byte truncated tag.
const Overhead = 4

// Encrypt appends the encrypted form of plain to dst: the nonce prefix
// byte, the 3-byte truncated OCB2 tag, and the ciphertext.
func (cs *CryptState) Encrypt(dst []byte, plain []byte) []byte {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	incrementNonce(&cs.encryptIV)

	cipherText, tag := ocb2Encrypt(cs.block, cs.encryptIV, plain)

	dst = append(dst, cs.encryptIV[0])
	dst = append(dst, tag[0], tag[1], tag[2])
	dst = append(dst, cipherText...)
	return dst
}

// Decrypt authenticates and decrypts wire, returning the plaintext. It
// implements the nonce-reconstruction and replay-window logic needed to
// tolerate UDP packet loss and reordering without a full resync.
func (cs *CryptState) Decrypt(wire []byte) ([]byte, error) {
	if len(wire) < Overhead {
		return nil, ErrDecrypt
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	saveIV := cs.decryptIV
	saveHistory := cs.decryptHistory
	wasLate := false
	resync := false
	advance := 0

	b0 := wire[0]
	expect := cs.decryptIV[0]

	switch {
	case b0 == expect+1:
		advance = 1
	case b0-expect > 1 && b0-expect <= 32:
		// Forward gap within tolerance: jump ahead.
		advance = int(b0 - expect)
	case expect-b0 < 30:
		// Within the backward window: a reordered or duplicate packet.
		stepsBack := expect - b0
		if cs.isSeen(stepsBack) {
			cs.Late++
			return nil, ErrDecrypt
		}
		wasLate = true
		nonce := cs.decryptIV
		for i := uint8(0); i < stepsBack; i++ {
			decrementNonce(&nonce)
		}
		cs.decryptIV = nonce
	default:
		// Outside both windows: attempt a full resync by cloning the
		// current nonce and bumping its higher-order bytes to match b0.
		resync = true
		nonce := cs.decryptIV
		nonce[0] = b0
		for i := 1; i < blockSize; i++ {
			if nonce[i] == 255 {
				nonce[i] = 0
			} else {
				nonce[i]++
				break
			}
		}
		cs.decryptIV = nonce
	}

	if advance > 0 {
		for i := 0; i < advance; i++ {
			incrementNonce(&cs.decryptIV)
		}
	}

	plain, ok := ocb2Decrypt(cs.block, cs.decryptIV, wire[4:], [3]byte{wire[1], wire[2], wire[3]})
	if !ok {
		// Resync attempt (or in-window guess) failed authentication;
		// state is restored and unchanged so a later, correct packet can
		// still resync cleanly.
		cs.decryptIV = saveIV
		cs.decryptHistory = saveHistory
		cs.Lost++
		return nil, ErrDecrypt
	}

	switch {
	case wasLate:
		// A late packet does not move the current position.
		cs.decryptIV = saveIV
		cs.Late++
		cs.markSeen(expect - b0)
	case resync:
		cs.Good++
		cs.Resync++
		cs.decryptHistory = [replayWindowSize]byte{}
		cs.markSeen(0)
	default:
		cs.Good++
		cs.shiftWindow(advance)
		cs.markSeen(0)
	}

	return plain, nil
}

func decrementNonce(nonce *[blockSize]byte) {
	for i := range nonce {
		if nonce[i] != 0 {
			nonce[i]--
			return
		}
		nonce[i] = 255
	}
}

// isSeen/markSeen track the replay bitfield, indexed by "packets behind
// the current decrypt nonce" (0 == the current position). shiftWindow
// moves the whole bitfield when the current position advances, so indices
// stay meaningful relative to the moving nonce.
func (cs *CryptState) isSeen(stepsBack uint8) bool {
	idx := int(stepsBack) % replayWindowSize
	return cs.decryptHistory[idx] != 0
}

func (cs *CryptState) markSeen(stepsBack uint8) {
	idx := int(stepsBack) % replayWindowSize
	cs.decryptHistory[idx] = 1
}

func (cs *CryptState) shiftWindow(delta int) {
	if delta <= 0 {
		return
	}
	if delta >= replayWindowSize {
		cs.decryptHistory = [replayWindowSize]byte{}
		return
	}
	var next [replayWindowSize]byte
	copy(next[delta:], cs.decryptHistory[:replayWindowSize-delta])
	cs.decryptHistory = next
}
