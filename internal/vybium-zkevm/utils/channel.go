package utils

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
)

// Channel is a Fiat-Shamir transcript. Everything the composition layer
// receives from it is a deterministic function of what was sent.
type Channel struct {
	state    []byte
	log      []string
	hashFunc string
}

// NewChannel creates a new Fiat-Shamir channel
func NewChannel(hashFunc string) *Channel {
	if hashFunc == "" {
		hashFunc = "sha3"
	}
	c := &Channel{
		log:      make([]string, 0, 16),
		hashFunc: hashFunc,
	}
	c.state = c.hash([]byte{0})
	return c
}

// Send absorbs data into the channel state
func (c *Channel) Send(data []byte) {
	c.log = append(c.log, fmt.Sprintf("send:%s", hex.EncodeToString(data)))
	c.state = c.hash(append(c.state, data...))
}

// SendElements absorbs field elements in little-endian byte order
func (c *Channel) SendElements(elems []field.Element) {
	buf := make([]byte, 8*len(elems))
	for i, e := range elems {
		binary.LittleEndian.PutUint64(buf[8*i:], e.Value())
	}
	c.Send(buf)
}

// ReceiveRandomElement squeezes a Goldilocks element from the state.
// The first eight state bytes are reduced modulo P; the bias is below 2^-32.
func (c *Channel) ReceiveRandomElement() field.Element {
	v := binary.LittleEndian.Uint64(c.state[:8]) % field.P
	c.log = append(c.log, fmt.Sprintf("receive:%d", v))
	c.state = c.hash(c.state)
	return field.New(v)
}

// ReceiveRandomElements squeezes n elements
func (c *Channel) ReceiveRandomElements(n int) []field.Element {
	out := make([]field.Element, n)
	for i := range out {
		out[i] = c.ReceiveRandomElement()
	}
	return out
}

// State returns the current channel state
func (c *Channel) State() []byte {
	return append([]byte(nil), c.state...)
}

// Log returns the transcript of sends and receives
func (c *Channel) Log() []string {
	return append([]string(nil), c.log...)
}

func (c *Channel) hash(data []byte) []byte {
	switch c.hashFunc {
	case "sha256":
		h := sha256.Sum256(data)
		return h[:]
	default:
		h := sha3.Sum256(data)
		return h[:]
	}
}
