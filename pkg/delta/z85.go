package delta

import (
	"errors"
	"fmt"
)

const z85Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ.-:+=^!/*?&<>()[]{}@%$#"

var z85Decode = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = 0xff
	}
	for i := 0; i < len(z85Alphabet); i++ {
		t[z85Alphabet[i]] = byte(i)
	}
	return t
}()

// decodeZ85 decodes s, whose length must be a multiple of 5.
func decodeZ85(s string) ([]byte, error) {
	if len(s)%5 != 0 {
		return nil, errors.New("z85: length is not a multiple of 5")
	}

	out := make([]byte, 0, len(s)/5*4)
	for i := 0; i < len(s); i += 5 {
		var v uint64
		for j := i; j < i+5; j++ {
			d := z85Decode[s[j]]
			if d == 0xff {
				return nil, fmt.Errorf("z85: invalid character %q at %d", s[j], j)
			}
			v = v*85 + uint64(d)
		}
		if v > 0xffffffff {
			return nil, fmt.Errorf("z85: block at %d overflows", i)
		}
		out = append(out, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	return out, nil
}

// encodeZ85 encodes b, whose length must be a multiple of 4.
func encodeZ85(b []byte) (string, error) {
	if len(b)%4 != 0 {
		return "", errors.New("z85: length is not a multiple of 4")
	}

	out := make([]byte, 0, len(b)/4*5)
	for i := 0; i < len(b); i += 4 {
		v := uint32(b[i])<<24 | uint32(b[i+1])<<16 | uint32(b[i+2])<<8 | uint32(b[i+3])
		var block [5]byte
		for j := 4; j >= 0; j-- {
			block[j] = z85Alphabet[v%85]
			v /= 85
		}
		out = append(out, block[:]...)
	}
	return string(out), nil
}
