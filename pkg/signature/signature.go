// Package signature locates code in a foreign process by byte pattern.
package signature

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/blacktop/ureflect/pkg/process"
)

const (
	pageSize  = 0x1000
	chunkSize = 0x10000
)

// Signature is a byte pattern where any position may be a wildcard.
type Signature struct {
	pattern []byte
	mask    []bool // true where the byte must match
}

// Parse parses an IDA style pattern such as "48 8B 05 ?? ?? ?? ??".
//
// Whitespace is ignored between pairs, so "48 8B 05 ????????" is equivalent.
// A lone "?" token is accepted as a single wildcard byte.
func Parse(s string) (Signature, error) {
	var sig Signature
	for _, tok := range strings.Fields(s) {
		if tok == "?" {
			sig.pattern = append(sig.pattern, 0)
			sig.mask = append(sig.mask, false)
			continue
		}
		if len(tok)%2 != 0 {
			return Signature{}, fmt.Errorf("signature: odd length token %q in %q", tok, s)
		}
		for i := 0; i < len(tok); i += 2 {
			pair := tok[i : i+2]
			if pair == "??" {
				sig.pattern = append(sig.pattern, 0)
				sig.mask = append(sig.mask, false)
				continue
			}
			b, err := hex.DecodeString(pair)
			if err != nil {
				return Signature{}, fmt.Errorf("signature: invalid byte %q in %q", pair, s)
			}
			sig.pattern = append(sig.pattern, b[0])
			sig.mask = append(sig.mask, true)
		}
	}
	if len(sig.pattern) == 0 {
		return Signature{}, fmt.Errorf("signature: empty pattern")
	}
	return sig, nil
}

// MustParse is like Parse but panics if the pattern cannot be parsed.
func MustParse(s string) Signature {
	sig, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sig
}

// Len returns the pattern length in bytes
func (s Signature) Len() int {
	return len(s.pattern)
}

func (s Signature) String() string {
	var parts []string
	for i, b := range s.pattern {
		if s.mask[i] {
			parts = append(parts, fmt.Sprintf("%02X", b))
		} else {
			parts = append(parts, "??")
		}
	}
	return strings.Join(parts, " ")
}

// Find returns the offset of the first match in data, or -1.
func (s Signature) Find(data []byte) int {
	n := len(s.pattern)
	if n == 0 || len(data) < n {
		return -1
	}
	// anchor on the first fixed byte so bytes.IndexByte does the heavy lifting
	first := -1
	for i, fixed := range s.mask {
		if fixed {
			first = i
			break
		}
	}
	if first < 0 {
		return 0
	}
	for i := 0; i+n <= len(data); {
		j := bytes.IndexByte(data[i+first:len(data)-n+first+1], s.pattern[first])
		if j < 0 {
			return -1
		}
		i += j
		if s.matchAt(data[i : i+n]) {
			return i
		}
		i++
	}
	return -1
}

func (s Signature) matchAt(window []byte) bool {
	for k, b := range s.pattern {
		if s.mask[k] && window[k] != b {
			return false
		}
	}
	return true
}

// Scan returns the address of the first match in [base, base+size) of r.
//
// The range is read in chunks; a chunk that fails to read is retried page by
// page and unreadable pages never match. A match cannot straddle an unreadable page.
func (s Signature) Scan(r process.Reader, base process.Address, size uint64) (process.Address, bool) {
	if s.Len() == 0 || size < uint64(s.Len()) {
		return 0, false
	}

	sc := scanner{sig: s}
	buf := make([]byte, chunkSize)

	for off := uint64(0); off < size; off += chunkSize {
		n := min(uint64(chunkSize), size-off)
		addr := base.Add(off)
		if err := r.Read(addr, buf[:n]); err == nil {
			if found, ok := sc.feed(addr, buf[:n]); ok {
				return found, true
			}
			continue
		}
		for p := uint64(0); p < n; p += pageSize {
			pn := min(uint64(pageSize), n-p)
			if err := r.Read(addr.Add(p), buf[p:p+pn]); err != nil {
				sc.reset()
				continue
			}
			if found, ok := sc.feed(addr.Add(p), buf[p:p+pn]); ok {
				return found, true
			}
		}
	}

	return 0, false
}

// scanner carries the tail of the previous readable block so that a match may
// span two contiguous reads.
type scanner struct {
	sig       Signature
	carry     []byte
	carryAddr process.Address
}

func (sc *scanner) reset() {
	sc.carry = sc.carry[:0]
}

func (sc *scanner) feed(addr process.Address, data []byte) (process.Address, bool) {
	window := data
	windowAddr := addr
	if len(sc.carry) > 0 {
		window = append(append([]byte{}, sc.carry...), data...)
		windowAddr = sc.carryAddr
	}
	if i := sc.sig.Find(window); i >= 0 {
		return windowAddr.Add(uint64(i)), true
	}
	keep := min(len(window), sc.sig.Len()-1)
	sc.carry = append(sc.carry[:0], window[len(window)-keep:]...)
	sc.carryAddr = windowAddr.Add(uint64(len(window) - keep))
	return 0, false
}
