// This file is part of tq2fix project, available at https://github.com/qrdl/tq2fix
// Copyright (c) 2024 Ilya Caramishev. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at https://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformed   = errors.New("malformed byte string")
	ErrOutOfRange  = errors.New("out of region bounds")
	ErrProtect     = errors.New("cannot change memory protection")
	ErrNotPE       = errors.New("not a PE image")
	ErrUnsupported = errors.New("not supported on this platform")
)

// Signature is a byte pattern where some positions match any byte.
type Signature struct {
	bytes []byte
	mask  []bool // false for wildcard
}

/*
ParseSignature parses human readable signature like

	80 3D ?? ?? ?? ?? 00    74 78

Tokens are separated by any amount of whitespace. A token "??" (or "?") is a wildcard,
any other token must be exactly two hex digits.
*/
func ParseSignature(s string) (Signature, error) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return Signature{}, fmt.Errorf("%w: empty signature", ErrMalformed)
	}

	sig := Signature{
		bytes: make([]byte, len(tokens)),
		mask:  make([]bool, len(tokens)),
	}
	for i, tok := range tokens {
		if tok == "??" || tok == "?" {
			continue
		}
		b, err := parseByte(tok)
		if err != nil {
			return Signature{}, fmt.Errorf("%w: token %d of %q: %w", ErrMalformed, i, s, err)
		}
		sig.bytes[i] = b
		sig.mask[i] = true
	}

	return sig, nil
}

// MustParseSignature is like [ParseSignature] but panics on error. It is meant for
// signatures defined as string literals.
func MustParseSignature(s string) Signature {
	sig, err := ParseSignature(s)
	if err != nil {
		panic(err)
	}
	return sig
}

// Len returns the number of bytes the signature spans, wildcards included.
func (s Signature) Len() int {
	return len(s.bytes)
}

func (s Signature) String() string {
	var sb strings.Builder
	for i := range s.bytes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if s.mask[i] {
			fmt.Fprintf(&sb, "%02X", s.bytes[i])
		} else {
			sb.WriteString("??")
		}
	}
	return sb.String()
}

// Match reports whether buf starts with bytes matching the signature.
func (s Signature) Match(buf []byte) bool {
	if len(buf) < len(s.bytes) {
		return false
	}
	for i, b := range s.bytes {
		if s.mask[i] && buf[i] != b {
			return false
		}
	}
	return true
}

// anchor returns index of the first non-wildcard byte or -1.
func (s Signature) anchor() int {
	for i, m := range s.mask {
		if m {
			return i
		}
	}
	return -1
}

// ParseBytes parses space separated hex bytes, e.g. "F3 0F 11". Wildcards are not allowed.
func ParseBytes(s string) ([]byte, error) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no bytes", ErrMalformed)
	}

	buf := make([]byte, len(tokens))
	for i, tok := range tokens {
		b, err := parseByte(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: token %d of %q: %w", ErrMalformed, i, s, err)
		}
		buf[i] = b
	}
	return buf, nil
}

// FormatBytes is the reverse of [ParseBytes].
func FormatBytes(buf []byte) string {
	return strings.ToUpper(strings.TrimSpace(fmt.Sprintf("% x", buf)))
}

func parseByte(tok string) (byte, error) {
	if len(tok) != 2 {
		return 0, fmt.Errorf("expected 2 hex digits, got %q", tok)
	}
	b, err := hex.DecodeString(tok)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}
