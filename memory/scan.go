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

import "bytes"

/*
Scan returns offset of the first (lowest) position in data where sig matches.
The second result is false when there is no match, which is a normal outcome rather than
an error. Scan never reads past the end of data, including the case when data is shorter
than the signature.
*/
func Scan(data []byte, sig Signature) (int, bool) {
	n := sig.Len()
	if n == 0 || n > len(data) {
		return 0, false
	}

	last := len(data) - n
	anchor := sig.anchor()
	for i := 0; i <= last; i++ {
		if anchor >= 0 {
			// jump to the next candidate with matching first concrete byte
			j := bytes.IndexByte(data[i+anchor:last+anchor+1], sig.bytes[anchor])
			if j < 0 {
				return 0, false
			}
			i += j
		}
		if sig.Match(data[i : i+n]) {
			return i, true
		}
	}

	return 0, false
}

// Find scans the whole region and returns absolute address of the first match.
func (r Region) Find(sig Signature) (uintptr, bool) {
	off, ok := Scan(r.data, sig)
	if !ok {
		return 0, false
	}
	return r.Addr(off), true
}
