// Copyright 2019 The go-hetcons Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hetpb

// ReferenceSlice sorts references by their content hash so every
// node renders the same witness set in the same order.
type ReferenceSlice []Reference

func (rs ReferenceSlice) Len() int {
	return len(rs)
}

func (rs ReferenceSlice) Less(i, j int) bool {
	return rs[i].Hash < rs[j].Hash
}

func (rs ReferenceSlice) Swap(i, j int) {
	rs[i], rs[j] = rs[j], rs[i]
}

// EqualReferences compares two witness lists element by element.
func EqualReferences(a, b []Reference) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
