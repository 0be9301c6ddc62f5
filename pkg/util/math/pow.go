// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0
package math

// NextPowerOfTwo rounds a positive value up to the nearest power of two.
func NextPowerOfTwo(x int64) int64 {
	if x <= 0 {
		panic("next power of two of non-positive value")
	}
	//
	result := int64(1)
	//
	for result < x {
		result <<= 1
	}
	//
	return result
}

// IsPowerOfTwo checks whether a value is a power of two.
func IsPowerOfTwo(x int64) bool {
	return x > 0 && x&(x-1) == 0
}
