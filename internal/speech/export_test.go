// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package speech

import "testing"

// SetMaxAudioBytes lowers the clip size cap for the duration of t.
func SetMaxAudioBytes(t *testing.T, n int64) {
	prev := maxAudioBytes
	maxAudioBytes = n
	t.Cleanup(func() { maxAudioBytes = prev })
}
