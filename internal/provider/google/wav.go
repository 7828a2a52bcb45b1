// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"encoding/binary"
	"mime"
	"os"
	"strconv"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// defaultSampleRate is what Gemini TTS models emit when the MIME type does
// not say otherwise.
const defaultSampleRate = 24000

// pcmToWAV wraps 16-bit little-endian mono PCM (audio/L16) in a WAV
// container so ordinary players can decode it.
func pcmToWAV(pcm []byte, mimeType string) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, parleyerr.New(parleyerr.CodeProviderUpstreamFailure, "google: pcm payload not aligned")
	}

	rate := sampleRate(mimeType)
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}

	// The encoder needs to seek back and patch the header sizes.
	file, err := os.CreateTemp("", "parley_tts_*.wav")
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeServerInternalFailure, "creating wav buffer")
	}
	defer func() {
		_ = file.Close()
		_ = os.Remove(file.Name())
	}()

	enc := wav.NewEncoder(file, rate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeServerInternalFailure, "writing wav")
	}
	if err := enc.Close(); err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeServerInternalFailure, "closing wav encoder")
	}

	data, err := os.ReadFile(file.Name())
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeServerInternalFailure, "reading wav")
	}
	return data, nil
}

// sampleRate reads the rate parameter of e.g. "audio/L16;codec=pcm;rate=24000".
func sampleRate(mimeType string) int {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return defaultSampleRate
	}
	rate, err := strconv.Atoi(params["rate"])
	if err != nil || rate <= 0 {
		return defaultSampleRate
	}
	return rate
}
