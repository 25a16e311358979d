package detector

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradientImage has only even channel values, so its LSB plane is all zero.
func gradientImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 128, 128))
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(2 * (x % 128)),
				G: uint8(2 * (y % 128)),
				B: uint8(2 * ((x + y) % 128)),
				A: 255,
			})
		}
	}
	return img
}

// withRandomLSB replaces every channel LSB with a random bit.
func withRandomLSB(src *image.NRGBA) *image.NRGBA {
	rng := rand.New(rand.NewSource(1))
	dst := image.NewNRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	for i := range dst.Pix {
		if i%4 == 3 {
			continue
		}
		dst.Pix[i] = dst.Pix[i]&^1 | uint8(rng.Intn(2))
	}
	return dst
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func sineSamples(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = int(300*math.Sin(2*math.Pi*440*float64(i)/44100)) &^ 1
	}
	return out
}

func encodeWAV(t *testing.T, samples []int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, 44100, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 44100},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func mp4Box(typ string, payload []byte) []byte {
	b := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(b, uint32(len(b)))
	copy(b[4:], typ)
	copy(b[8:], payload)
	return b
}

func mp4File(extra ...[]byte) []byte {
	var buf bytes.Buffer
	buf.Write(mp4Box("ftyp", []byte("isom\x00\x00\x02\x00isomiso2mp41")))
	buf.Write(mp4Box("moov", bytes.Repeat([]byte{0x01}, 64)))
	buf.Write(mp4Box("mdat", bytes.Repeat([]byte{0x42}, 1024)))
	for _, e := range extra {
		buf.Write(e)
	}
	return buf.Bytes()
}

func TestImageDetector(t *testing.T) {
	clean := encodePNG(t, gradientImage())
	stego := encodePNG(t, withRandomLSB(gradientImage()))
	appended := append(append([]byte{}, clean...), []byte("PK\x03\x04 hidden archive payload follows here")...)

	d, err := NewImageDetector()
	require.NoError(t, err)
	ctx := context.Background()

	cleanResult, err := d.Analyze(ctx, clean, "clean.png")
	require.NoError(t, err)
	stegoResult, err := d.Analyze(ctx, stego, "stego.png")
	require.NoError(t, err)

	assert.Less(t, cleanResult.Score, 0.2)
	assert.Greater(t, stegoResult.Score, 0.8)
	assert.Greater(t, stegoResult.Score, cleanResult.Score)
	assert.Equal(t, "png", cleanResult.Details["format"])

	t.Run("appended payload", func(t *testing.T) {
		a, err := d.Analyze(ctx, appended, "appended.png")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, a.Score, 0.9)
		assert.Contains(t, a.Details, "appended_bytes")

		var descriptions []string
		for _, f := range a.Findings {
			descriptions = append(descriptions, f.Description)
		}
		assert.Contains(t, descriptions, "Data appended after end of file")
		assert.Contains(t, descriptions, "Embedded ZIP archive")
	})

	t.Run("undecodable", func(t *testing.T) {
		_, err := d.Analyze(ctx, []byte("definitely not an image"), "broken.png")
		assert.True(t, errors.Is(err, ErrUndecodable))
	})

	t.Run("declared dimensions too large", func(t *testing.T) {
		_, err := d.Analyze(ctx, pngHeader(100_000, 100_000), "huge.png")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUndecodable))
		assert.Contains(t, err.Error(), "exceeds")
	})
}

// pngHeader is a PNG holding only a signature and an IHDR chunk.
func pngHeader(width, height uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], width)
	binary.BigEndian.PutUint32(ihdr[4:], height)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestAudioDetector(t *testing.T) {
	samples := sineSamples(88200)
	rng := rand.New(rand.NewSource(7))
	stegoSamples := make([]int, len(samples))
	for i, s := range samples {
		stegoSamples[i] = s | rng.Intn(2)
	}

	d, err := NewAudioDetector()
	require.NoError(t, err)
	ctx := context.Background()

	clean, err := d.Analyze(ctx, encodeWAV(t, samples), "tone.wav")
	require.NoError(t, err)
	stego, err := d.Analyze(ctx, encodeWAV(t, stegoSamples), "tone.wav")
	require.NoError(t, err)

	assert.Less(t, clean.Score, 0.2)
	assert.Greater(t, stego.Score, 0.8)
	assert.Equal(t, "wav", clean.Details["format"])

	t.Run("broken wav", func(t *testing.T) {
		_, err := d.Analyze(ctx, []byte("RIFF....nope"), "broken.wav")
		assert.True(t, errors.Is(err, ErrUndecodable))
	})

	t.Run("compressed audio", func(t *testing.T) {
		mp3 := append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00}, 256)...)
		a, err := d.Analyze(ctx, mp3, "song.mp3")
		require.NoError(t, err)
		assert.InDelta(t, 0.1, a.Score, 1e-9)

		withZip := append(append([]byte{}, mp3...), []byte("PK\x03\x04secret.txt")...)
		a, err = d.Analyze(ctx, withZip, "song.mp3")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, a.Score, 0.85)
	})
}

func TestVideoDetector(t *testing.T) {
	d, err := NewVideoDetector()
	require.NoError(t, err)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(3))
	noise := make([]byte, largeFreeBox+1024)
	rng.Read(noise)

	tests := []struct {
		name     string
		data     []byte
		minScore float64
		maxScore float64
	}{
		{"plain mp4", mp4File(), 0, 0.1},
		{"appended data", mp4File([]byte("this text was appended after the last box")), 0.9, 1},
		{"large random free box", mp4File(mp4Box("free", noise)), 0.8, 1},
		{"unknown box", mp4File(mp4Box("zzzz", []byte("payload"))), 0.5, 0.5},
		{"not isobmff", []byte("RIFF\x10\x00\x00\x00AVI LIST....data"), 0.15, 0.15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := d.Analyze(ctx, tt.data, "clip.mp4")
			require.NoError(t, err)
			assert.GreaterOrEqual(t, a.Score, tt.minScore)
			assert.LessOrEqual(t, a.Score, tt.maxScore)
		})
	}
}

type fixedDetector struct {
	score float64
}

func (f fixedDetector) Name() string { return "fixed" }

func (f fixedDetector) Analyze(context.Context, []byte, string) (*Analysis, error) {
	a := newAnalysis()
	a.Score = f.score
	return a, nil
}

func TestRegistryThresholds(t *testing.T) {
	fixed := func() (Detector, error) { return fixedDetector{score: 0.6}, nil }
	ctx := context.Background()

	r := NewRegistry(WithFactory(Image, fixed))
	p, err := r.Predict(ctx, Image, "a.png", bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, LabelMalicious, p.Label)
	assert.InDelta(t, 0.6, p.Confidence, 1e-9)
	assert.Equal(t, SourceLocal, p.Source)

	r = NewRegistry(WithFactory(Image, fixed), WithThresholds(Thresholds{Image: 0.7}))
	p, err = r.Predict(ctx, Image, "a.png", bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, LabelSafe, p.Label)
	assert.InDelta(t, 0.4, p.Confidence, 1e-9)
	assert.Equal(t, 0.7, r.Threshold(Image))
	assert.Equal(t, DefaultThreshold, r.Threshold(Audio))
}

func TestRegistryLoadsDetectorsOnce(t *testing.T) {
	var built int32
	r := NewRegistry(WithFactory(Audio, func() (Detector, error) {
		atomic.AddInt32(&built, 1)
		return fixedDetector{score: 0.1}, nil
	}), WithConcurrency(2))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Predict(context.Background(), Audio, "a.wav", bytes.NewReader(nil))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&built))
}

func TestRegistryUnknownModality(t *testing.T) {
	_, err := NewRegistry().Predict(context.Background(), Modality("text"), "a.txt", bytes.NewReader(nil))
	assert.True(t, errors.Is(err, ErrUnknownModality))
}

func TestRegistryEndToEnd(t *testing.T) {
	r := NewRegistry()
	stego := encodePNG(t, withRandomLSB(gradientImage()))

	p, err := r.Predict(context.Background(), Image, "stego.png", bytes.NewReader(stego))
	require.NoError(t, err)
	assert.Equal(t, LabelMalicious, p.Label)
	assert.GreaterOrEqual(t, p.Confidence, 0.5)
	assert.LessOrEqual(t, p.Confidence, 1.0)
}

func TestThresholdsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.json")

	require.NoError(t, SaveThresholds(path, Thresholds{Image: 0.42, Video: 0.3}))
	got, err := LoadThresholds(path)
	require.NoError(t, err)
	assert.Equal(t, Thresholds{Image: 0.42, Video: 0.3}, got)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"text":0.5}`), 0o644))
	_, err = LoadThresholds(bad)
	assert.Error(t, err)

	outOfRange := filepath.Join(dir, "range.json")
	require.NoError(t, os.WriteFile(outOfRange, []byte(`{"image":1.5}`), 0o644))
	_, err = LoadThresholds(outOfRange)
	assert.Error(t, err)

	_, err = LoadThresholds(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
