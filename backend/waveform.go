package backend

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/bluele/gcache"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	log "github.com/sirupsen/logrus"
	"github.com/supersonic-app/go-mpv"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
)

const (
	defaultWaveformBars = 80
	minWaveformLevel    = 0.3
)

// WaveformGenerator produces the amplitude bars shown for an entry.
// Generate must return promptly with ctx.Err() once ctx is cancelled.
type WaveformGenerator interface {
	Generate(ctx context.Context, entry mediaprovider.PlaylistEntry) ([]float32, error)
}

// Waveforms generates waveforms by decoding local files, falling back to
// a pseudo-waveform derived from the entry ID for everything else.
type Waveforms struct {
	bars        int
	decodeLocal bool
	tempDir     string
	cache       gcache.Cache
	transcode   func(ctx context.Context, inPath, outPath string) error
}

func NewWaveforms(conf WaveformConfig, tempDir string) *Waveforms {
	bars := conf.Bars
	if bars <= 0 {
		bars = defaultWaveformBars
	}
	size := conf.CacheSize
	if size <= 0 {
		size = 100
	}
	return &Waveforms{
		bars:        bars,
		decodeLocal: conf.DecodeLocalFiles,
		tempDir:     tempDir,
		cache:       gcache.New(size).LRU().Build(),
		transcode:   convertToWav,
	}
}

func (w *Waveforms) Generate(ctx context.Context, entry mediaprovider.PlaylistEntry) ([]float32, error) {
	if v, err := w.cache.Get(entry.ID); err == nil {
		return v.([]float32), nil
	}

	var bars []float32
	if w.decodeLocal && isLocalFile(entry.SourceURI) {
		var err error
		bars, err = w.decodeFile(ctx, entry.SourceURI)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			log.WithError(err).Debugf("waveform decode failed for %s", entry.SourceURI)
		}
	}
	if bars == nil {
		bars = syntheticWaveform(entry.ID, w.bars)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.cache.Set(entry.ID, bars)
	return bars, nil
}

func (w *Waveforms) decodeFile(ctx context.Context, path string) ([]float32, error) {
	tmp, err := os.CreateTemp(w.tempDir, "waveform-*.wav")
	if err != nil {
		return nil, err
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := w.transcode(ctx, path, tmp.Name()); err != nil {
		return nil, err
	}
	return barsFromWav(tmp.Name(), w.bars)
}

func isLocalFile(uri string) bool {
	if uri == "" || mediaprovider.IsHTTPURI(uri) || !filepath.IsAbs(uri) {
		return false
	}
	_, err := os.Stat(uri)
	return err == nil
}

// syntheticWaveform returns n bars in [minWaveformLevel, 1],
// always the same for the same id.
func syntheticWaveform(id string, n int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(id))
	r := rand.New(rand.NewPCG(h.Sum64(), 0x9e3779b97f4a7c15))
	bars := make([]float32, n)
	for i := range bars {
		bars[i] = minWaveformLevel + r.Float32()*(1-minWaveformLevel)
	}
	return bars
}

// barsFromWav computes n peak levels from a 16 bit wav file,
// scaled so the loudest bar is 1 and the quietest is at least minWaveformLevel.
func barsFromWav(path string, n int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	dur, err := decoder.Duration()
	if err != nil {
		return nil, err
	}
	format := decoder.Format()
	totalSamples := format.SampleRate * int(dur.Milliseconds()) / 1000
	samplesPerBar := max(totalSamples/n, 1)

	if err := decoder.FwdToPCM(); err != nil {
		return nil, err
	}

	peaks := make([]float32, n)
	buf := &audio.IntBuffer{Data: make([]int, 4096)}
	cur, inBar := 0, 0
	for cur < n {
		read, err := decoder.PCMBuffer(buf)
		if read == 0 || err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for i := 0; i+format.NumChannels <= read && cur < n; i += format.NumChannels {
			sum := 0
			for c := 0; c < format.NumChannels; c++ {
				sum += buf.Data[i+c]
			}
			sample := float32(math.Abs(float64(sum)/float64(format.NumChannels)) / float64(1<<15))
			if sample > peaks[cur] {
				peaks[cur] = sample
			}
			inBar++
			if inBar >= samplesPerBar {
				cur++
				inBar = 0
			}
		}
	}

	var loudest float32
	for _, p := range peaks {
		loudest = max(loudest, p)
	}
	for i, p := range peaks {
		level := float32(minWaveformLevel)
		if loudest > 0 {
			level += (1 - minWaveformLevel) * p / loudest
		}
		peaks[i] = level
	}
	return peaks, nil
}

func convertToWav(ctx context.Context, inPath, outPath string) error {
	m := mpv.Create()
	defer m.TerminateDestroy()
	m.SetOptionString("video", "no")
	m.SetOptionString("audio-display", "no")
	m.SetOptionString("terminal", "no")
	m.SetOptionString("idle", "yes")
	m.SetOptionString("ao-pcm-file", outPath)
	m.SetOptionString("ao", "pcm")
	m.SetOption("volume", mpv.FORMAT_INT64, 100)
	// no need to preserve full sample resolution for a handful of bars
	m.SetOption("audio-samplerate", mpv.FORMAT_INT64, 22050)
	m.SetOptionString("audio-channels", "mono")
	m.SetOptionString("audio-format", "s16")
	if err := m.Initialize(); err != nil {
		return err
	}

	m.Command([]string{"loadfile", inPath, "replace"})

	return mpvWaitForIdle(ctx, m)
}

func mpvWaitForIdle(ctx context.Context, m *mpv.Mpv) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			ia := m.GetPropertyString("idle-active")
			if ia == "yes" || ia == "true" {
				return nil
			}
			// use small timeout to allow detecting ctx expiry
			// without too much delay
			e := m.WaitEvent(0.1 /*timeout seconds*/)
			if e.Event_Id == mpv.EVENT_IDLE {
				return nil
			}
		}
	}
}
