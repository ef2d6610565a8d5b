// Package audio records the candidate's microphone stream for later review.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
)

const (
	defaultSampleRate = 16000
	pcmChannels       = 1
	pcmBitDepth       = 16
)

// Recorder spools raw PCM16-LE mono audio for one interview at a time and
// encodes it when the interview ends. One Recorder is created per run.
type Recorder struct {
	audioDir string

	mu          sync.Mutex
	interviewID string
	rawPath     string
	rawFile     *os.File
	written     int64
	sampleRate  int

	encode func(rawPath, interviewID string) (string, error)
}

func NewRecorder(audioDir string) *Recorder {
	if audioDir == "" {
		audioDir = filepath.Join("data", "audio")
	}

	r := &Recorder{audioDir: audioDir, sampleRate: defaultSampleRate}
	r.encode = r.defaultEncode
	return r
}

func (r *Recorder) SetSampleRate(sampleRate int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sampleRate > 0 {
		r.sampleRate = sampleRate
	}
}

// Writer returns a writer that forwards to dst and copies every byte dst
// accepted into the active recording.
func (r *Recorder) Writer(dst io.Writer) io.Writer {
	return &teeWriter{recorder: r, dst: dst}
}

// StartSession opens the spool file for interviewID, replacing any
// recording still in progress.
func (r *Recorder) StartSession(interviewID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.audioDir, 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}

	if r.rawFile != nil {
		_ = r.rawFile.Close()
		_ = os.Remove(r.rawPath)
	}

	rawPath := filepath.Join(r.audioDir, interviewID+".pcm")
	rawFile, err := os.OpenFile(rawPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open raw pcm file: %w", err)
	}

	r.interviewID = interviewID
	r.rawPath = rawPath
	r.rawFile = rawFile
	r.written = 0

	return nil
}

// EndSession closes the spool and returns the path of the encoded file. It
// returns an empty path when nothing was recorded.
func (r *Recorder) EndSession() (string, error) {
	r.mu.Lock()
	if r.interviewID == "" || r.rawFile == nil {
		r.mu.Unlock()
		return "", nil
	}

	interviewID := r.interviewID
	rawPath := r.rawPath
	rawFile := r.rawFile
	written := r.written

	r.interviewID = ""
	r.rawPath = ""
	r.rawFile = nil
	r.written = 0
	r.mu.Unlock()

	defer func() { _ = os.Remove(rawPath) }()

	if err := rawFile.Close(); err != nil {
		return "", fmt.Errorf("close raw pcm file: %w", err)
	}
	if written == 0 {
		return "", nil
	}

	return r.encode(rawPath, interviewID)
}

func (r *Recorder) writePCM(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rawFile == nil {
		return nil
	}

	n, err := r.rawFile.Write(data)
	r.written += int64(n)
	if err != nil {
		return fmt.Errorf("write raw pcm bytes: %w", err)
	}
	return nil
}

// defaultEncode tries ffmpeg, then lame, and falls back to a plain WAV file.
func (r *Recorder) defaultEncode(rawPath, interviewID string) (string, error) {
	r.mu.Lock()
	sampleRate := r.sampleRate
	r.mu.Unlock()

	mp3Path := filepath.Join(r.audioDir, interviewID+".mp3")
	for _, args := range [][]string{ffmpegArgs(rawPath, mp3Path, sampleRate), lameArgs(rawPath, mp3Path, sampleRate)} {
		if err := exec.Command(args[0], args[1:]...).Run(); err == nil {
			return mp3Path, nil
		}
	}

	wavPath := filepath.Join(r.audioDir, interviewID+".wav")
	if err := pcmToWav(rawPath, wavPath, sampleRate); err != nil {
		return "", fmt.Errorf("encode wav fallback: %w", err)
	}
	return wavPath, nil
}

func ffmpegArgs(rawPath, outputPath string, sampleRate int) []string {
	return []string{
		"ffmpeg", "-y",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(pcmChannels),
		"-i", rawPath,
		outputPath,
	}
}

func lameArgs(rawPath, outputPath string, sampleRate int) []string {
	khz := strconv.FormatFloat(float64(sampleRate)/1000.0, 'f', -1, 64)
	return []string{
		"lame", "-r",
		"-s", khz,
		"--bitwidth", strconv.Itoa(pcmBitDepth),
		"-m", "m",
		rawPath,
		outputPath,
	}
}

func pcmToWav(rawPath, wavPath string, sampleRate int) error {
	in, err := os.Open(rawPath)
	if err != nil {
		return fmt.Errorf("open raw pcm data: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat raw pcm data: %w", err)
	}

	out, err := os.OpenFile(wavPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open wav output: %w", err)
	}
	defer out.Close()

	if err := binary.Write(out, binary.LittleEndian, newWavHeader(int(info.Size()), sampleRate)); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("write wav payload: %w", err)
	}
	return nil
}

// wavHeader is the canonical 44-byte RIFF header for uncompressed PCM.
type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	Format        uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

func newWavHeader(dataSize, sampleRate int) wavHeader {
	blockAlign := pcmChannels * pcmBitDepth / 8
	return wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + dataSize),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		Format:        1,
		Channels:      pcmChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: pcmBitDepth,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(dataSize),
	}
}

type teeWriter struct {
	recorder *Recorder
	dst      io.Writer
}

func (w *teeWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if err != nil {
		return n, err
	}

	if err := w.recorder.writePCM(p[:n]); err != nil {
		return n, err
	}

	return n, nil
}
