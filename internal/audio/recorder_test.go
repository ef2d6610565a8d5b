package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestRecorderProducesOutputFile(t *testing.T) {
	dir := t.TempDir()
	recorder := NewRecorder(dir)

	recorder.encode = func(rawPath, interviewID string) (string, error) {
		data, err := os.ReadFile(rawPath)
		if err != nil {
			return "", err
		}
		out := filepath.Join(dir, interviewID+".mp3")
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return "", err
		}
		return out, nil
	}

	if err := recorder.StartSession("iv-1"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	writer := recorder.Writer(bytes.NewBuffer(nil))
	if _, err := writer.Write([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	path, err := recorder.EndSession()
	if err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if path != filepath.Join(dir, "iv-1.mp3") {
		t.Fatalf("unexpected output path %q", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat output file failed: %v", err)
	}
	if info.Size() != 6 {
		t.Fatalf("expected 6 bytes, got %d", info.Size())
	}
	if _, err := os.Stat(filepath.Join(dir, "iv-1.pcm")); !os.IsNotExist(err) {
		t.Fatalf("expected raw pcm cleanup, stat err=%v", err)
	}
}

func TestTeeWriterWritesToBothDestinations(t *testing.T) {
	dir := t.TempDir()
	recorder := NewRecorder(dir)

	var spooled []byte
	recorder.encode = func(rawPath, interviewID string) (string, error) {
		data, err := os.ReadFile(rawPath)
		spooled = data
		return filepath.Join(dir, interviewID+".wav"), err
	}

	if err := recorder.StartSession("tee"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	var downstream bytes.Buffer
	writer := recorder.Writer(&downstream)
	payload := []byte("hello-world")
	if _, err := writer.Write(payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if got := downstream.Bytes(); !bytes.Equal(got, payload) {
		t.Fatalf("downstream payload mismatch, got %q", string(got))
	}

	if _, err := recorder.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if !bytes.Equal(spooled, payload) {
		t.Fatalf("recording mismatch, got %q", string(spooled))
	}
}

func TestRecorderEmptyRecording(t *testing.T) {
	dir := t.TempDir()
	recorder := NewRecorder(dir)
	recorder.encode = func(string, string) (string, error) {
		t.Fatal("encode should not run for an empty recording")
		return "", nil
	}

	if err := recorder.StartSession("empty"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	path, err := recorder.EndSession()
	if err != nil || path != "" {
		t.Fatalf("expected no recording, got %q err=%v", path, err)
	}
}

func TestEndSessionWithoutStart(t *testing.T) {
	path, err := NewRecorder(t.TempDir()).EndSession()
	if err != nil || path != "" {
		t.Fatalf("expected no-op, got %q err=%v", path, err)
	}
}

func TestPCMToWavHeader(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "in.pcm")
	wavPath := filepath.Join(dir, "out.wav")
	pcm := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	if err := os.WriteFile(rawPath, pcm, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := pcmToWav(rawPath, wavPath, 24000); err != nil {
		t.Fatalf("pcmToWav failed: %v", err)
	}

	data, err := os.ReadFile(wavPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 44+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", 44+len(pcm), len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Fatalf("malformed header %q", data[:44])
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 24000 {
		t.Fatalf("expected sample rate 24000, got %d", rate)
	}
	if size := binary.LittleEndian.Uint32(data[40:44]); size != uint32(len(pcm)) {
		t.Fatalf("expected data size %d, got %d", len(pcm), size)
	}
	if !bytes.Equal(data[44:], pcm) {
		t.Fatal("payload mismatch")
	}
}
