package ffmpeg

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestExtractArgs(t *testing.T) {
	args := ExtractArgs("/in/clip.mp4", "/scratch/frames")
	want := []string{
		"-hide_banner", "-y",
		"-i", "/in/clip.mp4",
		"-vsync", "0",
		"-start_number", "0",
		filepath.Join("/scratch/frames", "frame_%06d.png"),
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("ExtractArgs = %v, want %v", args, want)
	}
}

func TestEncodeArgsReadSequenceFromZero(t *testing.T) {
	args := EncodeArgs("/scratch/enhanced", 24, "/scratch/video.mp4")
	joined := strings.Join(args, " ")
	idx := strings.Index(joined, "-start_number 0")
	if idx < 0 {
		t.Fatalf("encode args missing -start_number 0: %q", joined)
	}
	// Input options must precede -i to apply to the image sequence.
	if inputIdx := strings.Index(joined, "-i "); inputIdx < idx {
		t.Fatalf("-start_number must come before -i: %q", joined)
	}
}

func TestEncodeArgsFormatsFrameRate(t *testing.T) {
	args := EncodeArgs("/scratch/frames", 23.976, "/scratch/video.mp4")
	found := false
	for i, arg := range args {
		if arg == "-framerate" {
			if args[i+1] != "23.976" {
				t.Fatalf("framerate arg = %q, want 23.976", args[i+1])
			}
			found = true
		}
	}
	if !found {
		t.Fatal("missing -framerate argument")
	}
	last := args[len(args)-1]
	if last != "/scratch/video.mp4" {
		t.Fatalf("output arg = %q", last)
	}
}

func TestMuxArgsStreamMapping(t *testing.T) {
	args := MuxArgs("/scratch/video.mp4", "/in/clip.mp4", "/out/final.mp4")
	joined := strings.Join(args, " ")
	for _, want := range []string{"-c:v copy", "-c:a aac", "-map 0:v:0", "-map 1:a:0"} {
		if !strings.Contains(joined, want) {
			t.Errorf("mux args missing %q in %q", want, joined)
		}
	}
}

func TestNewRunnerDefaultsBinary(t *testing.T) {
	r := NewRunner("  ")
	if r.binary != "ffmpeg" {
		t.Fatalf("binary = %q, want ffmpeg", r.binary)
	}
	r = NewRunner("/usr/local/bin/ffmpeg")
	if r.binary != "/usr/local/bin/ffmpeg" {
		t.Fatalf("binary = %q", r.binary)
	}
}
