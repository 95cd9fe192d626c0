package ffprobe

import (
	"encoding/json"
	"math"
	"testing"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080, "r_frame_rate": "24000/1001", "avg_frame_rate": "24000/1001"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "sample_rate": "48000", "channels": 2}
  ],
  "format": {"filename": "clip.mp4", "nb_streams": 2, "duration": "12.500000", "format_name": "mov,mp4,m4a"}
}`

func decodeSample(t *testing.T) Result {
	t.Helper()
	var result Result
	if err := json.Unmarshal([]byte(sampleJSON), &result); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	return result
}

func TestVideoStreamAndAudio(t *testing.T) {
	result := decodeSample(t)

	video := result.VideoStream()
	if video == nil {
		t.Fatal("expected video stream")
	}
	if video.Width != 1920 || video.Height != 1080 {
		t.Fatalf("unexpected dimensions %dx%d", video.Width, video.Height)
	}
	if !result.HasAudio() {
		t.Fatal("expected audio stream")
	}
}

func TestFrameRateParsesRational(t *testing.T) {
	result := decodeSample(t)
	fps := result.FrameRate()
	want := 24000.0 / 1001.0
	if math.Abs(fps-want) > 1e-9 {
		t.Fatalf("frame rate = %v, want %v", fps, want)
	}
}

func TestFrameRateFallbacks(t *testing.T) {
	cases := []struct {
		name string
		avg  string
		r    string
		want float64
	}{
		{"avg preferred", "30/1", "25/1", 30},
		{"falls back to r", "0/0", "25/1", 25},
		{"plain number", "23.976", "", 23.976},
		{"zero denominator", "24/0", "", 0},
		{"garbage", "abc", "def", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Result{Streams: []Stream{{CodecType: "video", AvgFrameRate: tc.avg, RFrameRate: tc.r}}}
			if got := result.FrameRate(); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("FrameRate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFrameRateWithoutVideo(t *testing.T) {
	result := Result{Streams: []Stream{{CodecType: "audio"}}}
	if got := result.FrameRate(); got != 0 {
		t.Fatalf("FrameRate() = %v, want 0", got)
	}
	if result.VideoStream() != nil {
		t.Fatal("expected nil video stream")
	}
}

func TestFrameCount(t *testing.T) {
	cases := []struct {
		name   string
		stream Stream
		format Format
		want   int
	}{
		{"reported by container", Stream{CodecType: "video", NBFrames: "240"}, Format{}, 240},
		{"unreported", Stream{CodecType: "video", AvgFrameRate: "24/1"}, Format{Duration: "2.5"}, 0},
		{"garbage treated as unknown", Stream{CodecType: "video", NBFrames: "N/A"}, Format{Duration: "3"}, 0},
		{"negative treated as unknown", Stream{CodecType: "video", NBFrames: "-1"}, Format{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Result{Streams: []Stream{tc.stream}, Format: tc.format}
			if got := result.FrameCount(); got != tc.want {
				t.Fatalf("FrameCount() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestFrameCountWithoutVideo(t *testing.T) {
	result := Result{Streams: []Stream{{CodecType: "audio"}}}
	if got := result.FrameCount(); got != 0 {
		t.Fatalf("FrameCount() = %d, want 0", got)
	}
}

func TestDurationSeconds(t *testing.T) {
	result := decodeSample(t)
	if got := result.DurationSeconds(); got != 12.5 {
		t.Fatalf("DurationSeconds() = %v, want 12.5", got)
	}
	empty := Result{}
	if got := empty.DurationSeconds(); got != 0 {
		t.Fatalf("empty DurationSeconds() = %v, want 0", got)
	}
}
