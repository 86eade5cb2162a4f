package media

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"slidecast/audio"
	"slidecast/config"
	"slidecast/retry"
)

// FinalVideoName is the filename of the assembled video in the output dir.
const FinalVideoName = "final_slideshow_with_audio.mp4"

const (
	zoomDurationSec = 4
	outputSize      = "1920x1080"
	zoomSpeed       = "0.001"
)

// Per-command timeouts. Media operations can hang; a timeout is a hard stage
// failure, never retried.
const (
	concatAudioTimeout  = 180 * time.Second
	transcodeTimeout    = 120 * time.Second
	probeTimeout        = 30 * time.Second
	zoomClipTimeout     = 120 * time.Second
	overlayTimeout      = 180 * time.Second
	extendTimeout       = 120 * time.Second
	remuxTimeout        = 120 * time.Second
	concatVideoTimeout  = 300 * time.Second
	finalMuxTimeout     = 600 * time.Second
)

// The five pan/zoom trajectories: center plus the four corner biases.
// One is chosen at random per image.
var zoomTrajectories = []string{
	"x='trunc(iw/2-(iw/zoom/2))':y='trunc(ih/2-(ih/zoom/2))'",
	"x='0':y='0'",
	"x='trunc(iw-(iw/zoom))':y='0'",
	"x='0':y='trunc(ih-(ih/zoom))'",
	"x='trunc(iw-(iw/zoom))':y='trunc(ih-(ih/zoom))'",
}

// Input describes one assembly job: numbered image and audio files already
// present in OutputDir, intermediates in WorkDir.
type Input struct {
	OutputDir string
	WorkDir   string
	NumAudio  int
	NumImages int

	// Emit receives overall-progress percentages for the 65-100 window.
	Emit func(int)
}

// Assembler sequences the local media-tool commands that turn numbered
// stills and narration clips into the final video. Every step fails the
// whole stage on first error.
type Assembler struct {
	cfg       *config.Config
	run       Runner
	cancelled func() bool
	pick      func(n int) int
}

// NewAssembler creates an Assembler. cancelled is the owning run's flag,
// checked before every command.
func NewAssembler(cfg *config.Config, run Runner, cancelled func() bool) *Assembler {
	return &Assembler{
		cfg:       cfg,
		run:       run,
		cancelled: cancelled,
		pick:      rand.Intn,
	}
}

// Assemble builds the final video and returns its path.
func (a *Assembler) Assemble(ctx context.Context, in Input) (string, error) {
	mergedAudio, err := a.mergeAudio(ctx, in)
	if err != nil {
		return "", err
	}

	audioDur, err := a.probeDuration(ctx, mergedAudio)
	if err != nil {
		return "", fmt.Errorf("probe merged audio: %w", err)
	}
	overlayDur, err := a.probeDuration(ctx, a.cfg.Media.OverlayClip)
	if err != nil {
		return "", fmt.Errorf("probe overlay clip: %w", err)
	}
	overlayLoops := int(math.Ceil(audioDur / overlayDur))
	log.Printf("[media] ⏱ Total audio duration: %.2fs (overlay loops: %d)", audioDur, overlayLoops)
	a.emit(in, 65)

	clips, err := a.renderImageClips(ctx, in, overlayLoops)
	if err != nil {
		return "", err
	}

	slideshow, err := a.concatClips(ctx, in, clips)
	if err != nil {
		return "", err
	}

	return a.mux(ctx, in, slideshow, mergedAudio)
}

// mergeAudio concatenates the numbered WAV clips and transcodes the result
// to MP3 for the final mux.
func (a *Assembler) mergeAudio(ctx context.Context, in Input) (string, error) {
	listFile := filepath.Join(in.WorkDir, "audios.txt")
	var lines []string
	for n := 1; n <= in.NumAudio; n++ {
		abs, err := filepath.Abs(filepath.Join(in.OutputDir, audio.ClipName(n)))
		if err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("file '%s'", abs))
	}
	if err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write audio list: %w", err)
	}

	mergedWAV := filepath.Join(in.WorkDir, "merged_audio.wav")
	log.Println("[media] 🎵 Merging WAV audio files...")
	if err := a.command(ctx, concatAudioTimeout,
		a.cfg.Media.FFmpegBin, "-y", "-f", "concat", "-safe", "0",
		"-i", listFile,
		"-c", "copy",
		mergedWAV,
	); err != nil {
		return "", fmt.Errorf("concat audio: %w", err)
	}

	mergedMP3 := filepath.Join(in.WorkDir, "merged_audio.mp3")
	log.Println("[media] 🎵 Converting merged audio to MP3...")
	if err := a.command(ctx, transcodeTimeout,
		a.cfg.Media.FFmpegBin, "-y", "-i", mergedWAV,
		"-c:a", "libmp3lame",
		"-b:a", "128k",
		"-ar", "44100",
		mergedMP3,
	); err != nil {
		return "", fmt.Errorf("transcode audio: %w", err)
	}
	return mergedMP3, nil
}

// renderImageClips produces one motion clip per image: a fixed-duration
// pan/zoom for all but the last, and for the last a particle-overlay
// composite extended by looping to cover the audio track.
func (a *Assembler) renderImageClips(ctx context.Context, in Input, overlayLoops int) ([]string, error) {
	var clips []string
	for idx := 1; idx <= in.NumImages; idx++ {
		img := filepath.Join(in.OutputDir, fmt.Sprintf("image%d.jpg", idx))

		if idx < in.NumImages {
			out := filepath.Join(in.WorkDir, fmt.Sprintf("zoom%d.mp4", idx))
			trajectory := zoomTrajectories[a.pick(len(zoomTrajectories))]
			filter := fmt.Sprintf(
				"scale=8000x4500, zoompan=z='zoom+%s':%s:d=120:fps=30,scale=1920:1080",
				zoomSpeed, trajectory,
			)
			log.Printf("[media] 🎥 Creating zoom clip for %s", img)
			if err := a.command(ctx, zoomClipTimeout,
				a.cfg.Media.FFmpegBin, "-y", "-loop", "1", "-i", img,
				"-preset", "ultrafast",
				"-threads", "4",
				"-vf", filter,
				"-s", outputSize,
				"-t", strconv.Itoa(zoomDurationSec),
				"-pix_fmt", "yuv420p",
				out,
			); err != nil {
				return nil, fmt.Errorf("zoom clip %d: %w", idx, err)
			}
			clips = append(clips, out)
		} else {
			composite := filepath.Join(in.WorkDir, "last_with_particles.mp4")
			extended := filepath.Join(in.WorkDir, "extended_last_with_particles.mp4")

			log.Printf("[media] ✨ Applying particle overlay to %s", img)
			if err := a.command(ctx, overlayTimeout,
				a.cfg.Media.FFmpegBin, "-loop", "1", "-i", img, "-i", a.cfg.Media.OverlayClip,
				"-filter_complex", "[0:v]scale=1920:1080,setsar=1[bg];"+
					"[1:v]scale=1920:1080,format=rgba,colorchannelmixer=aa=0.3[particles];"+
					"[bg][particles]overlay=format=auto",
				"-shortest", "-pix_fmt", "yuv420p",
				"-s", outputSize, "-y", composite,
			); err != nil {
				return nil, fmt.Errorf("particle overlay: %w", err)
			}

			log.Println("[media] 🔄 Extending overlay clip to cover audio")
			if err := a.command(ctx, extendTimeout,
				a.cfg.Media.FFmpegBin, "-stream_loop", strconv.Itoa(overlayLoops), "-i", composite,
				"-c", "copy", extended,
			); err != nil {
				return nil, fmt.Errorf("extend overlay clip: %w", err)
			}
			clips = append(clips, extended)
		}

		a.emit(in, 65+idx*25/in.NumImages)
	}
	return clips, nil
}

// concatClips joins the per-image clips into one video track. The MP4
// containers are not directly concatenable, so each clip is remuxed to a
// transport stream first.
func (a *Assembler) concatClips(ctx context.Context, in Input, clips []string) (string, error) {
	var tsClips []string
	for _, clip := range clips {
		tsPath := strings.TrimSuffix(clip, ".mp4") + ".ts"
		if err := a.command(ctx, remuxTimeout,
			a.cfg.Media.FFmpegBin, "-y", "-i", clip,
			"-c", "copy", "-bsf:v", "h264_mp4toannexb",
			"-f", "mpegts", tsPath,
		); err != nil {
			return "", fmt.Errorf("remux %s: %w", filepath.Base(clip), err)
		}
		tsClips = append(tsClips, tsPath)
	}

	slideshow := filepath.Join(in.WorkDir, "slideshow.mp4")
	if err := a.command(ctx, concatVideoTimeout,
		a.cfg.Media.FFmpegBin, "-y", "-i", "concat:"+strings.Join(tsClips, "|"),
		"-c", "copy", "-bsf:a", "aac_adtstoasc", slideshow,
	); err != nil {
		return "", fmt.Errorf("concat video: %w", err)
	}
	return slideshow, nil
}

func (a *Assembler) mux(ctx context.Context, in Input, video, audioTrack string) (string, error) {
	final := filepath.Join(in.OutputDir, FinalVideoName)
	log.Printf("[media] 🔗 Combining video and audio into %s...", FinalVideoName)
	if err := a.command(ctx, finalMuxTimeout,
		a.cfg.Media.FFmpegBin, "-y", "-i", video, "-i", audioTrack,
		"-c:v", "copy", "-c:a", "aac", "-shortest",
		final,
	); err != nil {
		return "", fmt.Errorf("final mux: %w", err)
	}
	return final, nil
}

func (a *Assembler) probeDuration(ctx context.Context, file string) (float64, error) {
	out, err := a.runProbe(ctx, file)
	if err != nil {
		return 0, err
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration of %s: %w", file, err)
	}
	return dur, nil
}

func (a *Assembler) runProbe(ctx context.Context, file string) (string, error) {
	if a.cancelled != nil && a.cancelled() {
		return "", retry.ErrCancelled
	}
	return a.run.Run(ctx, probeTimeout,
		a.cfg.Media.FFprobeBin, "-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		file,
	)
}

// command runs one ffmpeg invocation with a cancellation check first.
func (a *Assembler) command(ctx context.Context, timeout time.Duration, argv ...string) error {
	if a.cancelled != nil && a.cancelled() {
		return retry.ErrCancelled
	}
	_, err := a.run.Run(ctx, timeout, argv...)
	return err
}

func (a *Assembler) emit(in Input, p int) {
	if in.Emit != nil {
		in.Emit(p)
	}
}
