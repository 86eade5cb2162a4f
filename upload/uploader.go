package upload

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"slidecast/config"
)

// uploadChunkSize keeps resumable-upload retries cheap on flaky links.
const uploadChunkSize = 1 << 20 // 1 MiB

// Input describes one publish job.
type Input struct {
	VideoPath     string
	ThumbnailPath string
	Title         string
	Description   string
	CategoryID    string
	Tags          []string

	// Schedule is an optional publish time. When set, the video goes up
	// private and the platform flips it public at that time.
	Schedule string
}

// Uploader publishes finished videos via the YouTube Data API.
type Uploader struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Uploader {
	return &Uploader{cfg: cfg}
}

// Upload sends the video (and, best-effort, its thumbnail) using the given
// authenticated client. onProgress receives upload percentages.
func (u *Uploader) Upload(ctx context.Context, client *http.Client, in Input, onProgress func(int)) (url, id string, err error) {
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", "", fmt.Errorf("youtube service: %w", err)
	}

	snippet := &youtube.VideoSnippet{
		Title:                in.Title,
		Description:          in.Description,
		Tags:                 in.Tags,
		CategoryId:           in.CategoryID,
		DefaultLanguage:      u.cfg.Upload.DefaultLanguage,
		DefaultAudioLanguage: u.cfg.Upload.DefaultLanguage,
	}
	status := &youtube.VideoStatus{
		PrivacyStatus:           u.cfg.Upload.PrivacyStatus,
		SelfDeclaredMadeForKids: u.cfg.Upload.MadeForKids,
	}
	if in.Schedule != "" {
		publishAt, err := parseSchedule(in.Schedule)
		if err != nil {
			return "", "", fmt.Errorf("parse schedule: %w", err)
		}
		// Scheduling requires the video to start out private.
		status.PrivacyStatus = "private"
		status.PublishAt = publishAt
		log.Printf("[upload] Scheduled for: %s", publishAt)
	}

	f, err := os.Open(in.VideoPath)
	if err != nil {
		return "", "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()
	if fi, err := f.Stat(); err == nil {
		log.Printf("[upload] Uploading %q (%.1f MB)...", in.Title, float64(fi.Size())/1024/1024)
	}

	call := svc.Videos.Insert([]string{"snippet", "status"}, &youtube.Video{
		Snippet: snippet,
		Status:  status,
	})
	call.NotifySubscribers(u.cfg.Upload.NotifySubscribers)
	call.Media(f, googleapi.ChunkSize(uploadChunkSize))
	if onProgress != nil {
		call.ProgressUpdater(func(current, total int64) {
			if total > 0 {
				onProgress(int(current * 100 / total))
			}
		})
	}

	video, err := call.Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("youtube upload: %w", err)
	}

	videoID := video.Id
	videoURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
	log.Printf("[upload] ✅ Uploaded successfully: %s", videoURL)

	// The thumbnail is cosmetic; a failure here must not undo the upload.
	if in.ThumbnailPath != "" {
		if err := u.setThumbnail(ctx, svc, videoID, in.ThumbnailPath); err != nil {
			log.Printf("[upload] ⚠️ Thumbnail upload failed (video is live): %v", err)
		}
	}

	return videoURL, videoID, nil
}

func (u *Uploader) setThumbnail(ctx context.Context, svc *youtube.Service, videoID, path string) error {
	tf, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open thumbnail: %w", err)
	}
	defer tf.Close()

	call := svc.Thumbnails.Set(videoID)
	call.Media(tf)
	if _, err := call.Context(ctx).Do(); err != nil {
		return fmt.Errorf("set thumbnail: %w", err)
	}
	log.Println("[upload] Thumbnail set")
	return nil
}

// parseSchedule accepts RFC3339 or a local "YYYY-MM-DD HH:MM[:SS]" timestamp
// and returns RFC3339 UTC as the API requires.
func parseSchedule(s string) (string, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.UTC().Format(time.RFC3339), nil
		}
	}
	return "", fmt.Errorf("unrecognized timestamp %q", s)
}
