package server

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/firewatch/detection-server/internal/logger"
)

// The real capture pipeline lives in a separate process; this server only
// serves a placeholder stream so viewer pages have something to render.

var (
	placeholderOnce sync.Once
	placeholderData []byte
)

// placeholderJPEG renders the "Camera Unavailable" frame once and caches it.
func placeholderJPEG() []byte {
	placeholderOnce.Do(func() {
		const width, height = 640, 480
		img := image.NewRGBA(image.Rect(0, 0, width, height))

		text := "Camera Unavailable"
		face := basicfont.Face7x13
		textWidth := font.MeasureString(face, text).Ceil()

		drawer := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.RGBA{R: 255, A: 255}),
			Face: face,
			Dot: fixed.P(
				(width-textWidth)/2,
				(height+face.Metrics().Ascent.Ceil())/2,
			),
		}
		drawer.DrawString(text)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
			logger.Error("Stream", "Encode placeholder frame: %v", err)
			return
		}
		placeholderData = buf.Bytes()
	})
	return placeholderData
}

// handleVideoFeed streams MJPEG placeholder frames at the configured rate
// until the client goes away.
func (s *Server) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	frame := placeholderJPEG()
	if frame == nil {
		http.Error(w, "Failed to render frame", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	fps := s.cfg.VideoFeedFPS
	if fps <= 0 {
		fps = DefaultConfig().VideoFeedFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
