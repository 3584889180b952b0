package api

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"scenecut-server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func (s *Server) uploadVideo(c *gin.Context) {
	if s.cfg.MaxUploadMB > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadMB<<20)
	}

	file, err := c.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.ObserveUpload("rejected")
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Video file too large"})
			return
		}
		s.metrics.ObserveUpload("rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "No video file provided"})
		return
	}

	if !s.cfg.AllowedExtension(file.Filename) {
		s.metrics.ObserveUpload("rejected")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "File type not allowed",
			"allowed": s.cfg.AllowedExtensions,
		})
		return
	}

	folder := filepath.Join(s.cfg.UploadDir, time.Now().UTC().Format("20060102150405")+"-"+uuid.NewString())
	if err := os.MkdirAll(folder, 0755); err != nil {
		s.metrics.ObserveUpload("error")
		s.internalError(c, "Failed to create upload folder", err)
		return
	}

	filename := secureFilename(file.Filename)
	dst := filepath.Join(folder, filename)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		os.RemoveAll(folder)
		s.metrics.ObserveUpload("error")
		s.internalError(c, "Failed to save upload", err)
		return
	}

	hash, err := hashFile(dst)
	if err != nil {
		os.RemoveAll(folder)
		s.metrics.ObserveUpload("error")
		s.internalError(c, "Failed to hash upload", err)
		return
	}

	if existing, err := s.store.GetVideoByHash(hash); err == nil {
		os.RemoveAll(folder)
		s.metrics.ObserveUpload("duplicate")
		c.JSON(http.StatusOK, gin.H{
			"video":   existing,
			"message": "Video already uploaded",
		})
		return
	}

	title := c.PostForm("title")
	video := &models.Video{
		Filename: filename,
		Filepath: dst,
		FileHash: hash,
		Status:   models.VideoStatusPending,
		Metadata: models.JSONObject{"original_filename": file.Filename, "size": file.Size},
	}
	if title != "" {
		video.Title = &title
	}

	if err := s.store.CreateVideo(video); err != nil {
		os.RemoveAll(folder)
		s.metrics.ObserveUpload("error")
		s.internalError(c, "Failed to create video", err)
		return
	}

	s.metrics.ObserveUpload("accepted")
	s.logger.Info().Uint("video_id", video.ID).Str("path", dst).Int64("size", file.Size).Msg("video uploaded")

	s.startDetection(c, video, nil, http.StatusCreated)
}

// serveFile serves a file under the upload directory addressed by its
// hex-encoded relative path.
func (s *Server) serveFile(c *gin.Context) {
	raw, err := hex.DecodeString(c.Param("path"))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid file path")
		return
	}

	path, err := s.resolveUpload(string(raw))
	if err != nil {
		c.String(http.StatusNotFound, "File not found")
		return
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		c.String(http.StatusNotFound, "File not found")
		return
	}

	c.File(path)
}

// resolveUpload maps a path relative to the upload directory to a file path,
// refusing anything that escapes it.
func (s *Server) resolveUpload(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) || strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("invalid path %q", rel)
	}
	root, err := filepath.Abs(s.cfg.UploadDir)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.FromSlash(rel))
	inside, err := filepath.Rel(root, full)
	if err != nil || inside == "." || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the upload directory", rel)
	}
	return full, nil
}

// fileURL returns the /cdn URL of a file under the upload directory, or ""
// for files elsewhere.
func (s *Server) fileURL(path string) string {
	if path == "" {
		return ""
	}
	root, err := filepath.Abs(s.cfg.UploadDir)
	if err != nil {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return "/cdn/" + hex.EncodeToString([]byte(filepath.ToSlash(rel)))
}

func secureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "video"
	}
	return name
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
