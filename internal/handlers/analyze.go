package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hoopscore/scorelens/internal/analyzer"
	"github.com/hoopscore/scorelens/internal/vision"
)

// maxImageBytes bounds uploaded photo size (10 MB decoded).
const maxImageBytes = 10 << 20

type analyzeRequest struct {
	ImageBase64 string `json:"image_base64"`
}

// Analyze accepts a scoreboard photo as JSON base64 or a multipart file
// and runs it through the pipeline.
func Analyze(a *analyzer.Analyzer) gin.HandlerFunc {
	return func(c *gin.Context) {
		image, ok := readImage(c)
		if !ok {
			return
		}

		out, err := a.Analyze(c.Request.Context(), image)
		if err != nil {
			if errors.Is(err, analyzer.ErrBusy) {
				c.JSON(409, gin.H{"error": "An analysis is already in progress"})
				return
			}
			// Client went away; nothing useful to send.
			c.Status(499)
			return
		}

		if out.OK {
			c.JSON(200, gin.H{
				"reading":  out.Reading,
				"attempts": out.Attempts,
			})
			return
		}

		status := statusForCode(out.Code)
		if status == 429 && out.NextAllowedAt != nil {
			secs := int(time.Until(*out.NextAllowedAt).Seconds()) + 1
			if secs > 0 {
				c.Header("Retry-After", strconv.Itoa(secs))
			}
		}
		body := gin.H{
			"code":    out.Code,
			"message": out.Message,
		}
		if out.NextAllowedAt != nil {
			body["next_allowed_at"] = out.NextAllowedAt.Format(time.RFC3339)
		}
		c.JSON(status, body)
	}
}

// Status reports where the in-flight analysis currently is.
func Status(a *analyzer.Analyzer) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, a.Status())
	}
}

// readImage extracts the photo bytes from either request shape. It writes
// the error response itself when the request is unusable.
func readImage(c *gin.Context) ([]byte, bool) {
	if file, err := c.FormFile("image"); err == nil {
		if file.Size > maxImageBytes {
			c.JSON(400, gin.H{"error": "Image exceeds the 10 MB limit"})
			return nil, false
		}
		f, err := file.Open()
		if err != nil {
			c.JSON(400, gin.H{"error": "Could not read uploaded image"})
			return nil, false
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
		if err != nil {
			c.JSON(400, gin.H{"error": "Could not read uploaded image"})
			return nil, false
		}
		return data, true
	}

	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ImageBase64 == "" {
		c.JSON(400, gin.H{"error": "Provide an image file or image_base64"})
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		c.JSON(400, gin.H{"error": "image_base64 is not valid base64"})
		return nil, false
	}
	if len(data) > maxImageBytes {
		c.JSON(400, gin.H{"error": "Image exceeds the 10 MB limit"})
		return nil, false
	}
	return data, true
}

// statusForCode maps failure categories to HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case vision.KindRateLimitLocal.String(), vision.KindRateLimitRemote.String():
		return 429
	case vision.KindNoCredential.String(), vision.KindInvalidCredential.String():
		return 422
	case vision.KindImageInvalid.String():
		return 400
	default:
		// network_transient, request_rejected, malformed_response
		return 502
	}
}
