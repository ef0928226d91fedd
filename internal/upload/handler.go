package upload

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/SlpAus/gametracker-backend/internal/platform/logger"
	"github.com/SlpAus/gametracker-backend/internal/platform/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxBytes 是封面图片的默认大小上限（5MiB）。
const DefaultMaxBytes = 5 << 20

// 按内容嗅探结果允许的图片类型及其落盘扩展名
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Handler 处理游戏封面图片的上传。
type Handler struct {
	dir      string
	maxBytes int64
}

// NewHandler 创建上传处理器，并确保存储目录存在。
func NewHandler(dir string, maxBytes int64) (*Handler, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("无法创建上传目录 %s: %w", dir, err)
	}
	return &Handler{dir: dir, maxBytes: maxBytes}, nil
}

// GameImage 处理 POST /api/upload/game-image
// 类型校验基于文件内容嗅探而不是扩展名或Content-Type头。
func (h *Handler) GameImage(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		response.Error(c, response.Validation(map[string]string{"image": "缺少image文件字段"}))
		return
	}

	// 1. 大小上限
	if fileHeader.Size > h.maxBytes {
		response.Error(c, response.Validation(map[string]string{
			"image": fmt.Sprintf("文件超过大小上限 %dMB", h.maxBytes>>20),
		}))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	defer src.Close()

	// 2. 嗅探文件头判断真实类型
	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		response.Error(c, response.Internal(err))
		return
	}
	contentType := http.DetectContentType(head[:n])
	ext, allowed := allowedImageTypes[contentType]
	if !allowed {
		response.Error(c, response.Validation(map[string]string{
			"image": "只接受JPEG、PNG或WebP图片",
		}))
		return
	}

	// 3. 以随机文件名落盘，避免覆盖和路径注入
	filename := uuid.New().String() + ext
	dst, err := os.Create(filepath.Join(h.dir, filename))
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	defer dst.Close()

	if _, err := dst.Write(head[:n]); err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	written, err := io.Copy(dst, io.LimitReader(src, h.maxBytes))
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}

	logger.L().Info("封面图片上传完成",
		zap.String("file", filename),
		zap.String("type", contentType),
		zap.Int64("bytes", int64(n)+written))

	c.JSON(http.StatusCreated, gin.H{
		"url":      "/uploads/" + filename,
		"filename": filename,
	})
}
