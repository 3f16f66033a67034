package routes

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"docrag-platform/internal/config"
	"docrag-platform/services"
	"docrag-platform/utils"
)

// SetupDocumentRoutes wires document ingestion and management.
func SetupDocumentRoutes(router *gin.Engine, documents *services.DocumentService, extractor *services.ExtractionService, cfg *config.Config) {
	docs := router.Group("/documents")

	docs.POST("", func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "Missing file upload", gin.H{"error": err.Error()})
			return
		}
		if fileHeader.Size > cfg.MaxFileSize {
			utils.RespondWithPayloadTooLarge(c, "File exceeds maximum upload size")
			return
		}

		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		if !supported(extractor.SupportedTypes(), ext) {
			utils.RespondWithUnsupportedMediaType(c, "Unsupported file type "+ext)
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read upload", nil)
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read upload", nil)
			return
		}

		doc, err := documents.Ingest(c.Request.Context(), fileHeader.Filename, content)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to ingest document", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, doc)
	})

	docs.GET("", func(c *gin.Context) {
		list, err := documents.List(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"documents": list, "count": len(list)})
	})

	docs.GET("/stats", func(c *gin.Context) {
		stats, err := documents.Stats(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to compute stats", nil)
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	docs.GET("/:id", func(c *gin.Context) {
		doc, err := documents.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, services.ErrDocumentNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load document", nil)
			return
		}
		c.JSON(http.StatusOK, doc)
	})

	docs.DELETE("/:id", func(c *gin.Context) {
		err := documents.Delete(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, services.ErrDocumentNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to delete document", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})
}

func supported(types []string, ext string) bool {
	for _, t := range types {
		if t == ext {
			return true
		}
	}
	return false
}
