package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/unifiedui/mongo-odm/internal/api/dto"
	"github.com/unifiedui/mongo-odm/internal/api/middleware"
	"github.com/unifiedui/mongo-odm/internal/domain/errors"
	"github.com/unifiedui/mongo-odm/internal/odm"
)

// FilesHandler handles file storage endpoints.
type FilesHandler struct {
	store *odm.FileStore
}

// NewFilesHandler creates a new FilesHandler.
func NewFilesHandler(store *odm.FileStore) *FilesHandler {
	return &FilesHandler{store: store}
}

// List handles GET /files
// @Summary List files
// @Tags Files
// @Produce json
// @Param filename query string false "Exact file name"
// @Success 200 {object} dto.ListFilesResponse
// @Router /api/v1/odm/files [get]
func (h *FilesHandler) List(c *gin.Context) {
	filter := bson.M{}
	if name := c.Query("filename"); name != "" {
		filter["filename"] = name
	}
	files, err := h.store.Find(c.Request.Context(), filter)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	resp := dto.ListFilesResponse{Files: make([]dto.FileResponse, 0, len(files))}
	for _, f := range files {
		resp.Files = append(resp.Files, dto.FileResponse{
			ID:         fileIDString(f.ID),
			Filename:   f.Filename,
			Length:     f.Length,
			UploadDate: f.UploadDate,
			Metadata:   f.Metadata,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Upload handles POST /files with a multipart "file" field.
// @Summary Upload file
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File content"
// @Success 201 {object} dto.FileResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Router /api/v1/odm/files [post]
func (h *FilesHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		middleware.HandleError(c, errors.NewValidationError("missing file", err.Error()))
		return
	}
	f, err := header.Open()
	if err != nil {
		middleware.HandleError(c, errors.NewBadRequestError("failed to read file", err.Error()))
		return
	}
	defer f.Close()

	var metadata bson.M
	if ct := header.Header.Get("Content-Type"); ct != "" {
		metadata = bson.M{"contentType": ct}
	}
	id, err := h.store.Store(c.Request.Context(), header.Filename, f, metadata)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.FileResponse{
		ID:       fileIDString(id),
		Filename: header.Filename,
		Length:   header.Size,
		Metadata: metadata,
	})
}

// Download handles GET /files/{id}
// @Summary Download file
// @Tags Files
// @Produce octet-stream
// @Param id path string true "File ID"
// @Success 200 {file} binary
// @Failure 404 {object} middleware.ErrorResponse
// @Router /api/v1/odm/files/{id} [get]
func (h *FilesHandler) Download(c *gin.Context) {
	rc, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, -1, "application/octet-stream", rc, nil)
}

// Delete handles DELETE /files/{id}
// @Summary Delete file
// @Tags Files
// @Param id path string true "File ID"
// @Success 204
// @Failure 404 {object} middleware.ErrorResponse
// @Router /api/v1/odm/files/{id} [delete]
func (h *FilesHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	deleted, err := h.store.Delete(c.Request.Context(), id)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	if !deleted {
		middleware.HandleError(c, errors.NewNotFoundError("file", id))
		return
	}
	c.Status(http.StatusNoContent)
}

func fileIDString(id interface{}) string {
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(id)
}
