package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/unifiedui/mongo-odm/internal/api/dto"
	"github.com/unifiedui/mongo-odm/internal/api/middleware"
	"github.com/unifiedui/mongo-odm/internal/domain/errors"
	"github.com/unifiedui/mongo-odm/internal/odm"
)

// MaxPageSize caps the pageSize query parameter of a search.
const MaxPageSize = 100

// DocumentsHandler exposes the registered models over HTTP.
type DocumentsHandler struct {
	registry *odm.Registry
}

// NewDocumentsHandler creates a new DocumentsHandler.
func NewDocumentsHandler(registry *odm.Registry) *DocumentsHandler {
	return &DocumentsHandler{registry: registry}
}

// ListCollections handles GET /collections
// @Summary List collections
// @Description Returns the registered document collections
// @Tags Collections
// @Produce json
// @Success 200 {object} dto.ListCollectionsResponse
// @Router /api/v1/odm/collections [get]
func (h *DocumentsHandler) ListCollections(c *gin.Context) {
	names := h.registry.Models()
	resp := dto.ListCollectionsResponse{Collections: make([]dto.CollectionResponse, 0, len(names))}
	for _, name := range names {
		m := h.registry.MustModel(name)
		item := dto.CollectionResponse{
			Name:       m.Name(),
			Collection: m.CollectionName(),
			PrimaryKey: m.PrimaryKeyField(),
			Versioned:  m.Versioned(),
		}
		if m.Versioned() {
			item.VersionField = m.VersionField()
		}
		resp.Collections = append(resp.Collections, item)
	}
	c.JSON(http.StatusOK, resp)
}

// Search handles GET /collections/{collection}/documents
//
// Query parameters other than page, pageSize, sort, partial and fields
// filter on the attribute of the same name. Values may carry a comparison
// operator prefix such as ">=10".
// @Summary Search documents
// @Description Returns a page of documents matching the attribute filters
// @Tags Documents
// @Produce json
// @Param collection path string true "Collection name"
// @Param page query int false "Page number" default(1) minimum(1)
// @Param pageSize query int false "Page size" default(20) minimum(1) maximum(100)
// @Param sort query string false "Sort, e.g. name.desc,age"
// @Param partial query bool false "Match string filters partially"
// @Param fields query string false "Comma separated projection"
// @Success 200 {object} dto.ListDocumentsResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /api/v1/odm/collections/{collection}/documents [get]
func (h *DocumentsHandler) Search(c *gin.Context) {
	model, ok := h.model(c)
	if !ok {
		return
	}

	var params dto.SearchParams
	if err := c.ShouldBindQuery(&params); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid query parameters", err.Error()))
		return
	}

	criteria := odm.NewCriteria()
	query := c.Request.URL.Query()
	names := make([]string, 0, len(query))
	for name := range query {
		if !dto.IsReservedSearchParam(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		criteria.Compare(name, query.Get(name), params.Partial)
	}
	if params.Fields != "" {
		project := bson.M{}
		for _, field := range strings.Split(params.Fields, ",") {
			if field = strings.TrimSpace(field); field != "" {
				project[field] = 1
			}
		}
		criteria.SetProject(project)
	}

	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = odm.DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	provider := odm.NewDataProvider(model, criteria)
	provider.Pagination = odm.NewPagination(pageSize)
	if params.Page > 1 {
		provider.Pagination.CurrentPage = params.Page - 1
	}
	provider.Sort = odm.NewSort().Parse(params.Sort)

	docs, err := provider.Data(c.Request.Context())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := dto.ListDocumentsResponse{Documents: make([]json.RawMessage, 0, len(docs))}
	for _, d := range docs {
		raw, err := renderDocument(d)
		if err != nil {
			middleware.HandleError(c, errors.NewInternalError("failed to render document", err))
			return
		}
		resp.Documents = append(resp.Documents, raw)
	}
	p := provider.Pagination
	resp.Pagination = dto.PaginationResponse{
		Page:       p.Page() + 1,
		PageSize:   p.Limit(),
		PageCount:  p.PageCount(),
		TotalItems: p.ItemCount(),
	}
	c.JSON(http.StatusOK, resp)
}

// Get handles GET /collections/{collection}/documents/{id}
// @Summary Get document
// @Description Returns a document by primary key as relaxed Extended JSON
// @Tags Documents
// @Produce json
// @Param collection path string true "Collection name"
// @Param id path string true "Primary key"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} middleware.ErrorResponse
// @Router /api/v1/odm/collections/{collection}/documents/{id} [get]
func (h *DocumentsHandler) Get(c *gin.Context) {
	model, ok := h.model(c)
	if !ok {
		return
	}
	doc, ok := h.find(c, model)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, doc)
}

// Create handles POST /collections/{collection}/documents
// @Summary Create document
// @Description Inserts a document given as relaxed Extended JSON
// @Tags Documents
// @Accept json
// @Produce json
// @Param collection path string true "Collection name"
// @Param document body object true "Document attributes"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Router /api/v1/odm/collections/{collection}/documents [post]
func (h *DocumentsHandler) Create(c *gin.Context) {
	model, ok := h.model(c)
	if !ok {
		return
	}
	attrs, ok := readAttributes(c)
	if !ok {
		return
	}
	if model.Versioned() {
		delete(attrs, model.VersionField())
	}

	doc := model.New()
	if err := doc.SetAttributes(attrs, false); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid document", err.Error()))
		return
	}
	saved, err := doc.Save(c.Request.Context(), true)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	if !saved {
		middleware.HandleError(c, notSavedError(doc))
		return
	}
	h.respond(c, http.StatusCreated, doc)
}

// Update handles PUT /collections/{collection}/documents/{id}
//
// Only the attributes present in the body are written. For versioned
// collections the body may carry the version it was based on; a stale
// version is rejected with 409.
// @Summary Update document
// @Description Writes the given attributes of a document
// @Tags Documents
// @Accept json
// @Produce json
// @Param collection path string true "Collection name"
// @Param id path string true "Primary key"
// @Param document body object true "Attributes to write"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Router /api/v1/odm/collections/{collection}/documents/{id} [put]
func (h *DocumentsHandler) Update(c *gin.Context) {
	model, ok := h.model(c)
	if !ok {
		return
	}
	attrs, ok := readAttributes(c)
	if !ok {
		return
	}
	doc, ok := h.find(c, model)
	if !ok {
		return
	}

	delete(attrs, odm.DefaultPrimaryKey)
	delete(attrs, model.PrimaryKeyField())
	if model.Versioned() {
		vf := model.VersionField()
		if v, present := attrs[vf]; present {
			if expected, ok := versionNumber(v); !ok || expected != doc.Version() {
				middleware.HandleError(c, errors.NewConflictError(
					"version conflict",
					fmt.Sprintf("document is at version %d", doc.Version()),
				))
				return
			}
			delete(attrs, vf)
		}
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	if err := doc.SetAttributes(attrs, false); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid document", err.Error()))
		return
	}
	saved, err := doc.Save(c.Request.Context(), true, names...)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	if !saved {
		middleware.HandleError(c, notSavedError(doc))
		return
	}
	h.respond(c, http.StatusOK, doc)
}

// Delete handles DELETE /collections/{collection}/documents/{id}
// @Summary Delete document
// @Tags Documents
// @Param collection path string true "Collection name"
// @Param id path string true "Primary key"
// @Success 204
// @Failure 404 {object} middleware.ErrorResponse
// @Router /api/v1/odm/collections/{collection}/documents/{id} [delete]
func (h *DocumentsHandler) Delete(c *gin.Context) {
	model, ok := h.model(c)
	if !ok {
		return
	}
	doc, ok := h.find(c, model)
	if !ok {
		return
	}
	deleted, err := doc.Delete(c.Request.Context())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	if !deleted {
		middleware.HandleError(c, errors.NewNotFoundError("document", c.Param("id")))
		return
	}
	c.Status(http.StatusNoContent)
}

// Counters handles POST /collections/{collection}/documents/{id}/counters
// @Summary Increment counters
// @Description Applies bounded increments to numeric attributes
// @Tags Documents
// @Accept json
// @Produce json
// @Param collection path string true "Collection name"
// @Param id path string true "Primary key"
// @Param request body dto.CountersRequest true "Counters"
// @Success 200 {object} dto.CountersResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /api/v1/odm/collections/{collection}/documents/{id}/counters [post]
func (h *DocumentsHandler) Counters(c *gin.Context) {
	model, ok := h.model(c)
	if !ok {
		return
	}
	var req dto.CountersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}
	doc, ok := h.find(c, model)
	if !ok {
		return
	}

	saved, err := doc.SaveCounters(c.Request.Context(), req.Counters, req.Lower, req.Upper)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	raw, err := renderDocument(doc)
	if err != nil {
		middleware.HandleError(c, errors.NewInternalError("failed to render document", err))
		return
	}
	c.JSON(http.StatusOK, dto.CountersResponse{Saved: saved, Document: raw})
}

func (h *DocumentsHandler) model(c *gin.Context) (*odm.Model, bool) {
	model, err := h.registry.Model(c.Param("collection"))
	if err != nil {
		middleware.HandleError(c, err)
		return nil, false
	}
	return model, true
}

func (h *DocumentsHandler) find(c *gin.Context, model *odm.Model) (*odm.Document, bool) {
	id := c.Param("id")
	doc, err := model.FindByPk(c.Request.Context(), id, nil)
	if err != nil {
		middleware.HandleError(c, err)
		return nil, false
	}
	if doc == nil {
		middleware.HandleError(c, errors.NewNotFoundError("document", id))
		return nil, false
	}
	return doc, true
}

func (h *DocumentsHandler) respond(c *gin.Context, status int, doc *odm.Document) {
	raw, err := renderDocument(doc)
	if err != nil {
		middleware.HandleError(c, errors.NewInternalError("failed to render document", err))
		return
	}
	c.Data(status, "application/json; charset=utf-8", raw)
}

// readAttributes parses the request body as relaxed extended JSON.
func readAttributes(c *gin.Context) (bson.M, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		middleware.HandleError(c, errors.NewBadRequestError("failed to read request body", err.Error()))
		return nil, false
	}
	var attrs bson.M
	if err := bson.UnmarshalExtJSON(body, false, &attrs); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return nil, false
	}
	return attrs, true
}

func renderDocument(d *odm.Document) (json.RawMessage, error) {
	data, err := bson.MarshalExtJSON(d.Attributes(), false, false)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func notSavedError(doc *odm.Document) error {
	if doc.HasErrors() {
		details, _ := json.Marshal(doc.Errors())
		return errors.NewValidationError("document failed validation", string(details))
	}
	if doc.Model().Versioned() {
		return errors.NewConflictError("version conflict", "document was modified concurrently")
	}
	return errors.NewConflictError("document not saved", "the write was cancelled")
}

func versionNumber(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), n == float64(int64(n))
	}
	return 0, false
}
