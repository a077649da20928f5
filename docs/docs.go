// Package docs registers the OpenAPI description of the document service
// with swag, where gin-swagger reads it from.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/odm/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "Service healthy", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}},
                    "503": {"description": "Service unhealthy", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}
                }
            }
        },
        "/api/v1/odm/ready": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Service ready"},
                    "503": {"description": "Service not ready"}
                }
            }
        },
        "/api/v1/odm/live": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness check",
                "responses": {"200": {"description": "Service alive"}}
            }
        },
        "/api/v1/odm/collections": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Collections"],
                "summary": "List collections",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.ListCollectionsResponse"}}
                }
            }
        },
        "/api/v1/odm/collections/{collection}/documents": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Search documents",
                "parameters": [
                    {"type": "string", "description": "Collection name", "name": "collection", "in": "path", "required": true},
                    {"type": "integer", "default": 1, "minimum": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "minimum": 1, "maximum": 100, "description": "Page size", "name": "pageSize", "in": "query"},
                    {"type": "string", "description": "Sort, e.g. name.desc,age", "name": "sort", "in": "query"},
                    {"type": "boolean", "description": "Match string filters partially", "name": "partial", "in": "query"},
                    {"type": "string", "description": "Comma separated projection", "name": "fields", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.ListDocumentsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Create document",
                "parameters": [
                    {"type": "string", "description": "Collection name", "name": "collection", "in": "path", "required": true},
                    {"description": "Document attributes", "name": "document", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}}
                }
            }
        },
        "/api/v1/odm/collections/{collection}/documents/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Get document",
                "parameters": [
                    {"type": "string", "description": "Collection name", "name": "collection", "in": "path", "required": true},
                    {"type": "string", "description": "Primary key", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}}
                }
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Update document",
                "parameters": [
                    {"type": "string", "description": "Collection name", "name": "collection", "in": "path", "required": true},
                    {"type": "string", "description": "Primary key", "name": "id", "in": "path", "required": true},
                    {"description": "Attributes to write", "name": "document", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["Documents"],
                "summary": "Delete document",
                "parameters": [
                    {"type": "string", "description": "Collection name", "name": "collection", "in": "path", "required": true},
                    {"type": "string", "description": "Primary key", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}}
                }
            }
        },
        "/api/v1/odm/collections/{collection}/documents/{id}/counters": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Increment counters",
                "parameters": [
                    {"type": "string", "description": "Collection name", "name": "collection", "in": "path", "required": true},
                    {"type": "string", "description": "Primary key", "name": "id", "in": "path", "required": true},
                    {"description": "Counters", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.CountersRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.CountersResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}}
                }
            }
        },
        "/api/v1/odm/files": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Files"],
                "summary": "List files",
                "parameters": [
                    {"type": "string", "description": "Exact file name", "name": "filename", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.ListFilesResponse"}}
                }
            },
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Files"],
                "summary": "Upload file",
                "parameters": [
                    {"type": "file", "description": "File content", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.FileResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}}
                }
            }
        },
        "/api/v1/odm/files/{id}": {
            "get": {
                "produces": ["application/octet-stream"],
                "tags": ["Files"],
                "summary": "Download file",
                "parameters": [
                    {"type": "string", "description": "File ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["Files"],
                "summary": "Delete file",
                "parameters": [
                    {"type": "string", "description": "File ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "components": {"type": "object", "additionalProperties": {"type": "string"}},
                "cache": {"$ref": "#/definitions/cache.Stats"},
                "server": {"$ref": "#/definitions/docdb.ServerInfo"}
            }
        },
        "cache.Stats": {
            "type": "object",
            "properties": {
                "hits": {"type": "integer"},
                "misses": {"type": "integer"},
                "stores": {"type": "integer"},
                "invalidated": {"type": "integer"}
            }
        },
        "docdb.ServerInfo": {
            "type": "object",
            "properties": {
                "version": {"type": "string"},
                "database": {"type": "string"}
            }
        },
        "middleware.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "details": {"type": "string"}
            }
        },
        "dto.CollectionResponse": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "collection": {"type": "string"},
                "primaryKey": {"type": "string"},
                "versioned": {"type": "boolean"},
                "versionField": {"type": "string"}
            }
        },
        "dto.ListCollectionsResponse": {
            "type": "object",
            "properties": {
                "collections": {"type": "array", "items": {"$ref": "#/definitions/dto.CollectionResponse"}}
            }
        },
        "dto.PaginationResponse": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "pageSize": {"type": "integer"},
                "pageCount": {"type": "integer"},
                "totalItems": {"type": "integer"}
            }
        },
        "dto.ListDocumentsResponse": {
            "type": "object",
            "properties": {
                "documents": {"type": "array", "items": {"type": "object"}},
                "pagination": {"$ref": "#/definitions/dto.PaginationResponse"}
            }
        },
        "dto.CountersRequest": {
            "type": "object",
            "required": ["counters"],
            "properties": {
                "counters": {"type": "object", "additionalProperties": {"type": "integer"}},
                "lower": {"type": "integer"},
                "upper": {"type": "integer"}
            }
        },
        "dto.CountersResponse": {
            "type": "object",
            "properties": {
                "saved": {"type": "boolean"},
                "document": {"type": "object"}
            }
        },
        "dto.FileResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "filename": {"type": "string"},
                "length": {"type": "integer"},
                "uploadDate": {"type": "string"},
                "metadata": {"type": "object"}
            }
        },
        "dto.ListFilesResponse": {
            "type": "object",
            "properties": {
                "files": {"type": "array", "items": {"$ref": "#/definitions/dto.FileResponse"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Mongo ODM Document Service API",
	Description:      "Document CRUD, paginated search and GridFS file storage over MongoDB collections",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
