package api

import "github.com/swaggo/swag"

// swaggerInstance is the name the API description is registered under
const swaggerInstance = "swagger"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Get the health status of the API",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/api.APIResponse"}
                    }
                }
            }
        },
        "/records": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Page through the record index in file order",
                "produces": ["application/json"],
                "tags": ["records"],
                "summary": "List records",
                "parameters": [
                    {"type": "integer", "description": "First offset to include", "name": "from", "in": "query"},
                    {"type": "integer", "description": "Maximum entries (default 100, max 1000)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.ListResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            },
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Frame the request body as one record and append it to the stream",
                "consumes": ["application/octet-stream"],
                "produces": ["application/json"],
                "tags": ["records"],
                "summary": "Append a record",
                "parameters": [
                    {"description": "Payload", "name": "body", "in": "body", "required": true, "schema": {"type": "string", "format": "binary"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.AppendResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/records/{offset}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Return the verified payload of the record starting at offset",
                "produces": ["application/octet-stream"],
                "tags": ["records"],
                "summary": "Read a record",
                "parameters": [
                    {"type": "integer", "description": "Record offset", "name": "offset", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "string", "format": "binary"},
                        "headers": {
                            "X-Record-Offset": {"type": "integer"},
                            "X-Record-Length": {"type": "integer"},
                            "X-Record-Checksum": {"type": "string"}
                        }
                    },
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/stats": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Get the record count and size of the served stream",
                "produces": ["application/json"],
                "tags": ["diagnostics"],
                "summary": "Stream statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/store.StreamStats"}}
                }
            }
        },
        "/verify": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Strictly decode an uploaded record stream and report where it stops being valid",
                "consumes": ["application/octet-stream"],
                "produces": ["application/json"],
                "tags": ["codec"],
                "summary": "Verify a record stream",
                "parameters": [
                    {"description": "Record stream", "name": "body", "in": "body", "required": true, "schema": {"type": "string", "format": "binary"}},
                    {"type": "boolean", "description": "Check checksums (default true)", "name": "verify", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.VerifyResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/encode": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Frame the request body as one record and return the record bytes",
                "consumes": ["application/octet-stream"],
                "produces": ["application/octet-stream"],
                "tags": ["codec"],
                "summary": "Encode a payload",
                "parameters": [
                    {"description": "Payload", "name": "body", "in": "body", "required": true, "schema": {"type": "string", "format": "binary"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string", "format": "binary"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        }
    },
    "definitions": {
        "api.APIResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {},
                "error": {"type": "string"},
                "kind": {"type": "string", "enum": ["checksum_mismatch", "truncated_stream", "size_overflow", "insufficient_data"]}
            }
        },
        "api.AppendResponse": {
            "type": "object",
            "properties": {
                "ordinal": {"type": "integer"},
                "offset": {"type": "integer"},
                "size": {"type": "integer"}
            }
        },
        "api.ListResponse": {
            "type": "object",
            "properties": {
                "records": {"type": "array", "items": {"$ref": "#/definitions/store.IndexEntry"}},
                "next": {"type": "integer"}
            }
        },
        "api.VerifyResponse": {
            "type": "object",
            "properties": {
                "valid": {"type": "boolean"},
                "records": {"type": "integer"},
                "valid_size": {"type": "integer"},
                "total_size": {"type": "integer"},
                "error": {"type": "string"},
                "kind": {"type": "string"}
            }
        },
        "store.IndexEntry": {
            "type": "object",
            "properties": {
                "ordinal": {"type": "integer"},
                "offset": {"type": "integer"},
                "size": {"type": "integer"}
            }
        },
        "store.StreamStats": {
            "type": "object",
            "properties": {
                "records": {"type": "integer"},
                "data_size": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "name": "X-API-Key",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "tfrec REST API",
	Description:      "HTTP access to a checksummed record stream.",
	InfoInstanceName: swaggerInstance,
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
