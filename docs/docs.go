// Package docs registers the OpenAPI document served at /swagger.
package docs

import "github.com/swaggo/swag"

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
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/health": {
            "get": {
                "tags": ["health"],
                "summary": "Readiness probe",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/auth/signup": {
            "post": {
                "tags": ["auth"],
                "summary": "Sign up",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/auth.SignUpInput"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/auth.Session"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/auth/signin": {
            "post": {
                "tags": ["auth"],
                "summary": "Sign in",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/auth.SignInInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/auth.Session"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/functions/secure-image-uploader": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["functions"],
                "summary": "Secure copy of a generated image",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handler.secureCopyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.secureCopyResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.functionError"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.functionError"}}
                }
            }
        },
        "/generations": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["generations"],
                "summary": "Generate an image",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handler.generateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.GenerationResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/handler.generationFailure"}},
                    "504": {"description": "Gateway Timeout", "schema": {"$ref": "#/definitions/handler.generationFailure"}}
                }
            }
        },
        "/images": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["images"],
                "summary": "List generated images",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "integer", "default": 10, "description": "page size", "name": "limit", "in": "query"},
                    {"type": "integer", "default": 0, "description": "offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.HistoryListResult"}}
                }
            }
        },
        "/images/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["images"],
                "summary": "Get a generated image",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "image id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.HistoryItem"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["images"],
                "summary": "Delete a generated image",
                "parameters": [
                    {"type": "string", "description": "image id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        }
    },
    "definitions": {
        "auth.SignUpInput": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "confirm_password": {"type": "string"},
                "name": {"type": "string"}
            }
        },
        "auth.SignInInput": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "auth.Session": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "token_type": {"type": "string"},
                "expires_at": {"type": "string"},
                "user": {"$ref": "#/definitions/model.User"}
            }
        },
        "model.User": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "email": {"type": "string"},
                "name": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "handler.errorEnvelope": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "handler.errorPayload": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "error": {"$ref": "#/definitions/handler.errorEnvelope"}
            }
        },
        "handler.generationFailure": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "error": {"$ref": "#/definitions/handler.errorEnvelope"},
                "generation": {"$ref": "#/definitions/service.GenerationResult"}
            }
        },
        "handler.functionError": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        },
        "handler.secureCopyRequest": {
            "type": "object",
            "properties": {
                "imageUrl": {"type": "string"}
            }
        },
        "handler.secureCopyResponse": {
            "type": "object",
            "properties": {
                "path": {"type": "string"},
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "timestamp": {"type": "string"},
                "size": {"type": "integer"},
                "contentType": {"type": "string"}
            }
        },
        "handler.generateRequest": {
            "type": "object",
            "properties": {
                "prompt": {"type": "string"}
            }
        },
        "service.StateChange": {
            "type": "object",
            "properties": {
                "state": {"type": "string"},
                "at": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "service.GenerationResult": {
            "type": "object",
            "properties": {
                "prompt": {"type": "string"},
                "path": {"type": "string"},
                "signed_url": {"type": "string"},
                "expires_at": {"type": "string"},
                "history_saved": {"type": "boolean"},
                "history_id": {"type": "string"},
                "state": {"type": "string"},
                "transitions": {"type": "array", "items": {"$ref": "#/definitions/service.StateChange"}}
            }
        },
        "service.HistoryItem": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "prompt": {"type": "string"},
                "image_path": {"type": "string"},
                "created_at": {"type": "string"},
                "signed_url": {"type": "string"},
                "expires_at": {"type": "string"}
            }
        },
        "service.HistoryListResult": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/service.HistoryItem"}},
                "total": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Image Generation API",
	Description:      "Prompt to private, signed image with per-user history.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
