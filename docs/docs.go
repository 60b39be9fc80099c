// Package docs holds the OpenAPI description served at /swagger.
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
    "paths": {
        "/media": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Store a file locally and relay it to the configured remote host",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["media"],
                "summary": "Upload media",
                "parameters": [
                    {"type": "file", "description": "File to upload", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/media.AttachmentResponse"}},
                    "400": {"description": "Invalid file", "schema": {"type": "string"}},
                    "401": {"description": "Unauthorized", "schema": {"type": "string"}},
                    "413": {"description": "File too large", "schema": {"type": "string"}},
                    "500": {"description": "Relayed but not recorded", "schema": {"$ref": "#/definitions/media.AttachmentResponse"}}
                }
            }
        },
        "/media/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Attachment metadata including relay status",
                "produces": ["application/json"],
                "tags": ["media"],
                "summary": "Get media",
                "parameters": [
                    {"type": "integer", "description": "Attachment ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/media.AttachmentResponse"}},
                    "400": {"description": "Invalid ID", "schema": {"type": "string"}},
                    "404": {"description": "Not found", "schema": {"type": "string"}}
                }
            }
        },
        "/media/{id}/url": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Remote URL when the attachment was relayed, local URL otherwise",
                "produces": ["application/json"],
                "tags": ["media"],
                "summary": "Resolve media URL",
                "parameters": [
                    {"type": "integer", "description": "Attachment ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Respond with 302 to the resolved URL", "name": "redirect", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/media.URLResponse"}},
                    "302": {"description": "Found"},
                    "404": {"description": "Not found", "schema": {"type": "string"}}
                }
            }
        },
        "/media/{id}/relay": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Re-attempt the relay of an attachment that was skipped or failed",
                "produces": ["application/json"],
                "tags": ["media"],
                "summary": "Relay media again",
                "parameters": [
                    {"type": "integer", "description": "Attachment ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/media.AttachmentResponse"}},
                    "404": {"description": "Not found", "schema": {"type": "string"}}
                }
            }
        }
    },
    "definitions": {
        "media.AttachmentResponse": {
            "type": "object",
            "properties": {
                "backend": {"type": "string"},
                "created_at": {"type": "string"},
                "filename": {"type": "string"},
                "id": {"type": "integer"},
                "local_deleted": {"type": "boolean"},
                "local_url": {"type": "string"},
                "mime_type": {"type": "string"},
                "relay_message": {"type": "string"},
                "relay_status": {"type": "string", "example": "relayed"},
                "remote_mime": {"type": "string"},
                "remote_url": {"type": "string"},
                "size_bytes": {"type": "integer"},
                "updated_at": {"type": "string"}
            }
        },
        "media.URLResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "url": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Media Relay API",
	Description:      "Uploads media files and relays them to a remote image host, CDN, FTP server or S3 bucket.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
