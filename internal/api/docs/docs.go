// Package docs holds the swagger document for the management API.
//
// Regenerate after changing handler annotations:
//
//	swag init -g internal/api/handlers/base.go -o internal/api/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "hydrablock",
            "url": "https://github.com/jroosing/hydrablock"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Returns server health status",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.StatusResponse"}}
                }
            }
        },
        "/stats": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns process, runtime and blocking statistics",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Server statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ServerStatsResponse"}}
                }
            },
            "delete": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Zeroes every blocking counter",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Reset blocking counters",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.StatusResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/logs": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns the request log, newest first",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Recent blocked requests",
                "parameters": [
                    {"type": "integer", "default": 100, "description": "Maximum entries", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.LogResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/config": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns the current configuration (api key redacted)",
                "produces": ["application/json"],
                "tags": ["config"],
                "summary": "Get current configuration",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/messages": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Delivers one {\"action\": name, ...payload} message to the coordinator and returns its reply.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Send a message",
                "parameters": [
                    {"description": "Message", "name": "message", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/filtering/enabled": {
            "put": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Turns request blocking on or off",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["filtering"],
                "summary": "Enable or disable filtering",
                "parameters": [
                    {"description": "Enable state", "name": "enabled", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.FilteringEnabledRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.StatusResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/filtering/whitelist": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns all domains in the whitelist",
                "produces": ["application/json"],
                "tags": ["filtering"],
                "summary": "Get whitelist domains",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.DomainListResponse"}}
                }
            },
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Adds one or more domains to the whitelist",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["filtering"],
                "summary": "Add domains to whitelist",
                "parameters": [
                    {"description": "Domains to add", "name": "domains", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.DomainRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ListChangeResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Removes one or more domains from the whitelist",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["filtering"],
                "summary": "Remove domains from whitelist",
                "parameters": [
                    {"description": "Domains to remove", "name": "domains", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.DomainRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ListChangeResponse"}}
                }
            }
        },
        "/filtering/custom": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns the user's custom filter patterns",
                "produces": ["application/json"],
                "tags": ["filtering"],
                "summary": "Get custom filters",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.FilterListResponse"}}
                }
            },
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Adds one or more custom filter patterns",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["filtering"],
                "summary": "Add custom filters",
                "parameters": [
                    {"description": "Patterns to add", "name": "filters", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.FilterRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ListChangeResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Removes one or more custom filter patterns",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["filtering"],
                "summary": "Remove custom filters",
                "parameters": [
                    {"description": "Patterns to remove", "name": "filters", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.FilterRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ListChangeResponse"}}
                }
            }
        },
        "/filtering/cosmetic": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns element-hiding selectors keyed by domain",
                "produces": ["application/json"],
                "tags": ["filtering"],
                "summary": "Get cosmetic filters",
                "parameters": [
                    {"type": "string", "description": "Page domain", "name": "domain", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.CosmeticResponse"}}
                }
            }
        },
        "/filtering/check": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Evaluates a URL against the current rules without counting or logging it",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["filtering"],
                "summary": "Check a URL",
                "parameters": [
                    {"description": "URL and resource type", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.CheckRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "models.StatusResponse": {
            "type": "object",
            "properties": {"status": {"type": "string"}}
        },
        "models.ServerStatsResponse": {
            "type": "object",
            "properties": {
                "uptime": {"type": "string"},
                "uptime_seconds": {"type": "integer"},
                "start_time": {"type": "string"},
                "goroutines": {"type": "integer"},
                "memory_alloc_mb": {"type": "number"},
                "num_cpu": {"type": "integer"},
                "process": {"type": "object"},
                "blocking": {"type": "object"}
            }
        },
        "models.LogResponse": {
            "type": "object",
            "properties": {
                "entries": {"type": "array", "items": {"type": "object"}},
                "count": {"type": "integer"}
            }
        },
        "models.DomainListResponse": {
            "type": "object",
            "properties": {
                "domains": {"type": "array", "items": {"type": "string"}},
                "count": {"type": "integer"}
            }
        },
        "models.DomainRequest": {
            "type": "object",
            "required": ["domains"],
            "properties": {"domains": {"type": "array", "minItems": 1, "items": {"type": "string"}}}
        },
        "models.FilterListResponse": {
            "type": "object",
            "properties": {
                "filters": {"type": "array", "items": {"type": "string"}},
                "count": {"type": "integer"}
            }
        },
        "models.FilterRequest": {
            "type": "object",
            "required": ["filters"],
            "properties": {"filters": {"type": "array", "minItems": 1, "items": {"type": "string"}}}
        },
        "models.ListChangeResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "changed": {"type": "integer"}
            }
        },
        "models.FilteringEnabledRequest": {
            "type": "object",
            "properties": {"enabled": {"type": "boolean"}}
        },
        "models.CheckRequest": {
            "type": "object",
            "required": ["url"],
            "properties": {
                "url": {"type": "string"},
                "type": {"type": "string"}
            }
        },
        "models.CosmeticResponse": {
            "type": "object",
            "properties": {
                "cosmetic": {"type": "object", "additionalProperties": {"type": "array", "items": {"type": "string"}}}
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
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "hydrablock Management API",
	Description:      "REST API for the hydrablock content-filtering agent.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
