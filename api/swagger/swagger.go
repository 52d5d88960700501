package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Timetable API",
        "description": "Curriculum-aware timetable query and registration service",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, token refresh and session management"},
        {"name": "Curriculum", "description": "Nested-set curriculum hierarchy"},
        {"name": "Instances", "description": "Timetable window queries"},
        {"name": "Availability", "description": "Capacity, registration and bookmarks"},
        {"name": "Terms", "description": "Academic term calendar"},
        {"name": "Export", "description": "Timetable document exports"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate by email or username",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate a refresh token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke the active refresh token",
                "responses": {
                    "204": {"description": "Revoked"}
                }
            }
        },
        "/curriculum/ranges": {
            "get": {
                "tags": ["Curriculum"],
                "summary": "Curriculum nodes for a resource",
                "parameters": [
                    {"name": "resource", "in": "query", "type": "string", "required": true},
                    {"name": "id", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Curriculum"],
                "summary": "Map a resource into the curriculum",
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/curriculum/ranges/{id}/children": {
            "get": {
                "tags": ["Curriculum"],
                "summary": "Direct children of a node",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/curriculum/subjects": {
            "get": {
                "tags": ["Curriculum"],
                "summary": "Subject scope of a program",
                "parameters": [
                    {"name": "program", "in": "query", "type": "string", "required": true},
                    {"name": "pool", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/instances": {
            "get": {
                "tags": ["Instances"],
                "summary": "Query timetable instances",
                "parameters": [
                    {"name": "date", "in": "query", "type": "string"},
                    {"name": "interval", "in": "query", "type": "string"},
                    {"name": "program", "in": "query", "type": "string"},
                    {"name": "groups", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "view", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/instances/{id}/availability": {
            "get": {
                "tags": ["Availability"],
                "summary": "Capacity figures for an instance",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Availability"}}
                }
            }
        },
        "/instances/{id}/register": {
            "post": {
                "tags": ["Availability"],
                "summary": "Register for an instance",
                "responses": {
                    "204": {"description": "Registered"},
                    "409": {"description": "No free capacity"}
                }
            },
            "delete": {
                "tags": ["Availability"],
                "summary": "Remove a registration",
                "responses": {
                    "204": {"description": "Removed"}
                }
            }
        },
        "/terms": {
            "get": {
                "tags": ["Terms"],
                "summary": "List terms",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/export/timetable": {
            "get": {
                "tags": ["Export"],
                "summary": "Export a timetable window",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "login": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "Availability": {
            "type": "object",
            "properties": {
                "instance_id": {"type": "string"},
                "capacity": {"type": "integer"},
                "registered": {"type": "integer"},
                "interested": {"type": "integer"},
                "full": {"type": "boolean"},
                "presence": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
