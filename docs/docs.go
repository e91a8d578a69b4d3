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
        "/api/auth/register": {
            "post": {
                "description": "Creates an unverified account and emails a 6-digit confirmation code.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Register user",
                "parameters": [
                    {"description": "register", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/auth.RegisterInput"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/http.registerResp"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.errorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        },
        "/api/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Login",
                "parameters": [
                    {"description": "login", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/auth.LoginInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.loginResp"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        },
        "/api/auth/verify": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Confirm email with the mailed code",
                "parameters": [
                    {"description": "email and code", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.verifyReq"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.sessionResp"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        },
        "/api/auth/getUser": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.User"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.errorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        },
        "/api/auth/update-profile": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Update the caller's profile",
                "parameters": [
                    {"description": "fields to change", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.profileReq"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.profileResp"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.errorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        },
        "/api/auth/sendpasswordlink": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["password"],
                "summary": "Email a password reset link",
                "parameters": [
                    {"description": "email", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.emailReq"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.statusResp"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.errorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.errorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        },
        "/api/auth/forgotpassword/{id}/{token}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["password"],
                "summary": "Validate a password reset link",
                "parameters": [
                    {"type": "string", "description": "user id", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "reset token", "name": "token", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.resetLinkResp"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.errorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        },
        "/api/auth/{id}/{token}": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["password"],
                "summary": "Set a new password from a reset link",
                "parameters": [
                    {"type": "string", "description": "user id", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "reset token", "name": "token", "in": "path", "required": true},
                    {"description": "new password", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.passwordReq"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.statusResp"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.errorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.errorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        },
        "/api/auth/google": {
            "get": {
                "tags": ["oauth"],
                "summary": "Start Google sign-in",
                "responses": {
                    "302": {"description": "Found"},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        },
        "/api/auth/google/callback": {
            "get": {
                "description": "Redirects to the client with ?token= on success or ?error= on failure.",
                "tags": ["oauth"],
                "summary": "Google sign-in callback",
                "parameters": [
                    {"type": "string", "description": "authorization code", "name": "code", "in": "query", "required": true},
                    {"type": "string", "description": "signed state", "name": "state", "in": "query", "required": true}
                ],
                "responses": {
                    "302": {"description": "Found"}
                }
            }
        },
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Liveness and dependency check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "auth.LoginInput": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "auth.RegisterInput": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "fullName": {"type": "string"},
                "password": {"type": "string"},
                "profileImageUrl": {"type": "string"}
            }
        },
        "domain.User": {
            "type": "object",
            "properties": {
                "bio": {"type": "string"},
                "createdAt": {"type": "string"},
                "email": {"type": "string"},
                "fullName": {"type": "string"},
                "googleId": {"type": "string"},
                "id": {"type": "string"},
                "profileImageUrl": {"type": "string"},
                "status": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "http.emailReq": {
            "type": "object",
            "properties": {"email": {"type": "string"}}
        },
        "http.errorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "http.loginResp": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "token": {"type": "string"},
                "user": {"$ref": "#/definitions/domain.User"}
            }
        },
        "http.passwordReq": {
            "type": "object",
            "properties": {"password": {"type": "string"}}
        },
        "http.profileReq": {
            "type": "object",
            "properties": {
                "bio": {"type": "string"},
                "fullName": {"type": "string"},
                "name": {"type": "string"},
                "profileImageUrl": {"type": "string"}
            }
        },
        "http.profileResp": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "user": {"$ref": "#/definitions/domain.User"}
            }
        },
        "http.registerResp": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "message": {"type": "string"},
                "verifytoken": {"type": "string"}
            }
        },
        "http.resetLinkResp": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "id": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "http.sessionResp": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "token": {"type": "string"},
                "user": {"$ref": "#/definitions/domain.User"}
            }
        },
        "http.statusResp": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "http.verifyReq": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "email": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and the session token.",
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
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "LearnPath Auth API",
	Description:      "Registration, email verification, login, password reset and Google sign-in for the LearnPath platform.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
