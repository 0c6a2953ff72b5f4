package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Training Center Academic API",
        "description": "Student requests, makeup and transfer lookups, and session lifecycle jobs",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "StudentRequests", "description": "Absence, makeup and transfer requests"},
        {"name": "Academic", "description": "Missed sessions, makeup ranking and transfer comparison"},
        {"name": "Scheduler", "description": "Batch job inspection and manual runs"}
    ],
    "paths": {
        "/student-requests": {
            "get": {
                "tags": ["StudentRequests"],
                "summary": "List student requests",
                "parameters": [
                    {"name": "status", "in": "query", "type": "array", "items": {"type": "string"}, "collectionFormat": "multi"},
                    {"name": "type", "in": "query", "type": "string", "enum": ["ABSENCE", "MAKEUP", "TRANSFER"]},
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "classId", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["StudentRequests"],
                "summary": "Submit an absence, makeup or transfer request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateStudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Business rule violation", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/student-requests/on-behalf": {
            "post": {
                "tags": ["StudentRequests"],
                "summary": "Record a request on behalf of a student; it is approved immediately",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OnBehalfRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/student-requests/{id}": {
            "get": {
                "tags": ["StudentRequests"],
                "summary": "Get a student request",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/student-requests/{id}/approve": {
            "post": {
                "tags": ["StudentRequests"],
                "summary": "Approve a pending request and apply its side effects",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecideRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Request is no longer pending", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/student-requests/{id}/reject": {
            "post": {
                "tags": ["StudentRequests"],
                "summary": "Reject a pending request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DecideRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/student-requests/{id}/cancel": {
            "post": {
                "tags": ["StudentRequests"],
                "summary": "Withdraw one's own pending request",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/students/{id}/missed-sessions": {
            "get": {
                "tags": ["Academic"],
                "summary": "List sessions the student missed within the lookback window",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "lookbackWeeks", "in": "query", "type": "integer"},
                    {"name": "excludeRequested", "in": "query", "type": "boolean"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sessions/{id}/makeup-options": {
            "get": {
                "tags": ["Academic"],
                "summary": "Rank replacement sessions for a missed session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/students/{id}/transfer-eligibility": {
            "get": {
                "tags": ["Academic"],
                "summary": "Transfer quota per active enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "classId", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/students/{id}/transfer-options": {
            "get": {
                "tags": ["Academic"],
                "summary": "Compare every open class the student could transfer into",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "currentClassId", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/scheduler/jobs": {
            "get": {
                "tags": ["Scheduler"],
                "summary": "List scheduled jobs",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/scheduler/jobs/{name}/run": {
            "post": {
                "tags": ["Scheduler"],
                "summary": "Run a job immediately",
                "parameters": [{"name": "name", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Job already running elsewhere", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/policies": {
            "get": {
                "tags": ["Policies"],
                "summary": "Effective policy values",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/policies/{key}": {
            "get": {
                "tags": ["Policies"],
                "summary": "Raw value of one policy key",
                "parameters": [{"name": "key", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown key", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/policies/refresh": {
            "post": {
                "tags": ["Policies"],
                "summary": "Drop cached policy values and reload them",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateStudentRequest": {
            "type": "object",
            "properties": {
                "requestType": {"type": "string", "enum": ["ABSENCE", "MAKEUP", "TRANSFER"]},
                "currentClassId": {"type": "string"},
                "targetSessionId": {"type": "string"},
                "makeupSessionId": {"type": "string"},
                "targetClassId": {"type": "string"},
                "effectiveDate": {"type": "string", "format": "date"},
                "reason": {"type": "string"}
            },
            "required": ["requestType", "currentClassId", "reason"]
        },
        "OnBehalfRequest": {
            "type": "object",
            "allOf": [{"$ref": "#/definitions/CreateStudentRequest"}],
            "properties": {
                "studentId": {"type": "string"},
                "capacityOverride": {"type": "boolean"},
                "overrideReason": {"type": "string"},
                "note": {"type": "string"}
            },
            "required": ["studentId"]
        },
        "DecideRequest": {
            "type": "object",
            "properties": {
                "note": {"type": "string"},
                "capacityOverride": {"type": "boolean"},
                "overrideReason": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "reason": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
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
