package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "EMS Program API",
        "description": "Bulk record operations for program administrators: preview, execute, audit and roll back.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "BulkOperations", "description": "Filtered bulk updates, deletes and exports with an audit log"}
    ],
    "paths": {
        "/bulk-operations": {
            "post": {
                "tags": ["BulkOperations"],
                "summary": "Preview or execute a bulk operation",
                "description": "With dry_run the matching rows are counted and previewed without changes. export_records answers with a file attachment.",
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json", "text/csv"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkOperationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/BulkOperationResult"}},
                    "400": {"description": "Invalid filter, operation or parameters", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Storage failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["BulkOperations"],
                "summary": "List bulk operation history",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "table", "in": "query", "type": "string"},
                    {"name": "operation", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "description": "Comma separated statuses"},
                    {"name": "performed_by", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/BulkOperationHistory"}},
                    "400": {"description": "Invalid query", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bulk-operations/tables": {
            "get": {
                "tags": ["BulkOperations"],
                "summary": "Describe filterable tables",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bulk-operations/{id}": {
            "get": {
                "tags": ["BulkOperations"],
                "summary": "Get a bulk operation log entry",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bulk-operations/{id}/receipt": {
            "get": {
                "tags": ["BulkOperations"],
                "summary": "Download a PDF receipt for a log entry",
                "security": [{"BearerAuth": []}],
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF document"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bulk-operations/{id}/rollback": {
            "post": {
                "tags": ["BulkOperations"],
                "summary": "Roll back a completed bulk operation",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/RollbackResult"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not rollbackable or already rolled back", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Storage failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "FilterCondition": {
            "type": "object",
            "required": ["field", "operator"],
            "properties": {
                "field": {"type": "string"},
                "operator": {"type": "string", "enum": ["equals", "not_equals", "contains", "greater_than", "less_than", "in_list"]},
                "value": {"type": "string", "description": "in_list takes a comma separated list"}
            }
        },
        "BulkOperationRequest": {
            "type": "object",
            "required": ["operation", "target_table"],
            "properties": {
                "operation": {"type": "string", "enum": ["update_status", "assign_cohort", "delete_records", "export_records"]},
                "target_table": {"type": "string", "enum": ["students", "lab_days", "shifts", "users", "internships"]},
                "filters": {"type": "array", "items": {"$ref": "#/definitions/FilterCondition"}},
                "parameters": {"type": "object", "description": "new_status, cohort_id, confirmed or format depending on operation"},
                "dry_run": {"type": "boolean"}
            }
        },
        "BulkOperationResult": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "dry_run": {"type": "boolean"},
                "operation_id": {"type": "string"},
                "total_matching": {"type": "integer"},
                "preview": {"type": "array", "items": {"type": "object"}},
                "affected_count": {"type": "integer"},
                "message": {"type": "string"}
            }
        },
        "RollbackResult": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "operation_id": {"type": "string"},
                "restored_count": {"type": "integer"},
                "message": {"type": "string"}
            }
        },
        "BulkOperationLog": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "operation_type": {"type": "string"},
                "target_table": {"type": "string"},
                "filters": {"type": "array", "items": {"$ref": "#/definitions/FilterCondition"}},
                "parameters": {"type": "object"},
                "affected_count": {"type": "integer"},
                "before_state": {"type": "array", "items": {"type": "object"}},
                "status": {"type": "string", "enum": ["pending", "running", "completed", "failed", "rolled_back"]},
                "performed_by": {"type": "string"},
                "error_message": {"type": "string"},
                "created_at": {"type": "string", "format": "date-time"},
                "completed_at": {"type": "string", "format": "date-time"},
                "rolled_back_at": {"type": "string", "format": "date-time"},
                "rolled_back_by": {"type": "string"}
            }
        },
        "BulkOperationHistory": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "operations": {"type": "array", "items": {"$ref": "#/definitions/BulkOperationLog"}},
                "pagination": {"$ref": "#/definitions/Pagination"}
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
                "success": {"type": "boolean"},
                "message": {"type": "string"},
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
