// Package docs registers the feedrelay API document with swag.
package docs

import "github.com/swaggo/swag"

// @title feedrelay API
// @version 1.0
// @description Feed ingestion, item state and content extraction service

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

func init() {
	swag.Register(swag.Name, &swag.Spec{
		InfoInstanceName: "swagger",
		SwaggerTemplate:  docTemplate,
	})
}

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "feedrelay API",
        "description": "Feed ingestion, item state and content extraction service",
        "version": "1.0.0",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        }
    },
    "host": "localhost:8080",
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "consumes": ["application/json"],
    "produces": ["application/json"],
    "paths": {
        "/items": {
            "get": {
                "tags": ["Items"],
                "summary": "List Items",
                "description": "List items newest first. group_names takes precedence over group.",
                "operationId": "getItems",
                "parameters": [
                    {"name": "state", "in": "query", "type": "string", "enum": ["unread", "read", "archived", "deleted"]},
                    {"name": "group", "in": "query", "type": "string"},
                    {"name": "group_names", "in": "query", "type": "string", "description": "Comma separated group names"},
                    {"name": "source_ids", "in": "query", "type": "string", "description": "Comma separated source ids"}
                ],
                "responses": {
                    "200": {
                        "description": "Matching items",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "items": {"type": "array", "items": {"$ref": "#/definitions/Item"}},
                                "count": {"type": "integer"}
                            }
                        }
                    },
                    "400": {"description": "Invalid filter", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/items/state": {
            "post": {
                "tags": ["Items"],
                "summary": "Bulk Update State",
                "description": "Set the state of several items in one transaction. Unknown ids are ignored.",
                "operationId": "bulkUpdateItemState",
                "parameters": [
                    {
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object",
                            "properties": {
                                "ids": {"type": "array", "items": {"type": "integer"}},
                                "state": {"type": "string"}
                            }
                        }
                    }
                ],
                "responses": {
                    "200": {"description": "States updated"},
                    "400": {"description": "Invalid state", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/items/{id}": {
            "get": {
                "tags": ["Items"],
                "summary": "Get Item",
                "operationId": "getItem",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "The item", "schema": {"$ref": "#/definitions/Item"}},
                    "404": {"description": "Item not found", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/items/{id}/state": {
            "put": {
                "tags": ["Items"],
                "summary": "Update State",
                "operationId": "updateItemState",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"type": "object", "properties": {"state": {"type": "string"}}}
                    }
                ],
                "responses": {
                    "200": {"description": "State updated"},
                    "400": {"description": "Invalid state", "schema": {"$ref": "#/definitions/Error"}},
                    "404": {"description": "Item not found", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/items/{id}/extract": {
            "post": {
                "tags": ["Extraction"],
                "summary": "Trigger Extraction",
                "description": "Queue full text extraction. Items already fetching or extracted are left alone.",
                "operationId": "triggerExtraction",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "202": {"description": "Extraction queued"},
                    "404": {"description": "Item not found", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/preferences/{key}": {
            "get": {
                "tags": ["Preferences"],
                "summary": "Get Preference",
                "description": "Value is null when the key was never saved.",
                "operationId": "getPreference",
                "parameters": [
                    {"name": "key", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "The preference", "schema": {"$ref": "#/definitions/Preference"}}
                }
            },
            "put": {
                "tags": ["Preferences"],
                "summary": "Set Preference",
                "operationId": "setPreference",
                "parameters": [
                    {"name": "key", "in": "path", "required": true, "type": "string"},
                    {
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"type": "object", "properties": {"value": {"type": "string"}}}
                    }
                ],
                "responses": {
                    "200": {"description": "Preference saved", "schema": {"$ref": "#/definitions/Preference"}},
                    "400": {"description": "Missing value", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/views": {
            "get": {
                "tags": ["Views"],
                "summary": "List Views",
                "operationId": "getViews",
                "responses": {
                    "200": {
                        "description": "Saved views ordered by name",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "views": {"type": "array", "items": {"$ref": "#/definitions/CustomView"}},
                                "count": {"type": "integer"}
                            }
                        }
                    }
                }
            },
            "post": {
                "tags": ["Views"],
                "summary": "Create View",
                "operationId": "createView",
                "parameters": [
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CustomViewInput"}}
                ],
                "responses": {
                    "201": {"description": "View created", "schema": {"type": "object", "properties": {"id": {"type": "integer"}}}},
                    "400": {"description": "Missing name", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/views/{id}": {
            "get": {
                "tags": ["Views"],
                "summary": "Get View",
                "operationId": "getView",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "The view", "schema": {"$ref": "#/definitions/CustomView"}},
                    "404": {"description": "View not found", "schema": {"$ref": "#/definitions/Error"}}
                }
            },
            "put": {
                "tags": ["Views"],
                "summary": "Update View",
                "description": "Replaces the name and both filter lists.",
                "operationId": "updateView",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CustomViewInput"}}
                ],
                "responses": {
                    "200": {"description": "View updated"},
                    "400": {"description": "Missing name", "schema": {"$ref": "#/definitions/Error"}},
                    "404": {"description": "View not found", "schema": {"$ref": "#/definitions/Error"}}
                }
            },
            "delete": {
                "tags": ["Views"],
                "summary": "Delete View",
                "operationId": "deleteView",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "204": {"description": "View deleted"},
                    "404": {"description": "View not found", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/sources": {
            "get": {
                "tags": ["Sources"],
                "summary": "List Sources",
                "operationId": "getSources",
                "responses": {
                    "200": {"description": "Stored feed sources"}
                }
            }
        },
        "/stats": {
            "get": {
                "tags": ["Storage"],
                "summary": "Storage Statistics",
                "operationId": "getStats",
                "responses": {
                    "200": {"description": "Item counts by state, completeness and extraction status"}
                }
            }
        },
        "/storage/optimize": {
            "post": {
                "tags": ["Storage"],
                "summary": "Optimize Storage",
                "operationId": "optimizeStorage",
                "responses": {
                    "200": {"description": "Database optimized"}
                }
            }
        },
        "/poller/status": {
            "get": {
                "tags": ["Poller"],
                "summary": "Poller Status",
                "operationId": "getPollerStatus",
                "responses": {
                    "200": {"description": "Poller state"}
                }
            }
        },
        "/poller/force-poll/{source}": {
            "post": {
                "tags": ["Poller"],
                "summary": "Force Poll",
                "operationId": "forcePollSource",
                "parameters": [
                    {"name": "source", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Source polled"},
                    "404": {"description": "Unknown source or fetch failure", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/poller/last-polled": {
            "get": {
                "tags": ["Poller"],
                "summary": "Last Polled Times",
                "operationId": "getLastPolledTimes",
                "responses": {
                    "200": {"description": "Map of source name to last poll time"}
                }
            }
        }
    },
    "definitions": {
        "Item": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "source_id": {"type": "integer"},
                "external_id": {"type": "string"},
                "title": {"type": "string"},
                "summary": {"type": "string"},
                "url": {"type": "string"},
                "item_type": {"type": "string"},
                "state": {"type": "string", "enum": ["unread", "read", "archived", "deleted"]},
                "created_at": {"type": "integer", "description": "Unix seconds"},
                "updated_at": {"type": "integer", "description": "Unix seconds"},
                "image_url": {"type": "string"},
                "content_html": {"type": "string"},
                "author": {"type": "string"},
                "category": {"type": "string", "description": "JSON array of categories"},
                "comments": {"type": "string"},
                "source_name": {"type": "string"},
                "source_group": {"type": "string"},
                "content_status": {"type": "string", "enum": ["fetching", "extracted", "failed", "skipped"]},
                "extracted_content_html": {"type": "string"},
                "content_completeness": {"type": "string", "enum": ["unknown", "partial", "full"]},
                "extraction_attempted_at": {"type": "integer"},
                "extraction_failed_reason": {"type": "string"}
            }
        },
        "Preference": {
            "type": "object",
            "properties": {
                "key": {"type": "string"},
                "value": {"type": "string", "x-nullable": true}
            }
        },
        "CustomView": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "name": {"type": "string"},
                "source_ids": {"type": "array", "items": {"type": "integer"}},
                "group_names": {"type": "array", "items": {"type": "string"}},
                "created_at": {"type": "integer", "description": "Unix seconds"},
                "updated_at": {"type": "integer", "description": "Unix seconds"}
            }
        },
        "CustomViewInput": {
            "type": "object",
            "required": ["name"],
            "properties": {
                "name": {"type": "string"},
                "source_ids": {"type": "array", "items": {"type": "integer"}},
                "group_names": {"type": "array", "items": {"type": "string"}}
            }
        },
        "Error": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        }
    },
    "tags": [
        {"name": "Items", "description": "Item listing and state"},
        {"name": "Extraction", "description": "Full text extraction"},
        {"name": "Preferences", "description": "User preference store"},
        {"name": "Views", "description": "Saved source and group filters"},
        {"name": "Sources", "description": "Configured feeds"},
        {"name": "Storage", "description": "Database maintenance"},
        {"name": "Poller", "description": "Background poller endpoints"}
    ]
}`
