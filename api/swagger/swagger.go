package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Rewards API",
        "description": "XP and Atoms reward ledger for the school platform",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, token refresh and password management"},
        {"name": "Ledger", "description": "Balances, transactions and statements"},
        {"name": "Rewards", "description": "Reward rules and rule application"},
        {"name": "Levels", "description": "XP level table"},
        {"name": "Store", "description": "Product catalog and atom orders"}
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
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/students/{studentId}/balances": {
            "get": {
                "tags": ["Ledger"],
                "summary": "Get XP and Atoms balances plus resolved level",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/summary": {
            "get": {
                "tags": ["Ledger"],
                "summary": "Get balances plus the most recent transactions",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/transactions": {
            "get": {
                "tags": ["Ledger"],
                "summary": "List ledger transactions",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "currency", "in": "query", "type": "string"},
                    {"name": "referenceType", "in": "query", "type": "string"},
                    {"name": "dateFrom", "in": "query", "type": "string"},
                    {"name": "dateTo", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/statement": {
            "get": {
                "tags": ["Ledger"],
                "summary": "Download an account statement (csv or pdf)",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "currency", "in": "query", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Statement file"}
                }
            }
        },
        "/ledger/adjustments": {
            "post": {
                "tags": ["Ledger"],
                "summary": "Apply a manual credit or debit",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ManualAdjustmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Insufficient balance", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ledger/reconcile/{studentId}": {
            "post": {
                "tags": ["Ledger"],
                "summary": "Replay one account and report drift",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "currency", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ledger/reconciliation": {
            "post": {
                "tags": ["Ledger"],
                "summary": "Enqueue a reconciliation sweep over recently active accounts",
                "responses": {
                    "202": {"description": "Accepted"}
                }
            }
        },
        "/rewards/apply": {
            "post": {
                "tags": ["Rewards"],
                "summary": "Apply a reward rule to a batch of students",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplyRuleRequest"}}
                ],
                "responses": {
                    "200": {"description": "All students succeeded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "207": {"description": "Partial success", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rewards/applications": {
            "get": {
                "tags": ["Rewards"],
                "summary": "List applied rewards",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "ruleId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rewards/rules": {
            "get": {
                "tags": ["Rewards"],
                "summary": "List reward rules",
                "parameters": [
                    {"name": "source", "in": "query", "type": "string"},
                    {"name": "kind", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Rewards"],
                "summary": "Create reward rule",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertRuleRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rewards/rules/{id}": {
            "get": {
                "tags": ["Rewards"],
                "summary": "Get reward rule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Rewards"],
                "summary": "Update reward rule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertRuleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Rewards"],
                "summary": "Deactivate reward rule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/levels": {
            "get": {
                "tags": ["Levels"],
                "summary": "List XP levels",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Levels"],
                "summary": "Replace the XP level table",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReplaceLevelsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/levels/resolve": {
            "get": {
                "tags": ["Levels"],
                "summary": "Resolve the level for an XP total",
                "parameters": [
                    {"name": "xp", "in": "query", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/store/products": {
            "get": {
                "tags": ["Store"],
                "summary": "List products",
                "parameters": [
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Store"],
                "summary": "Create product",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertProductRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/store/products/{id}": {
            "put": {
                "tags": ["Store"],
                "summary": "Update product",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertProductRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/store/products/{id}/restock": {
            "post": {
                "tags": ["Store"],
                "summary": "Restock product",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RestockRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/store/orders": {
            "get": {
                "tags": ["Store"],
                "summary": "List orders",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "paymentStatus", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Store"],
                "summary": "Create order and debit atoms",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateOrderRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Insufficient balance or stock", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/store/orders/{id}": {
            "get": {
                "tags": ["Store"],
                "summary": "Get order detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/store/orders/{id}/status": {
            "patch": {
                "tags": ["Store"],
                "summary": "Update fulfilment status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "StudentBalance": {
            "type": "object",
            "properties": {
                "currency": {"type": "string"},
                "balance": {"type": "integer"},
                "level_id": {"type": "string"}
            }
        },
        "LedgerTransaction": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "student_id": {"type": "string"},
                "currency": {"type": "string"},
                "amount": {"type": "integer"},
                "reference_type": {"type": "string"},
                "reference_id": {"type": "string"},
                "description": {"type": "string"},
                "created_by": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "ManualAdjustmentRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "currency": {"type": "string"},
                "amount": {"type": "integer"},
                "description": {"type": "string"},
                "reference_id": {"type": "string"}
            },
            "required": ["student_id", "currency", "amount", "description"]
        },
        "ApplyRuleRequest": {
            "type": "object",
            "properties": {
                "rule_id": {"type": "string"},
                "student_ids": {"type": "array", "items": {"type": "string"}},
                "notes": {"type": "string"},
                "idempotency_key": {"type": "string"}
            },
            "required": ["rule_id", "student_ids"]
        },
        "UpsertRuleRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "source": {"type": "string"},
                "kind": {"type": "string"},
                "reward_type": {"type": "string"},
                "xp_value": {"type": "integer"},
                "atoms_value": {"type": "integer"},
                "active": {"type": "boolean"}
            },
            "required": ["name", "source", "kind", "reward_type"]
        },
        "ReplaceLevelsRequest": {
            "type": "object",
            "properties": {
                "levels": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/LevelEntry"}
                }
            },
            "required": ["levels"]
        },
        "LevelEntry": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "min_xp": {"type": "integer"},
                "max_xp": {"type": "integer"}
            },
            "required": ["name", "min_xp"]
        },
        "UpsertProductRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "description": {"type": "string"},
                "price_atoms": {"type": "integer"},
                "stock_quantity": {"type": "integer"},
                "active": {"type": "boolean"}
            },
            "required": ["name", "price_atoms"]
        },
        "RestockRequest": {
            "type": "object",
            "properties": {
                "quantity": {"type": "integer"}
            },
            "required": ["quantity"]
        },
        "CreateOrderRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "items": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "product_id": {"type": "string"},
                            "quantity": {"type": "integer"}
                        }
                    }
                }
            },
            "required": ["student_id", "items"]
        },
        "StatusRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string"}
            },
            "required": ["status"]
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
