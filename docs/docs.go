package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Attendance Router",
    "description": "Multi-tenant attendance routing, claiming and transfer API",
    "version": "1.0"
  },
  "basePath": "/",
  "securityDefinitions": {
    "BearerAuth": {
      "type": "apiKey",
      "name": "Authorization",
      "in": "header"
    },
    "ServiceKey": {
      "type": "apiKey",
      "name": "X-Service-Key",
      "in": "header"
    }
  },
  "paths": {
    "/healthz": {
      "get": {
        "tags": [
          "health"
        ],
        "summary": "Health check",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/attendances": {
      "get": {
        "tags": [
          "attendances"
        ],
        "summary": "List attendances",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/attendances/stats": {
      "get": {
        "tags": [
          "attendances"
        ],
        "summary": "Attendance counters",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/attendances/queue": {
      "get": {
        "tags": [
          "attendances"
        ],
        "summary": "Smart queue",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/attendances/stream": {
      "get": {
        "tags": [
          "attendances"
        ],
        "summary": "Attendance event stream",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/attendances/by-lead/{leadId}": {
      "get": {
        "tags": [
          "attendances"
        ],
        "summary": "Attendance of a lead",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        },
        "parameters": [
          {
            "type": "string",
            "name": "leadId",
            "in": "path",
            "required": true
          }
        ]
      }
    },
    "/api/attendances/{id}": {
      "get": {
        "tags": [
          "attendances"
        ],
        "summary": "Attendance details",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        },
        "parameters": [
          {
            "type": "string",
            "name": "id",
            "in": "path",
            "required": true
          }
        ]
      }
    },
    "/api/attendances/{id}/logs": {
      "get": {
        "tags": [
          "attendances"
        ],
        "summary": "Attendance audit log",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        },
        "parameters": [
          {
            "type": "string",
            "name": "id",
            "in": "path",
            "required": true
          }
        ]
      }
    },
    "/api/attendances/{id}/claim": {
      "post": {
        "tags": [
          "attendances"
        ],
        "summary": "Claim attendance",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        },
        "parameters": [
          {
            "type": "string",
            "name": "id",
            "in": "path",
            "required": true
          }
        ]
      }
    },
    "/api/attendances/{id}/transfer": {
      "post": {
        "tags": [
          "attendances"
        ],
        "summary": "Transfer attendance",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        },
        "parameters": [
          {
            "type": "string",
            "name": "id",
            "in": "path",
            "required": true
          }
        ]
      }
    },
    "/api/attendances/{id}/close": {
      "post": {
        "tags": [
          "attendances"
        ],
        "summary": "Close attendance",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        },
        "parameters": [
          {
            "type": "string",
            "name": "id",
            "in": "path",
            "required": true
          }
        ]
      }
    },
    "/api/attendances/{id}/priority": {
      "patch": {
        "tags": [
          "attendances"
        ],
        "summary": "Update attendance priority",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        },
        "parameters": [
          {
            "type": "string",
            "name": "id",
            "in": "path",
            "required": true
          }
        ]
      }
    },
    "/api/attendances/sync-leads": {
      "post": {
        "tags": [
          "runs"
        ],
        "summary": "Open attendances for orphan leads",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/attendances/reconcile": {
      "post": {
        "tags": [
          "runs"
        ],
        "summary": "Repair conversation ownership drift",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/runs/latest": {
      "get": {
        "tags": [
          "runs"
        ],
        "summary": "Latest run",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/departments": {
      "get": {
        "tags": [
          "departments"
        ],
        "summary": "List departments",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      },
      "post": {
        "tags": [
          "departments"
        ],
        "summary": "Create department",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/departments/mine": {
      "get": {
        "tags": [
          "departments"
        ],
        "summary": "Departments of the caller",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/departments/{id}": {
      "get": {
        "tags": [
          "departments"
        ],
        "summary": "Department details",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        },
        "parameters": [
          {
            "type": "string",
            "name": "id",
            "in": "path",
            "required": true
          }
        ]
      },
      "put": {
        "tags": [
          "departments"
        ],
        "summary": "Update department",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        },
        "parameters": [
          {
            "type": "string",
            "name": "id",
            "in": "path",
            "required": true
          }
        ]
      },
      "delete": {
        "tags": [
          "departments"
        ],
        "summary": "Delete department",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        },
        "parameters": [
          {
            "type": "string",
            "name": "id",
            "in": "path",
            "required": true
          }
        ]
      }
    },
    "/api/departments/{id}/members": {
      "get": {
        "tags": [
          "departments"
        ],
        "summary": "List department members",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        },
        "parameters": [
          {
            "type": "string",
            "name": "id",
            "in": "path",
            "required": true
          }
        ]
      },
      "post": {
        "tags": [
          "departments"
        ],
        "summary": "Add department member",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        },
        "parameters": [
          {
            "type": "string",
            "name": "id",
            "in": "path",
            "required": true
          }
        ]
      }
    },
    "/api/departments/{id}/members/{userId}": {
      "delete": {
        "tags": [
          "departments"
        ],
        "summary": "Remove department member",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        },
        "parameters": [
          {
            "type": "string",
            "name": "id",
            "in": "path",
            "required": true
          },
          {
            "type": "string",
            "name": "userId",
            "in": "path",
            "required": true
          }
        ]
      }
    },
    "/internal/messages/incoming": {
      "post": {
        "tags": [
          "internal"
        ],
        "summary": "Incoming message hook",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/internal/messages/outgoing": {
      "post": {
        "tags": [
          "internal"
        ],
        "summary": "Outgoing message hook",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    }
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
