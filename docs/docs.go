// Package docs is the swag-generated API description for the command/query
// surface, registered so echo-swagger can serve it at /swagger/*. Keep the
// annotations on cmd/server/main.go in sync with the paths listed here.
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
        "/v1/weather/submit": {
            "post": {
                "summary": "Fetch and store the latest station samples for a plot",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/weather/indices": {
            "post": {
                "summary": "Compute drought/flood/heat indices over a window",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/weather/indices/{plot}": {
            "get": {
                "summary": "Fetch the latest computed weather index for a plot",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/planet/subscription": {
            "post": {
                "summary": "Create a satellite biomass subscription for a plot",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/v1/planet/subscription/{id}": {
            "get": {
                "summary": "Fetch subscription status",
                "responses": {"200": {"description": "OK"}}
            },
            "delete": {
                "summary": "Cancel a subscription",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/planet/biomass/{plot}": {
            "get": {
                "summary": "Fetch the latest biomass summary for a plot",
                "responses": {"200": {"description": "OK"}, "204": {"description": "No Content"}}
            }
        },
        "/v1/damage/assess": {
            "post": {
                "summary": "Run a damage assessment and bundle its evidence",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/v1/damage/assessments/{plot}": {
            "get": {
                "summary": "List assessments for a plot",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/damage/assessment/{id}": {
            "get": {
                "summary": "Fetch a single assessment",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/tasks/{id}": {
            "get": {
                "summary": "Fetch the state of a background task",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/health": {
            "get": {
                "summary": "Liveness/readiness probe",
                "responses": {"200": {"description": "OK"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Ingestion Core API",
	Description:      "Weather and biomass ingestion, damage assessment and evidence bundling for a parametric crop-insurance core.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
