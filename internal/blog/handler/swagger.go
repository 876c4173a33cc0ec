package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves a Swagger UI page and the OpenAPI document of the blog API.
//   - GET /swagger/index.html
//   - GET /swagger/doc.json
func RegisterSwagger(r *gin.Engine) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>mantica-blog Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "mantica-blog", "version": "v0.1.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer" } },
    "parameters": {
      "lang": { "name": "lang", "in": "path", "required": true, "schema": {"type":"string"} },
      "after": { "name": "after", "in": "query", "description": "return articles with a greater id", "schema": {"type":"string"} },
      "count": { "name": "count", "in": "query", "schema": {"type":"integer","default":10,"maximum":100} }
    }
  },
  "paths": {
    "/api/read/{lang}/articles": {
      "get": { "summary": "Published article versions in a language", "parameters": [{"$ref":"#/components/parameters/lang"},{"$ref":"#/components/parameters/after"},{"$ref":"#/components/parameters/count"}], "responses": { "200": { "description": "article versions" }, "400": { "description": "invalid count" } } }
    },
    "/api/read/{lang}/articles/{slug}": {
      "get": { "summary": "Article version by slug", "parameters": [{"$ref":"#/components/parameters/lang"},{"name":"slug","in":"path","required":true,"schema":{"type":"string"}}], "responses": { "200": { "description": "article version" }, "404": { "description": "not found" } } }
    },
    "/api/read/{lang}/metadata": {
      "get": { "summary": "Metadata versions in a language", "parameters": [{"$ref":"#/components/parameters/lang"}], "responses": { "200": { "description": "metadata versions" } } }
    },
    "/api/read/{lang}/metadata/{type}/{slug}/articles": {
      "get": { "summary": "Articles by metadata", "parameters": [{"$ref":"#/components/parameters/lang"},{"name":"type","in":"path","required":true,"schema":{"type":"string","enum":["None","Tag","Category","Language"]}},{"name":"slug","in":"path","required":true,"schema":{"type":"string"}},{"$ref":"#/components/parameters/after"},{"$ref":"#/components/parameters/count"}], "responses": { "200": { "description": "article versions" }, "400": { "description": "unknown metadata type" } } }
    },
    "/api/read/{lang}/authors/{slug}/articles": {
      "get": { "summary": "Articles by author slug", "parameters": [{"$ref":"#/components/parameters/lang"},{"name":"slug","in":"path","required":true,"schema":{"type":"string"}},{"$ref":"#/components/parameters/after"},{"$ref":"#/components/parameters/count"}], "responses": { "200": { "description": "article versions" } } }
    },
    "/api/author/articles": {
      "post": { "summary": "Create an article", "security": [{"bearer":[]}], "responses": { "201": { "description": "created id" }, "400": { "description": "article already has an id" }, "409": { "description": "duplicate id" } } },
      "get": { "summary": "Articles by author id", "security": [{"bearer":[]}], "parameters": [{"name":"author","in":"query","required":true,"schema":{"type":"string"}}], "responses": { "200": { "description": "articles" } } }
    },
    "/api/author/articles/{id}": {
      "put": { "summary": "Replace an article", "security": [{"bearer":[]}], "parameters": [{"name":"id","in":"path","required":true,"schema":{"type":"string"}}], "responses": { "200": { "description": "updated" }, "400": { "description": "invalid id" } } }
    },
    "/api/author/metadata": {
      "get": { "summary": "Metadata catalog", "security": [{"bearer":[]}], "responses": { "200": { "description": "catalog with etag" } } },
      "put": { "summary": "Replace the metadata catalog", "security": [{"bearer":[]}], "responses": { "200": { "description": "catalog with new etag" }, "412": { "description": "stale etag" } } }
    },
    "/api/author/logout": {
      "post": { "summary": "Revoke the presented token", "security": [{"bearer":[]}], "responses": { "204": { "description": "revoked" } } }
    },
    "/api/admin/authors": {
      "get": { "summary": "Author catalog", "security": [{"bearer":[]}], "responses": { "200": { "description": "catalog with etag" }, "501": { "description": "catalog disabled" } } },
      "put": { "summary": "Replace the author catalog", "security": [{"bearer":[]}], "responses": { "200": { "description": "catalog with new etag" }, "412": { "description": "stale etag" }, "501": { "description": "catalog disabled" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
