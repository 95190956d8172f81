package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/invopop/jsonschema"

	"raicompanion/internal/analysis"
)

var (
	schemaOnce sync.Once
	schemas    gin.H
)

func reflectSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	return reflector.Reflect(v)
}

// schema serves the JSON Schemas of the analyze request body and its result.
func (h *handlers) schema(c *gin.Context) {
	schemaOnce.Do(func() {
		schemas = gin.H{
			"analyze_request": reflectSchema[analyzeRequest](),
			"analyze_result":  reflectSchema[analysis.Result](),
		}
	})
	c.JSON(http.StatusOK, schemas)
}
