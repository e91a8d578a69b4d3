package http

import (
	"github.com/gin-gonic/gin"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
)

// Tracing starts a Datadog span per request; store spans nest under it.
func Tracing(service string) gin.HandlerFunc {
	return gintrace.Middleware(service)
}
