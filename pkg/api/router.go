package api

import "github.com/gin-gonic/gin"

// RouterRegistrar mounts a group of routes on the admin engine. Admin is the
// built-in one; applications add their own through RoutesFunc.
type RouterRegistrar interface {
	RegisterRoutes(engine *gin.Engine)
}

// RoutesFunc adapts a plain function to RouterRegistrar.
type RoutesFunc func(engine *gin.Engine)

func (f RoutesFunc) RegisterRoutes(engine *gin.Engine) {
	if f != nil {
		f(engine)
	}
}

// Register mounts every non-nil registrar in order.
func Register(engine *gin.Engine, registrars ...RouterRegistrar) {
	for _, r := range registrars {
		if r != nil {
			r.RegisterRoutes(engine)
		}
	}
}
