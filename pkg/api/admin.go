package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServiceView is the read side of the router that the admin API exposes.
type ServiceView interface {
	Followed() []string
	Services() map[string][]string
}

// Admin registers the operational endpoints:
//
//	GET /healthz         liveness
//	GET /metrics         prometheus exposition, when Gatherer is set
//	GET /services        followed services and their pooled endpoints
//	GET /services/*name  endpoints of one service
type Admin struct {
	Services ServiceView
	Gatherer prometheus.Gatherer
}

var _ RouterRegistrar = (*Admin)(nil)

type serviceInfo struct {
	Name      string   `json:"name"`
	Endpoints []string `json:"endpoints"`
}

func (a *Admin) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if a.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Gatherer, promhttp.HandlerOpts{})))
	}

	if a.Services == nil {
		return
	}
	engine.GET("/services", a.listServices)
	engine.GET("/services/*name", a.getService)
}

func (a *Admin) listServices(c *gin.Context) {
	snapshot := a.Services.Services()

	out := make([]serviceInfo, 0, len(snapshot))
	for name, addrs := range snapshot {
		out = append(out, serviceInfo{Name: name, Endpoints: addrs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	c.JSON(http.StatusOK, gin.H{"services": out})
}

// getService accepts the service name with or without its leading slash.
func (a *Admin) getService(c *gin.Context) {
	name := "/" + strings.Trim(c.Param("name"), "/")

	addrs, ok := a.Services.Services()[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    http.StatusNotFound,
			"message": "service not followed: " + name,
		})
		return
	}
	c.JSON(http.StatusOK, serviceInfo{Name: name, Endpoints: addrs})
}
