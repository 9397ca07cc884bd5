package api

import (
	"net/http"
	"os"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"

	"github.com/jroosing/hydrablock/internal/api/models"
)

// ListsPrefix is where the filter-list directory is served.
const ListsPrefix = "/lists"

// MountLists serves the filter-list directory read-only under /lists so other
// agents can pull the same lists. Nothing is mounted when dir is empty or
// missing.
func MountLists(r *gin.Engine, dir string, mw ...gin.HandlerFunc) bool {
	if dir == "" {
		return false
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return false
	}

	serve := static.Serve(ListsPrefix, static.LocalFile(dir, true))
	notFound := func(c *gin.Context) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "list not found"})
	}

	chain := append(append([]gin.HandlerFunc{}, mw...), serve, notFound)
	r.GET(ListsPrefix+"/*filepath", chain...)
	r.HEAD(ListsPrefix+"/*filepath", chain...)
	return true
}
