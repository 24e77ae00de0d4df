package api

import (
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"task-runtime-service/internal/task-runtime/taskerr"
)

// statusOf maps the stable error kinds onto HTTP statuses.
func statusOf(err error) int {
	switch taskerr.KindOf(err) {
	case taskerr.KindNotFound:
		return http.StatusNotFound
	case taskerr.KindConflict:
		return http.StatusConflict
	case taskerr.KindInvalidTask:
		return http.StatusUnprocessableEntity
	case taskerr.KindUnauthorized:
		return http.StatusUnauthorized
	case taskerr.KindForbidden:
		return http.StatusForbidden
	case taskerr.KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *app.RequestContext, err error) {
	c.JSON(statusOf(err), utils.H{
		"error": taskerr.Message(err),
		"kind":  string(taskerr.KindOf(err)),
	})
}
