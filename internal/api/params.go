package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// uintParam 解析路径参数，失败时直接写 400 并返回 false。
func uintParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
