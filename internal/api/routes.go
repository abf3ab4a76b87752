package api

import (
	"github.com/gin-gonic/gin"

	"docflow/internal/api/middleware"
	"docflow/internal/service"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
// 调用方身份认证由上游网关完成；/v1/admin 需要内部密钥。
func RegisterRoutes(
	router *gin.Engine,
	svc *service.FieldService,
	enqueuer TaskEnqueuer,
	internalSecret string,
) {
	fieldHandler := NewFieldHandler(svc)
	valueHandler := NewValueHandler(svc)
	migrationHandler := NewMigrationHandler(svc, enqueuer)

	v1 := router.Group("/v1")
	{
		templateGroup := v1.Group("/templates/:templateId/fields")
		{
			templateGroup.POST("", fieldHandler.CreateField)
			templateGroup.GET("", fieldHandler.ListFields)
			templateGroup.DELETE("", fieldHandler.DeleteAllFields)
			templateGroup.GET("/required", fieldHandler.ListRequiredFields)
			templateGroup.GET("/by-key/:fieldKey", fieldHandler.GetFieldByKey)
		}

		fieldGroup := v1.Group("/fields")
		{
			fieldGroup.GET("/:fieldId", fieldHandler.GetField)
			fieldGroup.PUT("/:fieldId", fieldHandler.UpdateField)
			fieldGroup.DELETE("/:fieldId", fieldHandler.DeleteField)
		}

		documentGroup := v1.Group("/documents/:documentId")
		{
			documentGroup.GET("/completion", valueHandler.Completion)
			documentGroup.POST("/field-values", valueHandler.UpsertValue)
			documentGroup.GET("/field-values", valueHandler.ListValues)
			documentGroup.DELETE("/field-values", valueHandler.DeleteAllValues)
			documentGroup.POST("/field-values/draft", valueHandler.SaveDraft)
			documentGroup.GET("/field-values/map", valueHandler.ValueMap)
			documentGroup.GET("/field-values/:fieldId", valueHandler.GetValue)
			documentGroup.DELETE("/field-values/:fieldId", valueHandler.DeleteValue)
		}

		adminGroup := v1.Group("/admin/migration")
		adminGroup.Use(middleware.InternalSecretMiddleware(internalSecret))
		{
			adminGroup.POST("/templates", migrationHandler.MigrateAll)
			adminGroup.POST("/templates/:templateId", migrationHandler.MigrateTemplate)
			adminGroup.POST("/documents/:documentId", migrationHandler.MigrateDocumentValues)
			adminGroup.POST("/jobs", migrationHandler.EnqueueMigration)
		}
	}
}
