package routes

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"vparking/handlers"
	"vparking/metrics"
	"vparking/models"
	"vparking/utils"
)

// AuthMiddleware 驗證 JWT token，並提取 user_id 和 role
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "缺少 Authorization 標頭",
				"error":   "Authorization header is required",
				"code":    "ERR_NO_AUTH_HEADER",
			})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "無效的 Authorization 格式",
				"error":   "Authorization header must be in the format 'Bearer <token>'",
				"code":    "ERR_INVALID_AUTH_FORMAT",
			})
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil {
			log.Printf("Token parsing error: %v", err)
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				c.JSON(http.StatusUnauthorized, gin.H{
					"status":  false,
					"message": "token 已過期",
					"error":   "Token has expired",
					"code":    "ERR_TOKEN_EXPIRED",
				})
			case errors.Is(err, utils.ErrInvalidClaims):
				c.JSON(http.StatusUnauthorized, gin.H{
					"status":  false,
					"message": "無效的 token 內容",
					"error":   err.Error(),
					"code":    "ERR_INVALID_CLAIMS",
				})
			default:
				c.JSON(http.StatusUnauthorized, gin.H{
					"status":  false,
					"message": "無效的 token",
					"error":   err.Error(),
					"code":    "ERR_INVALID_TOKEN",
				})
			}
			c.Abort()
			return
		}

		if claims.Role != models.RoleUser && claims.Role != models.RoleAdmin {
			log.Printf("Invalid role in token: %v", claims.Role)
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "無效的角色",
				"error":   "Invalid role in token",
				"code":    "ERR_INVALID_ROLE",
			})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RoleMiddleware 檢查角色是否符合要求，admin 可訪問所有端點
func RoleMiddleware(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "無法獲取角色資訊",
				"error":   "Role not found in context",
				"code":    "ERR_ROLE_NOT_FOUND",
			})
			c.Abort()
			return
		}

		roleStr, ok := role.(string)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "無效的角色類型",
				"error":   "Invalid role type",
				"code":    "ERR_INVALID_ROLE_TYPE",
			})
			c.Abort()
			return
		}

		if roleStr == models.RoleAdmin {
			c.Next()
			return
		}

		allowed := false
		for _, allowedRole := range allowedRoles {
			if roleStr == allowedRole {
				allowed = true
				break
			}
		}

		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{
				"status":  false,
				"message": "權限不足",
				"error":   "Insufficient role permissions",
				"code":    "ERR_INSUFFICIENT_PERMISSIONS",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// SelfOrAdminMiddleware 路徑中的 :id 必須是自己，管理者不受限
func SelfOrAdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		currentUserID, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "未授權",
				"error":   "user_id not found in token",
				"code":    "ERR_NO_USER_ID",
			})
			c.Abort()
			return
		}
		currentUserIDInt, ok := currentUserID.(int)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "未授權",
				"error":   "invalid user_id type",
				"code":    "ERR_INVALID_USER_ID",
			})
			c.Abort()
			return
		}

		role, _ := c.Get("role")
		roleStr, _ := role.(string)

		requestedUserID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  false,
				"message": "無效的使用者 ID",
				"error":   err.Error(),
				"code":    "ERR_INVALID_ID",
			})
			c.Abort()
			return
		}

		if roleStr != models.RoleAdmin && currentUserIDInt != requestedUserID {
			c.JSON(http.StatusForbidden, gin.H{
				"status":  false,
				"message": "無權限",
				"error":   "you can only access your own data",
				"code":    "ERR_INSUFFICIENT_PERMISSIONS",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func Path(router *gin.RouterGroup, h *handlers.Handler) {
	// 版本控制
	v1 := router.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(200, gin.H{"message": "pong"})
		})

		// 即時佔用數推播
		v1.GET("/ws", h.Live)

		// 公開路由：不需要 token 驗證
		auth := v1.Group("/auth")
		{
			auth.POST("/register", h.Register)
			auth.POST("/login", h.Login)
			auth.GET("/check-email", h.CheckEmail)
		}

		// 受保護路由：需要 token 驗證
		authed := v1.Group("")
		authed.Use(AuthMiddleware())
		{
			lots := authed.Group("/lots")
			{
				lots.GET("", h.ListLots)
				lots.GET("/:id", h.GetLot)
				lots.GET("/:id/spots", h.ListLotSpots)
				lots.POST("", RoleMiddleware(models.RoleAdmin), h.CreateLot)
				lots.PUT("/:id", RoleMiddleware(models.RoleAdmin), h.UpdateLot)
				lots.PUT("/:id/spots", RoleMiddleware(models.RoleAdmin), h.ResizeLot)
				lots.DELETE("/:id", RoleMiddleware(models.RoleAdmin), h.DeleteLot)
			}

			authed.GET("/spots/:id", RoleMiddleware(models.RoleAdmin), h.GetSpot)

			authed.POST("/reservations", h.Reserve)
			authed.POST("/reservations/:id/release", h.Release)

			users := authed.Group("/users/:id")
			users.Use(SelfOrAdminMiddleware())
			{
				users.GET("/reservations", h.ListUserReservations)
				users.GET("/charts", h.UserCharts)
				users.POST("/exports", h.SubmitExport)
			}

			authed.GET("/exports/:token", h.ExportStatus)
			authed.GET("/exports/:token/download", h.DownloadExport)

			authed.GET("/charts", RoleMiddleware(models.RoleAdmin), h.Charts)

			// 管理員專屬路由
			admin := authed.Group("/admin")
			admin.Use(RoleMiddleware(models.RoleAdmin))
			{
				admin.GET("/dashboard", h.Dashboard)
				admin.GET("/reservations", h.ListAllReservations)
				admin.GET("/users", h.ListUsers)
			}
		}
	}
}

// NewRouter 建立 gin 引擎：/api 底下為業務路由，/metrics 給 Prometheus 抓取
func NewRouter(h *handlers.Handler) *gin.Engine {
	r := gin.Default()
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// 創建一個 API 路由組
	api := r.Group("/api")
	{
		Path(api, h)
	}
	return r
}
