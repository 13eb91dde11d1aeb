package router

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"season_pass/internal/access"
	"season_pass/internal/billing"
	"season_pass/internal/logger"
	"season_pass/internal/middleware"
	"season_pass/internal/model"
	"season_pass/internal/validation"
)

// PaymentLocker 合并同一支付单的并发回调，可为空。
type PaymentLocker interface {
	Acquire(ctx context.Context, paymentID string) (string, bool, error)
	Release(ctx context.Context, paymentID, token string) error
}

type Deps struct {
	DB      *gorm.DB
	Billing *billing.Service
	Tokens  middleware.TokenParser
	Limiter middleware.WindowStore
	Locker  PaymentLocker
	Logger  *zap.Logger

	RateLimit  int
	RateWindow time.Duration
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	log := logger.OrNop(d.Logger)
	v := validation.New()
	authed := middleware.Auth(d.Tokens, log)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	r.GET("/api/products", listProducts(d.DB))

	r.POST("/api/checkout", authed, limit(d, "checkout", log), checkout(d.Billing, v, log))
	r.POST("/api/payments/status", authed, limit(d, "payment_status", log), paymentStatus(d.Billing, v, log))
	// 网关回调不带用户身份，载荷只用来取 id
	r.POST("/api/payments/webhook", paymentWebhook(d.Billing, d.Locker, v, log))
	r.GET("/api/orders/:id", authed, orderStatus(d.Billing, log))

	me := r.Group("/api/me", authed)
	me.GET("/battlepasses", myBattlepasses(d.DB))
	me.GET("/notifications", myNotifications(d.DB))

	admin := r.Group("/api/admin", authed)
	admin.POST("/products", createProduct(d.Billing, v, log))
	admin.PATCH("/products/:sku", updateProduct(d.Billing, v, log))
	admin.POST("/seasons", createSeason(d.Billing, v, log))
	admin.POST("/orders/:id/cancel", cancelOrder(d.Billing, log))
}

func limit(d Deps, scope string, log *zap.Logger) gin.HandlerFunc {
	if d.Limiter == nil || d.RateLimit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimit(d.Limiter, scope, d.RateLimit, d.RateWindow, log)
}

// writeError 按错误类别映射状态码；未知错误只回通用信息。
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var gwErr *billing.GatewayError
	switch {
	case errors.As(err, &gwErr):
		log.Warn("payment gateway error",
			zap.String("op", gwErr.Op),
			zap.Int("provider_status", gwErr.StatusCode),
			zap.String("provider_body", gwErr.Body),
			zap.Error(gwErr.Err))
		c.JSON(http.StatusBadGateway, gin.H{
			"code":            502,
			"msg":             gwErr.Error(),
			"provider_status": gwErr.StatusCode,
			"provider_body":   gwErr.Body,
		})
	case errors.Is(err, billing.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
	case errors.Is(err, billing.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": 403, "msg": err.Error()})
	case errors.Is(err, billing.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": err.Error()})
	case errors.Is(err, billing.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": err.Error()})
	default:
		log.Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
	}
}

func currentActor(c *gin.Context) access.Actor {
	actor, _ := middleware.ActorFrom(c)
	return actor
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// listProducts 查询在售商品。
func listProducts(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var list []model.Product
		err := db.WithContext(c.Request.Context()).
			Where("is_active = ? AND is_visible = ?", true, true).
			Order("price asc").
			Find(&list).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

// checkout 下单。表单提交直接 303 跳转到网关支付页，JSON 请求返回支付信息。
func checkout(svc *billing.Service, v *validatorv10.Validate, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.CheckoutRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		res, err := svc.Checkout(c.Request.Context(), currentActor(c), billing.CheckoutInput{
			SKU:          req.SKU,
			TargetUserID: req.TargetUserID,
		})
		if err != nil {
			writeError(c, log, err)
			return
		}

		if isFormPost(c) && res.ConfirmationURL != "" {
			c.Redirect(http.StatusSeeOther, res.ConfirmationURL)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": res})
	}
}

func isFormPost(c *gin.Context) bool {
	switch c.ContentType() {
	case gin.MIMEPOSTForm, gin.MIMEMultipartPOSTForm:
		return true
	}
	return false
}

// paymentStatus 手动查单：返回网关原始状态与本地处理结果。
func paymentStatus(svc *billing.Service, v *validatorv10.Validate, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !access.Can(currentActor(c), access.CheckPaymentStatus) {
			c.JSON(http.StatusForbidden, gin.H{"code": 403, "msg": "forbidden"})
			return
		}
		var req validation.PaymentStatusRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		res, err := svc.ReconcilePayment(c.Request.Context(), req.PaymentID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": res})
	}
}

// paymentWebhook 网关回调：只取支付单号，状态以重新查询网关为准。
func paymentWebhook(svc *billing.Service, locker PaymentLocker, v *validatorv10.Validate, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.WebhookNotification
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		ctx := c.Request.Context()
		paymentID := req.Object.ID

		if locker != nil {
			token, ok, err := locker.Acquire(ctx, paymentID)
			switch {
			case err != nil:
				// 锁不可用时照常处理，DB 条件更新兜底
				log.Warn("payment lock unavailable", zap.String("payment_id", paymentID), zap.Error(err))
			case !ok:
				c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"payment_id": paymentID, "status": "in_progress"}})
				return
			default:
				defer func() {
					if err := locker.Release(context.WithoutCancel(ctx), paymentID, token); err != nil {
						log.Warn("payment lock release", zap.String("payment_id", paymentID), zap.Error(err))
					}
				}()
			}
		}

		res, err := svc.ReconcilePayment(ctx, paymentID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		log.Info("payment webhook reconciled",
			zap.String("event", req.Event),
			zap.String("payment_id", paymentID),
			zap.String("status", res.ProviderStatus),
			zap.Bool("processed", res.Processed))
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": res})
	}
}

// orderStatus 支付成功/失败页：按订单号对账。
func orderStatus(svc *billing.Service, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		res, err := svc.ReconcileOrder(c.Request.Context(), currentActor(c), id)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": res})
	}
}

func myBattlepasses(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var list []model.Battlepass
		err := db.WithContext(c.Request.Context()).
			Where("user_id = ?", currentActor(c).UserID).
			Order("id desc").
			Find(&list).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func myNotifications(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var list []model.Notification
		err := db.WithContext(c.Request.Context()).
			Where("user_id = ?", currentActor(c).UserID).
			Order("id desc").
			Limit(50).
			Find(&list).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func createProduct(svc *billing.Service, v *validatorv10.Validate, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.ProductRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		p, err := svc.CreateProduct(c.Request.Context(), currentActor(c), billing.ProductInput{
			SKU:            req.SKU,
			Title:          req.Title,
			Description:    req.Description,
			Price:          req.Price,
			BPQuantity:     req.BPQuantity,
			IsActive:       boolOr(req.IsActive, true),
			IsVisible:      boolOr(req.IsVisible, true),
			RequiresSeason: req.RequiresSeason,
		})
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": p})
	}
}

func updateProduct(svc *billing.Service, v *validatorv10.Validate, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.ProductPatchRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		p, err := svc.UpdateProduct(c.Request.Context(), currentActor(c), c.Param("sku"), billing.ProductPatch{
			Title:          req.Title,
			Description:    req.Description,
			Price:          req.Price,
			BPQuantity:     req.BPQuantity,
			IsActive:       req.IsActive,
			IsVisible:      req.IsVisible,
			RequiresSeason: req.RequiresSeason,
		})
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
	}
}

func createSeason(svc *billing.Service, v *validatorv10.Validate, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.SeasonRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		s, err := svc.CreateSeason(c.Request.Context(), currentActor(c), billing.SeasonInput{
			Name:     req.Name,
			StartsAt: req.StartsAt,
			EndsAt:   req.EndsAt,
			IsActive: boolOr(req.IsActive, true),
		})
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": s})
	}
}

func cancelOrder(svc *billing.Service, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		o, err := svc.CancelOrder(c.Request.Context(), currentActor(c), id)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": o})
	}
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
