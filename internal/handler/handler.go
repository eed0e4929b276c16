package handler

import (
	"errors"
	"log"
	"strconv"

	"loyaltyledger/internal/config"
	"loyaltyledger/internal/service"
	"loyaltyledger/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accountService     *service.AccountService
	creditService      *service.CreditService
	redemptionService  *service.RedemptionService
	leaderboardService *service.LeaderboardService
	catalogService     *service.CatalogService
	auditService       *service.AuditService
	adminService       *service.AdminService
}

// NewHandler 创建处理器实例
// cache 为 nil 时排行榜不走缓存
func NewHandler(db *gorm.DB, locker service.AccountLocker, cache service.LeaderboardCache, cfg *config.Config) *Handler {
	return &Handler{
		accountService:     service.NewAccountService(db),
		creditService:      service.NewCreditService(db, locker, cache, cfg),
		redemptionService:  service.NewRedemptionService(db, locker, cache, cfg),
		leaderboardService: service.NewLeaderboardService(db, cache, cfg),
		catalogService:     service.NewCatalogService(db),
		auditService:       service.NewAuditService(db),
		adminService:       service.NewAdminService(cfg),
	}
}

// writeError 把服务层错误映射为业务错误码
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, service.ErrNameTaken):
		response.BusinessError(c, response.CodeNameTaken, err.Error())
	case errors.Is(err, service.ErrRewardNotFound):
		response.BusinessError(c, response.CodeRewardNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidAmount):
		response.BusinessError(c, response.CodeInvalidAmount, err.Error())
	case errors.Is(err, service.ErrInvalidName):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrInsufficientPoints):
		response.BusinessError(c, response.CodeInsufficientPoints, err.Error())
	case errors.Is(err, service.ErrRedemptionNotFound):
		response.BusinessError(c, response.CodeRedemptionNotFound, err.Error())
	case errors.Is(err, service.ErrRewardInactive):
		response.BusinessError(c, response.CodeRewardInactive, err.Error())
	case errors.Is(err, service.ErrAlreadyClaimed):
		response.BusinessError(c, response.CodeAlreadyClaimed, err.Error())
	case service.IsTransient(err):
		log.Printf("[HTTP] 临时故障: %s %s: %v", c.Request.Method, c.FullPath(), err)
		response.Unavailable(c, "服务暂不可用，请稍后重试")
	default:
		log.Printf("[HTTP] 未知错误: %s %s: %v", c.Request.Method, c.FullPath(), err)
		response.ServerError(c, "服务器内部错误")
	}
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "id 参数错误")
		return 0, false
	}
	return id, true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

// ============================================================
// 用户相关接口
// ============================================================

type NameRequest struct {
	Name string `json:"name" binding:"required"`
}

// Register 注册
// POST /api/v1/users/register
func (h *Handler) Register(c *gin.Context) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.accountService.Register(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, account)
}

// Login 按名字登录，不存在返回 1001，前端据此提示注册
// POST /api/v1/users/login
func (h *Handler) Login(c *gin.Context) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.accountService.Login(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, account)
}

// GetUser GET /api/v1/users/:id
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	account, err := h.accountService.GetAccount(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, account)
}

// ListUserTransactions GET /api/v1/users/:id/transactions?page=1&page_size=20
func (h *Handler) ListUserTransactions(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	list, total, err := h.accountService.ListTransactions(c.Request.Context(), id, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":  list,
		"total": total,
		"page":  page,
	})
}

// ListUserRedemptions 某用户的兑换记录，最新的在前
// GET /api/v1/users/:id/redemptions?limit=100
func (h *Handler) ListUserRedemptions(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, err := h.redemptionService.ListByAccount(c.Request.Context(), id, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, list)
}

// ============================================================
// 奖励与兑换
// ============================================================

// ListRewards GET /api/v1/rewards
func (h *Handler) ListRewards(c *gin.Context) {
	rewards, err := h.catalogService.ListActive(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, rewards)
}

// Redeem 兑换奖励
// POST /api/v1/rewards/redeem
func (h *Handler) Redeem(c *gin.Context) {
	var req service.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.redemptionService.Redeem(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ListRedemptions 店员查看兑换记录，claimed 为空时不过滤
// GET /api/v1/redemptions?claimed=false&page=1&page_size=20
func (h *Handler) ListRedemptions(c *gin.Context) {
	var claimed *bool
	if raw := c.Query("claimed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.ParamError(c, "claimed 参数错误")
			return
		}
		claimed = &v
	}
	page, pageSize := pageParams(c)

	list, total, err := h.redemptionService.List(c.Request.Context(), claimed, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":  list,
		"total": total,
		"page":  page,
	})
}

type ClaimRequest struct {
	RedemptionNo string `json:"redemption_no" binding:"required"`
}

// Claim 店员核销
// POST /api/v1/redemptions/claim
func (h *Handler) Claim(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	redemption, err := h.redemptionService.MarkClaimed(c.Request.Context(), req.RedemptionNo)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, redemption)
}

// Leaderboard GET /api/v1/leaderboard?limit=50
// limit=0 返回全部账户
func (h *Handler) Leaderboard(c *gin.Context) {
	limit := h.leaderboardService.DefaultLimit()
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			response.ParamError(c, "limit 参数错误")
			return
		}
		limit = v
	}

	entries, err := h.leaderboardService.Rank(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, entries)
}

// ============================================================
// 后台接口
// ============================================================

type AdminLoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// AdminLogin 校验后台口令
// POST /api/v1/admin/login
func (h *Handler) AdminLogin(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if !h.adminService.VerifyPassword(req.Password) {
		response.Error(c, response.CodeUnauthorized, "口令错误")
		return
	}
	response.Success(c, gin.H{"ok": true})
}

// ListUsers GET /api/v1/admin/users?page=1&page_size=20
func (h *Handler) ListUsers(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, total, err := h.accountService.ListAccounts(c.Request.Context(), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":  list,
		"total": total,
		"page":  page,
	})
}

// Credit 店员发放积分
// POST /api/v1/admin/credit
func (h *Handler) Credit(c *gin.Context) {
	var req service.CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.creditService.Credit(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ListTransactions 全部积分流水
// GET /api/v1/admin/transactions?page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, total, err := h.accountService.ListAllTransactions(c.Request.Context(), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":  list,
		"total": total,
		"page":  page,
	})
}

type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetRewardActive 上架/下架奖励
// POST /api/v1/admin/rewards/:id/active
func (h *Handler) SetRewardActive(c *gin.Context) {
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	reward, err := h.catalogService.SetActive(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, reward)
}

// Reconcile 单账户对账
// GET /api/v1/admin/reconcile/:id
func (h *Handler) Reconcile(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	report, err := h.auditService.Reconcile(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, report)
}
