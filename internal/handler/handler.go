package handler

import (
	"errors"
	"strconv"
	"time"

	"ewallet/internal/config"
	"ewallet/internal/infrastructure/lock"
	"ewallet/internal/service"
	"ewallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	authService    *service.AuthService
	accountService *service.AccountService
	ledgerService  *service.LedgerService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, locker lock.Locker, cfg *config.Config) *Handler {
	return &Handler{
		authService:    service.NewAuthService(db, &cfg.JWT),
		accountService: service.NewAccountService(db),
		ledgerService:  service.NewLedgerService(db, locker, cfg),
	}
}

// respondServiceError 哨兵错误 -> 业务码
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, "账户不存在")
	case errors.Is(err, service.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeBalanceNotEnough, "余额不足")
	case errors.Is(err, service.ErrWrongPin):
		response.BusinessError(c, response.CodeWrongPin, "PIN 错误")
	case errors.Is(err, service.ErrInvalidAmount):
		response.BusinessError(c, response.CodeInvalidAmount, "金额不合法")
	case errors.Is(err, service.ErrInvalidType):
		response.ParamError(c, "交易类型不合法")
	case errors.Is(err, service.ErrTargetNotFound):
		response.BusinessError(c, response.CodeTargetNotFound, "目标账户不存在")
	case errors.Is(err, service.ErrSameAccount):
		response.BusinessError(c, response.CodeSameAccount, "不允许向本账户转账")
	case errors.Is(err, service.ErrConflict):
		response.BusinessError(c, response.CodeConflict, "系统繁忙，请重试")
	case errors.Is(err, service.ErrUserAlreadyExists):
		response.BusinessError(c, response.CodeUserAlreadyExists, "用户已存在")
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(c, "用户名或密码错误")
	case errors.Is(err, service.ErrInvalidToken):
		response.Unauthorized(c, "令牌无效")
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 认证相关接口
// ============================================================

// RegisterRequest 注册请求
type RegisterRequest struct {
	FirstName  string `json:"first_name" binding:"required"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name" binding:"required"`
	BirthDate  string `json:"birth_date"` // YYYY-MM-DD
	NationalID string `json:"national_id" binding:"required"`
	Phone      string `json:"phone" binding:"required"`
	Username   string `json:"username" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
}

// Register 注册
// POST /api/v1/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	serviceReq := &service.RegisterRequest{
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
		NationalID: req.NationalID,
		Phone:      req.Phone,
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
	}
	if req.BirthDate != "" {
		birthDate, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			response.ParamError(c, "birth_date 格式错误，应为 YYYY-MM-DD")
			return
		}
		serviceReq.BirthDate = &birthDate
	}

	user, tokens, err := h.authService.Register(c.Request.Context(), serviceReq)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user":          user,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	})
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 登录
// POST /api/v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	user, tokens, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user":          user,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	})
}

// Refresh 刷新访问令牌
// POST /api/v1/auth/refresh
func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	accessToken, err := h.authService.RefreshAccessToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"access_token": accessToken,
	})
}

// ============================================================
// 账户相关接口
// ============================================================

// CreateAccountRequest 开户请求
type CreateAccountRequest struct {
	Alias           string `json:"alias" binding:"required"`
	Pin             string `json:"pin" binding:"required,len=4,numeric"`
	PinConfirmation string `json:"pin_confirmation" binding:"required,eqfield=Pin"`
}

// CreateAccount 开户
// POST /api/v1/accounts
func (h *Handler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.accountService.CreateAccount(c.Request.Context(), currentUserID(c), req.Alias, req.Pin)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, account)
}

// ListAccounts 查询当前用户的全部账户
// GET /api/v1/accounts
func (h *Handler) ListAccounts(c *gin.Context) {
	accounts, err := h.accountService.ListAccounts(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list": accounts,
	})
}

// GetAccount 查询账户详情
// GET /api/v1/accounts/:accountNumber
func (h *Handler) GetAccount(c *gin.Context) {
	account, err := h.accountService.GetAccount(c.Request.Context(), c.Param("accountNumber"), currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, account)
}

// ChangePinRequest 修改 PIN 请求
type ChangePinRequest struct {
	Pin                string `json:"pin" binding:"required"`
	NewPin             string `json:"new_pin" binding:"required,len=4,numeric"`
	NewPinConfirmation string `json:"new_pin_confirmation" binding:"required,eqfield=NewPin"`
}

// ChangePin 修改账户 PIN（需要旧 PIN 通过校验）
// PATCH /api/v1/accounts/:accountNumber/pin
func (h *Handler) ChangePin(c *gin.Context) {
	var req ChangePinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	err := h.accountService.ChangePin(c.Request.Context(), c.Param("accountNumber"), currentUserID(c), req.Pin, req.NewPin)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "PIN 修改成功",
	})
}

// ListTransactions 查询账户流水（最新在前）
// GET /api/v1/accounts/:accountNumber/transactions?page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	transactions, total, err := h.accountService.GetHistory(c.Request.Context(), c.Param("accountNumber"), currentUserID(c), page, pageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 交易相关接口
// ============================================================

// SubmitTransactionRequest 提交交易请求
// type 为 transfer 时 transfer_to 必填
type SubmitTransactionRequest struct {
	Type       string          `json:"type" binding:"required,oneof=deposit withdrawal transfer"`
	Amount     decimal.Decimal `json:"amount" binding:"required"`
	Pin        string          `json:"pin" binding:"required"`
	TransferTo string          `json:"transfer_to"`
	Notes      string          `json:"notes"`
}

// SubmitTransaction 提交交易
// POST /api/v1/accounts/:accountNumber/transactions
//
// 【关键点】交易是整个系统最核心的操作，需要保证：
// 1. 原子性：余额变更和流水记录同时成功或同时失败
// 2. 并发安全：行锁 + 账户互斥锁防止并发超扣
// 3. PIN 校验：每一笔变更都要带 PIN，校验在持有行锁的事务内完成
func (h *Handler) SubmitTransaction(c *gin.Context) {
	var req SubmitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.ledgerService.Submit(c.Request.Context(), &service.SubmitRequest{
		UserID:        currentUserID(c),
		AccountNumber: c.Param("accountNumber"),
		Type:          req.Type,
		Amount:        req.Amount,
		Pin:           req.Pin,
		TransferTo:    req.TransferTo,
		Notes:         req.Notes,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, result)
}
