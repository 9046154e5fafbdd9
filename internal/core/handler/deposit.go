package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"fundrouter.com/internal/core/service"
	"fundrouter.com/internal/domain"
	common2 "fundrouter.com/pkg/common"
	"fundrouter.com/pkg/xerr"
)

type DepositHandler struct {
	deposits *service.DepositService
	routing  *service.RoutingService
}

func NewDepositHandler(deposits *service.DepositService, routing *service.RoutingService) *DepositHandler {
	return &DepositHandler{deposits: deposits, routing: routing}
}

type CreateDepositReq struct {
	User string `json:"user" binding:"required"`
}

// Create POST /api/deposits
func (h *DepositHandler) Create(c *gin.Context) {
	var req CreateDepositReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common2.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, "invalid request body")
		return
	}
	// 严格校验 20 字节 hex
	if !common.IsHexAddress(req.User) {
		common2.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, "user must be a 20-byte hex string")
		return
	}

	d, err := h.deposits.Create(c.Request.Context(), common.HexToAddress(req.User))
	if err != nil {
		status, code := mapServiceError(err)
		common2.FailLogged(c, status, code, "create deposit failed", err)
		return
	}

	common2.Created(c, gin.H{"id": d.ID, "address": d.Address.Hex()})
}

// List GET /api/deposits?user=&salt=&address=&status=&limit=&offset=
func (h *DepositHandler) List(c *gin.Context) {
	var f domain.DepositFilter

	if v := c.Query("user"); v != "" {
		if !common.IsHexAddress(v) {
			common2.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, "bad user hex")
			return
		}
		u := common.HexToAddress(v)
		f.User = &u
	}
	if v := c.Query("salt"); v != "" {
		b, err := parseHash(v)
		if err != nil {
			common2.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, "bad salt hex")
			return
		}
		f.Salt = &b
	}
	if v := c.Query("address"); v != "" {
		if !common.IsHexAddress(v) {
			common2.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, "bad address hex")
			return
		}
		a := common.HexToAddress(v)
		f.Address = &a
	}
	if v := c.Query("status"); v != "" {
		st, err := domain.ParseDepositStatus(v)
		if err != nil {
			common2.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, "bad status")
			return
		}
		f.Statuses = []domain.DepositStatus{st}
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "0"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	rows, err := h.deposits.List(c.Request.Context(), f)
	if err != nil {
		status, code := mapServiceError(err)
		common2.FailLogged(c, status, code, "query deposits failed", err)
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, d := range rows {
		out = append(out, renderDeposit(d))
	}
	common2.Success(c, out)
}

type RouteReq struct {
	// 可选：只处理这一个收款地址
	Address *string `json:"address"`
}

// Route POST /api/route 手动触发一轮编排
func (h *DepositHandler) Route(c *gin.Context) {
	var req RouteReq
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		common2.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, "invalid request body")
		return
	}

	var opts service.RouteOptions
	if req.Address != nil {
		if !common.IsHexAddress(*req.Address) {
			common2.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, "bad address hex")
			return
		}
		a := common.HexToAddress(*req.Address)
		opts.Address = &a
	}

	res, err := h.routing.Route(c.Request.Context(), opts)
	if err != nil {
		status, code := mapServiceError(err)
		common2.FailLogged(c, status, code, "routing run failed", err)
		return
	}

	hashes := make([]string, 0, len(res.TxHashes))
	for _, h := range res.TxHashes {
		hashes = append(hashes, h.Hex())
	}
	counts := make(map[string]int64, len(res.StatusCounts))
	for st, n := range res.StatusCounts {
		counts[st.String()] = n
	}

	common2.Success(c, gin.H{
		"tx_hashes":     hashes,
		"routed":        res.Routed,
		"status_counts": counts,
	})
}

func renderDeposit(d domain.Deposit) gin.H {
	var balance interface{}
	if d.Balance != nil {
		balance = d.Balance.String()
	}
	return gin.H{
		"id":         d.ID,
		"user":       d.User.Hex(),
		"salt":       d.Salt.Hex(),
		"address":    d.Address.Hex(),
		"balance":    balance,
		"status":     d.Status.String(),
		"created_at": d.CreatedAt,
		"updated_at": d.UpdatedAt,
	}
}

func parseHash(s string) (common.Hash, error) {
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, xerr.New(xerr.RequestParamsError, "salt must be 32 bytes")
	}
	return common.BytesToHash(b), nil
}

// mapServiceError 服务层错误 -> HTTP 状态码
func mapServiceError(err error) (httpStatus int, code int) {
	switch {
	case xerr.IsCode(err, xerr.RequestParamsError):
		return http.StatusBadRequest, xerr.RequestParamsError
	case xerr.IsCode(err, xerr.ChainRpcError):
		return http.StatusBadGateway, xerr.ChainRpcError
	case xerr.IsCode(err, xerr.TxRevertedError):
		return http.StatusConflict, xerr.TxRevertedError
	case xerr.IsCode(err, xerr.DbError):
		return http.StatusInternalServerError, xerr.DbError
	default:
		return http.StatusInternalServerError, xerr.ServerCommonError
	}
}
