package server

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/dutchbook/dutchbook/common/errors"
	"github.com/dutchbook/dutchbook/internal/index"
	"github.com/dutchbook/dutchbook/internal/lifecycle"
	"github.com/dutchbook/dutchbook/internal/model"
	"github.com/dutchbook/dutchbook/internal/unimind"
)

func (s *Server) writeError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// postOrder accepts a fully validated, signed order from the submission
// path. Signature and on-chain semantics are checked upstream.
func (s *Server) postOrder(c *gin.Context) {
	var order model.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		s.writeError(c, apperrors.WrapValidation(err, "malformed order body"))
		return
	}
	if order.OrderStatus == "" {
		order.OrderStatus = model.StatusUnverified
	}
	if err := s.repoFor(c).PutOrderAndUpdateNonce(c.Request.Context(), &order); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"orderHash": order.OrderHash.Hex()})
}

func (s *Server) getOrder(c *gin.Context) {
	hash := common.HexToHash(c.Param("hash"))
	order, err := s.repoFor(c).GetByHash(c.Request.Context(), hash)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// filterFields are the query parameters interpreted as equality filters.
// Everything else (limit, cursor, sort controls, orderType) stays out of
// the predicate set.
var filterFields = []model.Field{
	model.FieldOfferer,
	model.FieldFiller,
	model.FieldChainID,
	model.FieldOrderStatus,
	model.FieldPair,
}

func (s *Server) getOrders(c *gin.Context) {
	filters := make(map[model.Field]string)
	for _, f := range filterFields {
		if v := c.Query(string(f)); v != "" {
			if f == model.FieldOfferer || f == model.FieldFiller {
				v = model.NormalizeAddress(v)
			}
			filters[f] = v
		}
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(c, apperrors.Validationf("invalid limit %q", v))
			return
		}
		limit = n
	}
	desc := c.Query("desc") == "true"

	rng, err := rangeFromQuery(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	page, err := s.repoFor(c).GetOrders(c.Request.Context(), limit, filters, rng, desc, c.Query("cursor"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp := gin.H{"orders": page.Orders}
	if page.Cursor != "" {
		resp["cursor"] = page.Cursor
	}
	c.JSON(http.StatusOK, resp)
}

// rangeFromQuery parses the optional createdAt range, e.g.
// ?createdAtOp=between&createdAt=1700000000&createdAtUpper=1700003600.
func rangeFromQuery(c *gin.Context) (*index.Range, error) {
	op := c.Query("createdAtOp")
	if op == "" {
		return nil, nil
	}
	value, err := strconv.ParseInt(c.Query("createdAt"), 10, 64)
	if err != nil {
		return nil, apperrors.Validationf("createdAt range requires a numeric createdAt value")
	}
	rng := &index.Range{Op: index.RangeOp(op), Value: value}
	if rng.Op == index.OpBetween {
		upper, err := strconv.ParseInt(c.Query("createdAtUpper"), 10, 64)
		if err != nil {
			return nil, apperrors.Validationf("between range requires a numeric createdAtUpper value")
		}
		rng.Upper = upper
	}
	return rng, nil
}

func (s *Server) countOrders(c *gin.Context) {
	offerer := c.Query("offerer")
	status := c.Query("orderStatus")
	if offerer == "" || status == "" {
		s.writeError(c, apperrors.Validationf("count requires offerer and orderStatus"))
		return
	}
	n, err := s.repoFor(c).CountByOffererAndStatus(c.Request.Context(),
		common.HexToAddress(offerer), model.OrderStatus(status))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (s *Server) deleteOrders(c *gin.Context) {
	var body struct {
		Hashes []string `json:"hashes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, apperrors.WrapValidation(err, "malformed delete body"))
		return
	}
	hashes := make([]common.Hash, len(body.Hashes))
	for i, h := range body.Hashes {
		hashes[i] = common.HexToHash(h)
	}
	if err := s.repoFor(c).DeleteOrders(c.Request.Context(), hashes); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) lifecycleStep(c *gin.Context) {
	var in lifecycle.StepInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.writeError(c, apperrors.WrapValidation(err, "malformed step body"))
		return
	}
	out, err := s.tracker.Step(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) unimindRun(c *gin.Context) {
	if err := s.controller.Run(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) quoteParams(c *gin.Context) {
	var body struct {
		Pair        string  `json:"pair" binding:"required"`
		RequestID   string  `json:"requestId" binding:"required"`
		PriceImpact float64 `json:"priceImpact"`
		ExactOutput bool    `json:"exactOutput"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, apperrors.WrapValidation(err, "malformed quote body"))
		return
	}
	result, err := s.quoting.QuoteParameters(c.Request.Context(), body.Pair, body.RequestID,
		unimind.ExtrinsicValues{PriceImpact: body.PriceImpact, ExactOutput: body.ExactOutput})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) postQuoteMetadata(c *gin.Context) {
	var meta model.QuoteMetadata
	if err := c.ShouldBindJSON(&meta); err != nil {
		s.writeError(c, apperrors.WrapValidation(err, "malformed quote metadata body"))
		return
	}
	if err := s.quoting.RecordQuote(c.Request.Context(), &meta); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}
