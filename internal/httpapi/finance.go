package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"turnover-rewards/pkg/errutil"
	"turnover-rewards/services/incentive"
	"turnover-rewards/services/rating"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetBalances(c *gin.Context) {
	userID, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	balances, err := h.ledger.Balances(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, balances)
}

func (h *Handler) ListEntries(c *gin.Context) {
	userID, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.Error(errutil.BadRequest("invalid limit", err))
			return
		}
	}

	var offset int
	if raw := c.Query("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			c.Error(errutil.BadRequest("invalid offset", err))
			return
		}
	}

	entries, err := h.ledger.Entries(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) StageBreakdown(c *gin.Context) {
	userID, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	from, err := queryDate(c, "from", time.Time{})
	if err != nil {
		c.Error(err)
		return
	}
	to, err := queryDate(c, "to", time.Now())
	if err != nil {
		c.Error(err)
		return
	}

	breakdown, err := h.ledger.StageBreakdown(c.Request.Context(), userID, from, to)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stages": breakdown})
}

func (h *Handler) VerifyChain(c *gin.Context) {
	userID, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.ledger.VerifyChain(c.Request.Context(), userID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type requestWithdrawalRequest struct {
	UserID     int64   `json:"user_id"`
	Amount     float64 `json:"amount"`
	Requisites string  `json:"requisites"`
}

func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req requestWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	r, err := h.withdrawals.Request(c.Request.Context(), req.UserID, req.Amount, req.Requisites)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetWithdrawal(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	r, err := h.withdrawals.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func (h *Handler) ListWithdrawals(c *gin.Context) {
	userID, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	list, err := h.withdrawals.ListByUser(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": list})
}

func (h *Handler) GetRanking(c *gin.Context) {
	periodKey := c.DefaultQuery("period", rating.PeriodAll)

	var groupID int64
	if raw := c.Query("group_id"); raw != "" {
		var err error
		groupID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.Error(errutil.BadRequest("invalid group_id", err))
			return
		}
	}

	rows, err := h.ratings.Ranking(c.Request.Context(), periodKey, groupID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

type createSupertaskRequest struct {
	GroupID int64   `json:"group_id"`
	BuyerID string  `json:"buyer_id"`
	Title   string  `json:"title"`
	Reward  float64 `json:"reward"`
}

func (h *Handler) CreateSupertask(c *gin.Context) {
	var req createSupertaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	task, err := h.incentives.CreateSupertask(c.Request.Context(), incentive.CreateSupertaskParams{
		GroupID: req.GroupID,
		BuyerID: req.BuyerID,
		Title:   req.Title,
		Reward:  req.Reward,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

type createLevelRequest struct {
	Name         string     `json:"name"`
	TargetVolume float64    `json:"target_volume"`
	Bonus        float64    `json:"bonus"`
	StartsAt     time.Time  `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at"`
}

func (h *Handler) CreateLevel(c *gin.Context) {
	var req createLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	params := incentive.CreateLevelParams{
		Name:         req.Name,
		TargetVolume: req.TargetVolume,
		Bonus:        req.Bonus,
		StartsAt:     req.StartsAt,
	}
	if req.EndsAt != nil {
		params.EndsAt = *req.EndsAt
	}

	level, err := h.incentives.CreateLevel(c.Request.Context(), params)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, level)
}

func (h *Handler) SuggestLevelTarget(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.Error(errutil.BadRequest("invalid user_id", err))
		return
	}

	asOf, err := queryDate(c, "as_of", time.Now())
	if err != nil {
		c.Error(err)
		return
	}

	target, err := h.incentives.SuggestTarget(c.Request.Context(), userID, asOf)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"target_volume": target})
}

func (h *Handler) ResyncClaim(c *gin.Context) {
	claimID, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.incentives.SyncClaim(c.Request.Context(), claimID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "synced"})
}

func (h *Handler) ResyncAll(c *gin.Context) {
	if err := h.incentives.SyncAll(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "synced"})
}

type snapshotRatingRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (h *Handler) SnapshotRating(c *gin.Context) {
	var req snapshotRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	if err := h.ratings.Snapshot(c.Request.Context(), req.Year, time.Month(req.Month)); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func queryDate(c *gin.Context, name string, fallback time.Time) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, errutil.BadRequest("invalid "+name+" date", err)
	}
	return t, nil
}
