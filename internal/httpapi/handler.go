package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"turnover-rewards/pkg/errutil"
	"turnover-rewards/services/member"
	"turnover-rewards/services/turnover"

	"github.com/gin-gonic/gin"
)

type registerGroupRequest struct {
	Name string `json:"name"`
}

func (h *Handler) RegisterGroup(c *gin.Context) {
	var req registerGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	group, err := h.members.RegisterGroup(c.Request.Context(), req.Name)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, group)
}

type registerOrganizationRequest struct {
	GroupID int64  `json:"group_id"`
	INN     string `json:"inn"`
	Name    string `json:"name"`
}

func (h *Handler) RegisterOrganization(c *gin.Context) {
	var req registerOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	org, err := h.members.RegisterOrganization(c.Request.Context(), req.GroupID, req.INN, req.Name)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, org)
}

type registerMemberRequest struct {
	UserID  int64  `json:"user_id"`
	GroupID int64  `json:"group_id"`
	OrgID   int64  `json:"org_id"`
	Role    string `json:"role"`
	Name    string `json:"name"`
}

func (h *Handler) RegisterMember(c *gin.Context) {
	var req registerMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	m, err := h.members.RegisterMember(c.Request.Context(), member.RegisterMemberParams{
		UserID:  req.UserID,
		GroupID: req.GroupID,
		OrgID:   req.OrgID,
		Role:    req.Role,
		Name:    req.Name,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMember(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	m, err := h.members.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, m)
}

func (h *Handler) DeactivateMember(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.members.Deactivate(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

type upsertTurnoverRequest struct {
	Rows []turnover.UpsertRow `json:"rows"`
}

func (h *Handler) UpsertTurnover(c *gin.Context) {
	var req upsertTurnoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	inserted, err := h.turnover.Upsert(c.Request.Context(), req.Rows)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"inserted": inserted})
}

func (h *Handler) ListTeamLeads(c *gin.Context) {
	groupID, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	leads, err := h.members.ActiveTeamLeads(c.Request.Context(), groupID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"team_leads": leads})
}

// UnclaimedTurnover lists importable rows nobody claimed yet. Sellers are
// given either directly (seller_id, repeatable) or via a group whose
// organizations define them.
func (h *Handler) UnclaimedTurnover(c *gin.Context) {
	sellerIDs := c.QueryArray("seller_id")

	if raw := c.Query("group_id"); raw != "" {
		groupID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.Error(errutil.BadRequest("invalid group_id", err))
			return
		}
		sellerIDs, err = h.members.GroupOrganizationINNs(c.Request.Context(), groupID)
		if err != nil {
			c.Error(err)
			return
		}
	}

	rows, err := h.turnover.Unclaimed(c.Request.Context(), sellerIDs)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

// FirstSaleCheck reports whether a sale to the buyer before the given date
// would be the group's first, which is what the new-buyer bonus keys on.
func (h *Handler) FirstSaleCheck(c *gin.Context) {
	groupID, err := strconv.ParseInt(c.Query("group_id"), 10, 64)
	if err != nil {
		c.Error(errutil.BadRequest("invalid group_id", err))
		return
	}
	buyerID := c.Query("buyer_id")
	if buyerID == "" {
		c.Error(errutil.BadRequest("buyer_id is required", nil))
		return
	}
	before, err := time.ParseInLocation("2006-01-02", c.Query("before"), time.UTC)
	if err != nil {
		c.Error(errutil.BadRequest("invalid before date", err))
		return
	}

	inns, err := h.members.GroupOrganizationINNs(c.Request.Context(), groupID)
	if err != nil {
		c.Error(err)
		return
	}

	earlier, err := h.turnover.HasEarlierSale(c.Request.Context(), buyerID, inns, before)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"first_sale": !earlier})
}

func (h *Handler) GetTurnover(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	record, err := h.turnover.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, record)
}

type createClaimRequest struct {
	TurnoverID int64 `json:"turnover_id"`
	UserID     int64 `json:"user_id"`
}

func (h *Handler) CreateClaim(c *gin.Context) {
	var req createClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	cl, err := h.claims.Claim(c.Request.Context(), req.TurnoverID, req.UserID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, cl)
}

type createClaimBatchRequest struct {
	TurnoverIDs []int64 `json:"turnover_ids"`
	UserID      int64   `json:"user_id"`
}

func (h *Handler) CreateClaimBatch(c *gin.Context) {
	var req createClaimBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	result, err := h.claims.ClaimBatch(c.Request.Context(), req.TurnoverIDs, req.UserID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetClaim(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	cl, err := h.claims.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, cl)
}

func (h *Handler) ListClaims(c *gin.Context) {
	userID, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	claims, err := h.claims.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"claims": claims})
}

type openDisputeRequest struct {
	ClaimID     int64 `json:"claim_id"`
	InitiatorID int64 `json:"initiator_id"`
}

func (h *Handler) OpenDispute(c *gin.Context) {
	var req openDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	d, err := h.disputes.Open(c.Request.Context(), req.ClaimID, req.InitiatorID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDispute(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	d, err := h.disputes.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, d)
}

type cancelDisputeRequest struct {
	InitiatorID int64 `json:"initiator_id"`
}

func (h *Handler) CancelDispute(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req cancelDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	if err := h.disputes.Cancel(c.Request.Context(), id, req.InitiatorID); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

type resolveDisputeRequest struct {
	ModeratorID int64 `json:"moderator_id"`
	Approve     bool  `json:"approve"`
}

func (h *Handler) ResolveDispute(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req resolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	if err := h.disputes.Resolve(c.Request.Context(), id, req.ModeratorID, req.Approve); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
