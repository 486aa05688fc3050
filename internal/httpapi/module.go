package httpapi

import (
	"strconv"

	"turnover-rewards/pkg/errutil"
	"turnover-rewards/pkg/health"
	"turnover-rewards/pkg/middleware"
	"turnover-rewards/services/claim"
	"turnover-rewards/services/dispute"
	"turnover-rewards/services/incentive"
	"turnover-rewards/services/ledger"
	"turnover-rewards/services/member"
	"turnover-rewards/services/rating"
	"turnover-rewards/services/turnover"
	"turnover-rewards/services/withdrawal"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

type Handler struct {
	members     *member.Service
	turnover    *turnover.Service
	claims      *claim.Service
	disputes    *dispute.Service
	ledger      *ledger.Service
	withdrawals *withdrawal.Service
	ratings     *rating.Service
	incentives  *incentive.Service
	health      health.HealthService
}

type HandlerParams struct {
	fx.In
	Members     *member.Service
	Turnover    *turnover.Service
	Claims      *claim.Service
	Disputes    *dispute.Service
	Ledger      *ledger.Service
	Withdrawals *withdrawal.Service
	Ratings     *rating.Service
	Incentives  *incentive.Service
	Health      health.HealthService
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		members:     p.Members,
		turnover:    p.Turnover,
		claims:      p.Claims,
		disputes:    p.Disputes,
		ledger:      p.Ledger,
		withdrawals: p.Withdrawals,
		ratings:     p.Ratings,
		incentives:  p.Incentives,
		health:      p.Health,
	}
}

func RegisterRoutes(engine *gin.Engine, h *Handler) {
	engine.GET("/healthz", h.health.Liveness)
	engine.GET("/readyz", h.health.Readiness)

	v1 := engine.Group("/v1", middleware.Error())

	v1.POST("/members/groups", h.RegisterGroup)
	v1.POST("/members/organizations", h.RegisterOrganization)
	v1.POST("/members", h.RegisterMember)
	v1.GET("/members/:id", h.GetMember)
	v1.POST("/members/:id/deactivate", h.DeactivateMember)
	v1.GET("/members/groups/:id/team-leads", h.ListTeamLeads)

	v1.POST("/turnover", h.UpsertTurnover)
	v1.GET("/turnover/unclaimed", h.UnclaimedTurnover)
	v1.GET("/turnover/first-sale", h.FirstSaleCheck)
	v1.GET("/turnover/:id", h.GetTurnover)

	v1.POST("/claims", h.CreateClaim)
	v1.POST("/claims/batch", h.CreateClaimBatch)
	v1.GET("/claims/:id", h.GetClaim)
	v1.GET("/users/:id/claims", h.ListClaims)

	v1.POST("/disputes", h.OpenDispute)
	v1.GET("/disputes/:id", h.GetDispute)
	v1.POST("/disputes/:id/cancel", h.CancelDispute)
	v1.POST("/disputes/:id/resolve", h.ResolveDispute)

	v1.GET("/users/:id/balances", h.GetBalances)
	v1.GET("/users/:id/ledger", h.ListEntries)
	v1.GET("/users/:id/ledger/breakdown", h.StageBreakdown)
	v1.POST("/users/:id/ledger/verify", h.VerifyChain)

	v1.POST("/withdrawals", h.RequestWithdrawal)
	v1.GET("/withdrawals/:id", h.GetWithdrawal)
	v1.GET("/users/:id/withdrawals", h.ListWithdrawals)

	v1.GET("/ratings", h.GetRanking)

	admin := v1.Group("/admin")
	admin.POST("/supertasks", h.CreateSupertask)
	admin.POST("/levels", h.CreateLevel)
	admin.GET("/levels/suggest", h.SuggestLevelTarget)
	admin.POST("/claims/:id/resync", h.ResyncClaim)
	admin.POST("/claims/resync", h.ResyncAll)
	admin.POST("/ratings/snapshot", h.SnapshotRating)
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errutil.BadRequest("invalid id", err)
	}
	return id, nil
}
