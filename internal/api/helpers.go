package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"distributed-kvstore/internal/antientropy"
	"distributed-kvstore/internal/apierr"
	"distributed-kvstore/internal/quorum"
)

// parseConsistencyHint reads a GET's optional SLO hint from query
// parameters: deadlineMillis, mode (safe|budgeted), maxBudgetedFraction.
// Absent parameters yield quorum.HintNone, the zero-value default.
func parseConsistencyHint(c *gin.Context) (quorum.ConsistencyHint, error) {
	mode := c.Query("mode")
	if mode == "" {
		return quorum.ConsistencyHint{}, nil
	}

	hint := quorum.ConsistencyHint{AllowStaleness: true}
	switch mode {
	case "safe":
		hint.Mode = quorum.HintDeadlineOnly
	case "budgeted":
		hint.Mode = quorum.HintBudgeted
	default:
		return quorum.ConsistencyHint{}, apierr.New(apierr.BadRequest, `mode must be "safe" or "budgeted"`)
	}

	if raw := c.Query("deadlineMillis"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return quorum.ConsistencyHint{}, apierr.New(apierr.BadRequest, "deadlineMillis must be a non-negative integer")
		}
		hint.DeadlineMillis = v
	}

	if raw := c.Query("maxBudgetedFraction"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			return quorum.ConsistencyHint{}, apierr.New(apierr.BadRequest, "maxBudgetedFraction must be in [0, 1]")
		}
		hint.MaxBudgetedFraction = v
	}

	return hint, nil
}

// parseShardQuery reads MERKLE-SNAPSHOT's (startToken, endToken) query
// parameters. Absent parameters default to the full ring range. The
// leafCount parameter is accepted for API-contract completeness but not
// applied: this node's anti-entropy Session always builds its tree at its
// own configured leaf count, so two nodes comparing roots never disagree
// on shape by construction.
func parseShardQuery(c *gin.Context) (antientropy.ShardRange, error) {
	startRaw := c.DefaultQuery("start", "0")
	endRaw := c.DefaultQuery("end", "0")

	start, err := strconv.ParseUint(startRaw, 10, 64)
	if err != nil {
		return antientropy.ShardRange{}, apierr.New(apierr.BadRequest, "start must be a valid uint64 token")
	}
	end, err := strconv.ParseUint(endRaw, 10, 64)
	if err != nil {
		return antientropy.ShardRange{}, apierr.New(apierr.BadRequest, "end must be a valid uint64 token")
	}
	return antientropy.ShardRange{Start: start, End: end}, nil
}
