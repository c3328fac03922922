// Package api exposes the staking engine and its simulated environment over HTTP.
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"ad3staker/internal/model"
	"ad3staker/internal/q128"
	"ad3staker/internal/scenario"
	"ad3staker/internal/sim"
	"ad3staker/internal/staker"
)

// Controller serves the engine API.
type Controller struct {
	Engine   *staker.Engine
	Env      *sim.Environment
	Executor *scenario.Executor
	Logger   *zap.Logger
}

// NewController returns a controller over engine and env.
func NewController(engine *staker.Engine, env *sim.Environment, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		Engine:   engine,
		Env:      env,
		Executor: scenario.NewExecutor(env, engine, logger),
		Logger:   logger,
	}
}

// NewRouter returns the API router.
func (c *Controller) NewRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/health", c.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/time", c.HandleTime).Methods(http.MethodGet)
	r.HandleFunc("/api/snapshot", c.HandleSnapshot).Methods(http.MethodGet)

	r.HandleFunc("/api/incentives/{id}", c.HandleIncentive).Methods(http.MethodGet)
	r.HandleFunc("/api/deposits/{tokenId}", c.HandleDeposit).Methods(http.MethodGet)
	r.HandleFunc("/api/stakes/{incentiveId}/{tokenId}", c.HandleStake).Methods(http.MethodGet)
	r.HandleFunc("/api/rewards/{token}/{owner}", c.HandleRewards).Methods(http.MethodGet)

	r.HandleFunc("/api/ops", c.HandleOperations).Methods(http.MethodPost)
	r.HandleFunc("/api/accrued", c.HandleAccrued).Methods(http.MethodPost)

	return r
}

// HandleHealth reports liveness.
func (c *Controller) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleTime returns the simulated block time.
func (c *Controller) HandleTime(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"time": c.Env.Clock.Now()})
}

// HandleSnapshot returns the full ledger.
func (c *Controller) HandleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, c.Engine.Snapshot())
}

// HandleIncentive returns one incentive.
// GET /api/incentives/{id}
func (c *Controller) HandleIncentive(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]
	if !isHash(raw) {
		writeError(w, http.StatusBadRequest, "invalid incentive id")
		return
	}
	id := common.HexToHash(raw)
	incentive, ok := c.Engine.Incentive(id)
	if !ok {
		writeError(w, http.StatusNotFound, "incentive not found")
		return
	}
	writeJSON(w, http.StatusOK, model.IncentiveRecord{
		IncentiveID:             id.Hex(),
		Key:                     incentive.Key.Record(),
		TotalRewardUnclaimed:    q128.Format(incentive.TotalRewardUnclaimed),
		TotalSecondsClaimedX128: q128.Format(incentive.TotalSecondsClaimedX128),
		MinTick:                 incentive.MinTick,
		MaxTick:                 incentive.MaxTick,
		NumberOfStakes:          incentive.NumberOfStakes,
	})
}

// HandleDeposit returns the deposit of a token.
// GET /api/deposits/{tokenId}
func (c *Controller) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	tokenID, err := strconv.ParseUint(mux.Vars(r)["tokenId"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}
	deposit, ok := c.Engine.Deposit(tokenID)
	if !ok {
		writeError(w, http.StatusNotFound, "deposit not found")
		return
	}
	writeJSON(w, http.StatusOK, model.DepositRecord{
		TokenID:        tokenID,
		Owner:          deposit.Owner.Hex(),
		NumberOfStakes: deposit.NumberOfStakes,
		TickLower:      deposit.TickLower,
		TickUpper:      deposit.TickUpper,
	})
}

// HandleStake returns a stake. A missing stake reads as zero values.
// GET /api/stakes/{incentiveId}/{tokenId}
func (c *Controller) HandleStake(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !isHash(vars["incentiveId"]) {
		writeError(w, http.StatusBadRequest, "invalid incentive id")
		return
	}
	tokenID, err := strconv.ParseUint(vars["tokenId"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}
	id := common.HexToHash(vars["incentiveId"])
	stake, _ := c.Engine.Stake(id, tokenID)
	writeJSON(w, http.StatusOK, model.StakeRecord{
		IncentiveID:                          id.Hex(),
		TokenID:                              tokenID,
		SecondsPerLiquidityInsideInitialX128: q128.Format(stake.SecondsPerLiquidityInsideInitialX128),
		Liquidity:                            q128.Format(stake.Liquidity),
	})
}

// HandleRewards returns a rewards ledger balance.
// GET /api/rewards/{token}/{owner}
func (c *Controller) HandleRewards(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !common.IsHexAddress(vars["token"]) || !common.IsHexAddress(vars["owner"]) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	token := common.HexToAddress(vars["token"])
	owner := common.HexToAddress(vars["owner"])
	writeJSON(w, http.StatusOK, model.RewardRecord{
		RewardToken: token.Hex(),
		Owner:       owner.Hex(),
		Amount:      q128.Format(c.Engine.Rewards(token, owner)),
	})
}

// HandleOperations applies one operation or a list of operations.
// POST /api/ops
func (c *Controller) HandleOperations(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	body := bytes.TrimSpace(buf.Bytes())

	var ops []scenario.Operation
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &ops); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
	} else {
		var op scenario.Operation
		if err := json.Unmarshal(body, &op); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		ops = append(ops, op)
	}

	results, err := c.Executor.Run(r.Context(), ops, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if len(ops) == 1 && !results[0].OK {
		status = statusFor(staker.ErrorCode(results[0].Code))
	}
	if len(ops) == 1 {
		writeJSON(w, status, results[0])
		return
	}
	writeJSON(w, status, results)
}

type accruedRequest struct {
	Key     model.IncentiveKeyRecord `json:"key"`
	TokenID uint64                   `json:"token_id"`
}

// HandleAccrued returns the reward a stake would realize now.
// POST /api/accrued
func (c *Controller) HandleAccrued(w http.ResponseWriter, r *http.Request) {
	var req accruedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	key, err := staker.KeyFromRecord(req.Key)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reward, seconds, err := c.Engine.GetAccruedRewardInfo(r.Context(), key, req.TokenID)
	if err != nil {
		c.Logger.Warn("accrued reward read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"incentive_id":        key.ID().Hex(),
		"reward":              q128.Format(reward),
		"seconds_inside_x128": q128.Format(seconds),
	})
}

func statusFor(code staker.ErrorCode) int {
	switch code {
	case "":
		return http.StatusBadRequest
	case staker.CodeUnauthorized, staker.CodeNotApproved:
		return http.StatusForbidden
	case staker.CodeIncentiveNotFound, staker.CodeStakeNotFound, staker.CodeDepositNotFound:
		return http.StatusNotFound
	default:
		return http.StatusConflict
	}
}

func isHash(value string) bool {
	raw, err := hexutil.Decode(value)
	return err == nil && len(raw) == common.HashLength
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
