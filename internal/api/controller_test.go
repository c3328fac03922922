package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ad3staker/internal/model"
	"ad3staker/internal/scenario"
	"ad3staker/internal/sim"
	"ad3staker/internal/staker"
)

var (
	engineAddr  = common.HexToAddress("0x00000000000000000000000000000000000057a4")
	governance  = common.HexToAddress("0x000000000000000000000000000000000000060f")
	rewardToken = common.HexToAddress("0x000000000000000000000000000000000000ad30")
	alice       = common.HexToAddress("0x0000000000000000000000000000000000000a11")
)

type testServer struct {
	server *httptest.Server
	env    *sim.Environment
	engine *staker.Engine
	key    staker.IncentiveKey
	token  uint64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	env := sim.NewEnvironment(1000)
	engine, err := env.NewEngine(engineAddr, governance, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	pool, err := env.Exchange.CreatePool(common.HexToAddress("0x1000"), common.HexToAddress("0x2000"), 3000, 0)
	require.NoError(t, err)
	token, err := env.Exchange.MintPosition(alice, pool, -60, 60, uint256.NewInt(1024))
	require.NoError(t, err)
	env.Tokens.Mint(rewardToken, governance, uint256.NewInt(1000))
	env.Tokens.Approve(rewardToken, governance, engineAddr, uint256.NewInt(1000))

	controller := NewController(engine, env, zaptest.NewLogger(t))
	server := httptest.NewServer(controller.NewRouter())
	t.Cleanup(server.Close)

	return &testServer{
		server: server,
		env:    env,
		engine: engine,
		key:    staker.IncentiveKey{RewardToken: rewardToken, Pool: pool, StartTime: 1100, EndTime: 2100},
		token:  token,
	}
}

func (s *testServer) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.server.URL+path, "application/json", strings.NewReader(string(data)))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(s.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp := s.get(t, "/api/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOperationsAndReads(t *testing.T) {
	s := newTestServer(t)
	keyRecord := s.key.Record()

	resp := s.post(t, "/api/ops", scenario.Operation{
		Op:      scenario.OpCreateIncentive,
		Caller:  "governance",
		Key:     &keyRecord,
		Amount:  "1000",
		MinTick: -600,
		MaxTick: 600,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created scenario.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.True(t, created.OK)
	require.Equal(t, s.key.ID().Hex(), created.Output["incentive_id"])

	resp = s.post(t, "/api/ops", scenario.Operation{Op: scenario.OpDeposit, Caller: alice.Hex(), Key: &keyRecord, TokenID: s.token})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var rejected scenario.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rejected))
	require.Equal(t, string(staker.CodeIncentiveNotStarted), rejected.Code)

	resp = s.post(t, "/api/ops", []scenario.Operation{
		{Op: scenario.OpSetTime, Time: 1100},
		{Op: scenario.OpDeposit, Caller: alice.Hex(), Key: &keyRecord, TokenID: s.token},
		{Op: scenario.OpStepTime, Seconds: 500},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var batch []scenario.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&batch))
	require.Len(t, batch, 3)
	for _, result := range batch {
		require.True(t, result.OK, "%+v", result)
	}

	resp = s.get(t, "/api/incentives/"+s.key.ID().Hex())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var incentive model.IncentiveRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&incentive))
	require.Equal(t, uint64(1), incentive.NumberOfStakes)
	require.Equal(t, "1000", incentive.TotalRewardUnclaimed)

	resp = s.get(t, "/api/deposits/1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var deposit model.DepositRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&deposit))
	require.Equal(t, alice.Hex(), deposit.Owner)

	resp = s.get(t, "/api/stakes/"+s.key.ID().Hex()+"/1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stake model.StakeRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stake))
	require.Equal(t, "1024", stake.Liquidity)

	resp = s.post(t, "/api/accrued", map[string]interface{}{"key": keyRecord, "token_id": s.token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var accrued map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accrued))
	require.Equal(t, "500", accrued["reward"])

	resp = s.get(t, "/api/rewards/"+rewardToken.Hex()+"/"+alice.Hex())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reward model.RewardRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reward))
	require.Equal(t, "0", reward.Amount)
}

func TestReadErrors(t *testing.T) {
	s := newTestServer(t)

	require.Equal(t, http.StatusBadRequest, s.get(t, "/api/incentives/0x1234").StatusCode)
	require.Equal(t, http.StatusNotFound, s.get(t, "/api/incentives/"+s.key.ID().Hex()).StatusCode)
	require.Equal(t, http.StatusBadRequest, s.get(t, "/api/deposits/abc").StatusCode)
	require.Equal(t, http.StatusNotFound, s.get(t, "/api/deposits/7").StatusCode)
	require.Equal(t, http.StatusBadRequest, s.get(t, "/api/rewards/nope/"+alice.Hex()).StatusCode)

	resp := s.post(t, "/api/ops", scenario.Operation{Op: scenario.OpWithdraw, Caller: alice.Hex(), Recipient: alice.Hex(), TokenID: 7})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
