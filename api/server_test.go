package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blndgs/batchdeploy"
	"github.com/blndgs/batchdeploy/chain/chaintest"
	"github.com/blndgs/batchdeploy/deployer"
	"github.com/blndgs/batchdeploy/wallet"
)

type testEnv struct {
	router  http.Handler
	backend *chaintest.Backend
	signer  *wallet.Key
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := wallet.New(key, nil)

	cfg := deployer.DefaultConfig()
	backend := chaintest.New(cfg.ChainID, cfg.AccountFactory)
	logger := log.NewLogger(log.DiscardHandler())

	d, err := deployer.New(cfg, backend, signer, logger)
	require.NoError(t, err)
	srv, err := NewServer(d, logger)
	require.NoError(t, err)

	return &testEnv{router: srv.Handler(), backend: backend, signer: signer}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return e.doWithContext(t, context.Background(), method, path, body)
}

func (e *testEnv) doWithContext(t *testing.T, ctx context.Context, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := setupRouter(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAddTokenHandler(t *testing.T) {
	env := setupRouter(t)

	testCases := []struct {
		description string
		payload     interface{}
		expectCode  int
	}{
		{
			description: "Valid token",
			payload:     map[string]string{"name": "Test", "symbol": "tst", "initialSupply": "1000"},
			expectCode:  http.StatusCreated,
		},
		{
			description: "Padded fields",
			payload:     map[string]string{"name": " Padded ", "symbol": " pad ", "initialSupply": " 7 "},
			expectCode:  http.StatusCreated,
		},
		{
			description: "Blank symbol",
			payload:     map[string]string{"name": "Test", "symbol": "   ", "initialSupply": "1"},
			expectCode:  http.StatusBadRequest,
		},
		{
			description: "Fractional supply",
			payload:     map[string]string{"name": "Half", "symbol": "HALF", "initialSupply": "0.5"},
			expectCode:  http.StatusCreated,
		},
		{
			description: "Missing name",
			payload:     map[string]string{"symbol": "TST", "initialSupply": "1000"},
			expectCode:  http.StatusBadRequest,
		},
		{
			description: "Symbol too long",
			payload:     map[string]string{"name": "Test", "symbol": "ABCDEFGHIJKL", "initialSupply": "1"},
			expectCode:  http.StatusBadRequest,
		},
		{
			description: "Supply is not a number",
			payload:     map[string]string{"name": "Test", "symbol": "TST", "initialSupply": "many"},
			expectCode:  http.StatusBadRequest,
		},
		{
			description: "Zero supply",
			payload:     map[string]string{"name": "Test", "symbol": "TST", "initialSupply": "0"},
			expectCode:  http.StatusBadRequest,
		},
		{
			description: "Not JSON",
			payload:     "name=Test",
			expectCode:  http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/tokens", tc.payload)
			assert.Equal(t, tc.expectCode, w.Code, w.Body.String())
		})
	}

	w := env.do(t, http.MethodGet, "/tokens", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Tokens []deployer.TokenSpec `json:"tokens"`
	}](t, w)
	require.Len(t, list.Tokens, 3)
	assert.Equal(t, "TST", list.Tokens[0].Symbol)
	assert.NotEmpty(t, list.Tokens[0].ID)
	assert.Equal(t, deployer.TokenSpec{ID: list.Tokens[1].ID, Name: "Padded", Symbol: "PAD", InitialSupply: "7"}, list.Tokens[1])
}

func TestRemoveTokenHandler(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodPost, "/tokens", map[string]string{"name": "Test", "symbol": "TST", "initialSupply": "1"})
	require.Equal(t, http.StatusCreated, w.Code)
	added := decode[deployer.TokenSpec](t, w)

	w = env.do(t, http.MethodDelete, "/tokens/"+added.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, "/tokens/"+added.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeploymentFlow(t *testing.T) {
	env := setupRouter(t)

	// empty list
	w := env.do(t, http.MethodPost, "/deployments", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	st := decode[deployer.Status](t, w)
	assert.Equal(t, deployer.Failed, st.State)
	require.NotNil(t, st.Failure)
	assert.Equal(t, deployer.ValidationError, st.Failure.Kind)

	w = env.do(t, http.MethodGet, "/account", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[deployer.AccountInfo](t, w)
	assert.False(t, info.Deployed)
	assert.Equal(t, env.signer.Address(), info.Owner)

	w = env.do(t, http.MethodPost, "/account", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	info = decode[deployer.AccountInfo](t, w)
	assert.True(t, info.Deployed)

	w = env.do(t, http.MethodPost, "/tokens", map[string]string{"name": "Test", "symbol": "TST", "initialSupply": "1000"})
	require.Equal(t, http.StatusCreated, w.Code)

	// unfunded account
	w = env.do(t, http.MethodPost, "/deployments", nil)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	st = decode[deployer.Status](t, w)
	require.NotNil(t, st.Failure)
	assert.Equal(t, deployer.InsufficientFunds, st.Failure.Kind)
	assert.Equal(t, info.Address, st.Failure.Account)

	w = env.do(t, http.MethodPost, "/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, deployer.Idle, decode[deployer.Status](t, w).State)

	funds, err := batchdeploy.ToBaseUnits("0.05")
	require.NoError(t, err)
	env.backend.Balances[info.Address] = new(big.Int).Set(funds)

	w = env.do(t, http.MethodPost, "/deployments", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st = decode[deployer.Status](t, w)
	assert.Equal(t, deployer.Success, st.State)

	w = env.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, st.TxHash, decode[deployer.Status](t, w).TxHash)

	require.NotNil(t, st.UserOperation)
	assert.Equal(t, info.Address, st.UserOperation.Sender)
	assert.True(t, st.UserOperation.HasSignature())
	hash, err := st.UserOperation.GetUserOpHash(deployer.DefaultEntryPoint, deployer.DefaultChainID)
	require.NoError(t, err)
	assert.Equal(t, st.UserOpHash, hash)

	w = env.do(t, http.MethodGet, "/tokens", nil)
	assert.JSONEq(t, `{"tokens":[]}`, w.Body.String())
}

// deployableEnv returns an environment with a funded smart account and one
// pending token.
func deployableEnv(t *testing.T) *testEnv {
	t.Helper()
	env := setupRouter(t)

	w := env.do(t, http.MethodPost, "/account", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	info := decode[deployer.AccountInfo](t, w)
	funds, err := batchdeploy.ToBaseUnits("0.05")
	require.NoError(t, err)
	env.backend.Balances[info.Address] = funds

	w = env.do(t, http.MethodPost, "/tokens", map[string]string{"name": "Test", "symbol": "TST", "initialSupply": "1000"})
	require.Equal(t, http.StatusCreated, w.Code)
	return env
}

func TestDeployment_ClientGoneAfterSubmission(t *testing.T) {
	env := deployableEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.backend.OnSend = func(chaintest.Tx) { cancel() }

	w := env.doWithContext(t, ctx, http.MethodPost, "/deployments", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, deployer.Success, decode[deployer.Status](t, w).State)

	w = env.do(t, http.MethodGet, "/tokens", nil)
	assert.JSONEq(t, `{"tokens":[]}`, w.Body.String())

	// a retry finds nothing left to submit
	sent := len(env.backend.Sent)
	w = env.do(t, http.MethodPost, "/deployments", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, env.backend.Sent, sent)
}

func TestFailureCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: &deployer.Failure{Kind: deployer.ValidationError}, want: http.StatusBadRequest},
		{err: &deployer.Failure{Kind: deployer.InsufficientFunds}, want: http.StatusPaymentRequired},
		{err: &deployer.Failure{Kind: deployer.SigningRejected}, want: http.StatusForbidden},
		{err: &deployer.Failure{Kind: deployer.SubmissionReverted}, want: http.StatusUnprocessableEntity},
		{err: &deployer.Failure{Kind: deployer.NetworkError}, want: http.StatusBadGateway},
		{err: &deployer.Failure{Kind: deployer.EncodingError}, want: http.StatusInternalServerError},
		{err: fmt.Errorf("wrapped: %w", &deployer.Failure{Kind: deployer.NetworkError}), want: http.StatusBadGateway},
		{err: errors.New("plain"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, failureCode(tt.err))
		})
	}
}
