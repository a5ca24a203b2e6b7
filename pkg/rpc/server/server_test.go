package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toicours/fundme-go/pkg/config"
	"github.com/toicours/fundme-go/pkg/core/ledger"
	"github.com/toicours/fundme-go/pkg/core/storage"
	"github.com/toicours/fundme-go/pkg/encoding/address"
	"github.com/toicours/fundme-go/pkg/encoding/base58"
	"github.com/toicours/fundme-go/pkg/encoding/fixedn"
	"github.com/toicours/fundme-go/pkg/oracle"
	"github.com/toicours/fundme-go/pkg/rpc/response"
	"github.com/toicours/fundme-go/pkg/rpc/response/result"
	"github.com/toicours/fundme-go/pkg/util"
	"go.uber.org/zap/zaptest"
)

// testPrice is $2000 per currency unit at 8 decimals, which together with
// the $5 minimum makes 2500000000000000 the smallest accepted contribution.
var testPrice = uint256.NewInt(200000000000)

const minContribution = "2500000000000000"

func testOwner() util.Uint160 {
	return util.RipemdHash160([]byte("owner"))
}

func testAccount(i byte) util.Uint160 {
	return util.RipemdHash160([]byte{0xac, i})
}

func initTestServer(t *testing.T) *Server {
	cfg := config.Config{
		LedgerConfiguration: config.LedgerConfiguration{
			Owner:      testOwner(),
			MinimumUSD: fixedn.Fixed8FromInt64(5),
		},
		ApplicationConfiguration: config.ApplicationConfiguration{
			RPC: config.RPCConfig{
				BasicService: config.BasicService{
					Enabled: true,
					Address: "127.0.0.1",
					Port:    20332,
				},
			},
		},
	}
	ld, err := ledger.New(ledger.Config{
		Owner:      cfg.LedgerConfiguration.Owner,
		MinimumUSD: cfg.LedgerConfiguration.MinimumUSD,
	}, storage.NewMemoryStore(), oracle.NewStatic(testPrice, 8, 4), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	return New(ld, cfg, zaptest.NewLogger(t))
}

func doRPCCall(t *testing.T, srv *Server, body string) (response.Raw, int) {
	req := httptest.NewRequest("POST", "http://127.0.0.1:20332/", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.requestHandler(w, req)

	var resp response.Raw
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp, w.Code
}

func callMethod(t *testing.T, srv *Server, method string, params string) (response.Raw, int) {
	body := fmt.Sprintf(`{"jsonrpc": "2.0", "id": 1, "method": %q, "params": %s}`, method, params)
	return doRPCCall(t, srv, body)
}

func requireResult(t *testing.T, srv *Server, method, params string, out interface{}) {
	resp, code := callMethod(t, srv, method, params)
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Result, out))
}

func requireErrorCode(t *testing.T, resp response.Raw, httpCode int, code int64, gotCode int) {
	require.NotNil(t, resp.Error)
	assert.Equal(t, code, resp.Error.Code)
	assert.Equal(t, httpCode, gotCode)
}

func TestRPCGetVersion(t *testing.T) {
	srv := initTestServer(t)

	var v result.Version
	requireResult(t, srv, "getversion", "[]", &v)
	assert.Contains(t, v.UserAgent, "FUNDME-GO")
	assert.EqualValues(t, 4, v.OracleRound)
	assert.Equal(t, fixedn.Fixed8FromInt64(5), v.MinimumUSD)
}

func TestRPCContributeAndQueries(t *testing.T) {
	srv := initTestServer(t)
	accAddr := address.Uint160ToString(testAccount(1))

	var receipt ledger.Receipt
	requireResult(t, srv, "contribute", fmt.Sprintf(`["%s", "%s"]`, accAddr, minContribution), &receipt)
	assert.Equal(t, ledger.OpContribute, receipt.Op)
	assert.Equal(t, testAccount(1), receipt.Account)
	assert.NotEqual(t, uuid.UUID{}, receipt.ID)

	var amount result.Amount
	requireResult(t, srv, "getamountfunded", fmt.Sprintf(`["%s"]`, accAddr), &amount)
	assert.Equal(t, minContribution, amount.Amount)

	// The account parameter works in raw hex form as well.
	var amountHex result.Amount
	requireResult(t, srv, "getamountfunded", fmt.Sprintf(`["0x%s"]`, testAccount(1).String()), &amountHex)
	assert.Equal(t, minContribution, amountHex.Amount)

	var count uint32
	requireResult(t, srv, "getfundercount", "[]", &count)
	assert.EqualValues(t, 1, count)

	var funder result.Funder
	requireResult(t, srv, "getfunder", "[0]", &funder)
	assert.Equal(t, accAddr, funder.Address)

	var held result.Amount
	requireResult(t, srv, "getheldbalance", "[]", &held)
	assert.Equal(t, minContribution, held.Amount)

	var owner string
	requireResult(t, srv, "getowner", "[]", &owner)
	assert.Equal(t, address.Uint160ToString(testOwner()), owner)
}

func TestRPCContributeBelowMinimum(t *testing.T) {
	srv := initTestServer(t)
	accAddr := address.Uint160ToString(testAccount(1))

	resp, code := callMethod(t, srv, "contribute", fmt.Sprintf(`["%s", "2499999999999999"]`, accAddr))
	requireErrorCode(t, resp, http.StatusUnprocessableEntity, response.InsufficientContributionCode, code)
}

func TestRPCWithdraw(t *testing.T) {
	for _, method := range []string{"withdraw", "withdrawcheaper"} {
		t.Run(method, func(t *testing.T) {
			srv := initTestServer(t)
			accAddr := address.Uint160ToString(testAccount(1))
			ownerAddr := address.Uint160ToString(testOwner())

			var receipt ledger.Receipt
			requireResult(t, srv, "contribute", fmt.Sprintf(`["%s", "%s"]`, accAddr, minContribution), &receipt)

			resp, code := callMethod(t, srv, method, fmt.Sprintf(`["%s"]`, accAddr))
			requireErrorCode(t, resp, http.StatusForbidden, response.UnauthorizedCode, code)

			requireResult(t, srv, method, fmt.Sprintf(`["%s"]`, ownerAddr), &receipt)
			assert.Equal(t, ledger.OpWithdraw, receipt.Op)
			assert.Equal(t, minContribution, receipt.Amount.ToBig().String())

			var held result.Amount
			requireResult(t, srv, "getheldbalance", "[]", &held)
			assert.Equal(t, "0", held.Amount)

			var count uint32
			requireResult(t, srv, "getfundercount", "[]", &count)
			assert.EqualValues(t, 0, count)
		})
	}
}

func TestRPCGetFunderOutOfRange(t *testing.T) {
	srv := initTestServer(t)

	resp, code := callMethod(t, srv, "getfunder", "[0]")
	requireErrorCode(t, resp, http.StatusUnprocessableEntity, response.IndexOutOfRangeCode, code)

	resp, code = callMethod(t, srv, "getfunder", "[-1]")
	requireErrorCode(t, resp, http.StatusUnprocessableEntity, response.InvalidParamsCode, code)
}

func TestRPCGetReceipt(t *testing.T) {
	srv := initTestServer(t)
	accAddr := address.Uint160ToString(testAccount(1))

	var receipt ledger.Receipt
	requireResult(t, srv, "contribute", fmt.Sprintf(`["%s", "%s"]`, accAddr, minContribution), &receipt)

	var fetched ledger.Receipt
	requireResult(t, srv, "getreceipt", fmt.Sprintf(`["%s"]`, receipt.ID), &fetched)
	assert.Equal(t, receipt.ID, fetched.ID)
	assert.Equal(t, receipt.Account, fetched.Account)

	resp, code := callMethod(t, srv, "getreceipt", fmt.Sprintf(`["%s"]`, uuid.New()))
	requireErrorCode(t, resp, http.StatusNotFound, response.UnknownReceiptCode, code)
}

func TestRPCValidateAddress(t *testing.T) {
	srv := initTestServer(t)

	var res result.ValidateAddress
	requireResult(t, srv, "validateaddress", fmt.Sprintf(`["%s"]`, address.Uint160ToString(testAccount(7))), &res)
	assert.True(t, res.IsValid)

	requireResult(t, srv, "validateaddress", `["not-an-address"]`, &res)
	assert.False(t, res.IsValid)

	// Checksum-valid base58, but shorter than an address.
	short := base58.CheckEncode([]byte{address.Prefix})
	requireResult(t, srv, "validateaddress", fmt.Sprintf(`["%s"]`, short), &res)
	assert.False(t, res.IsValid)

	requireResult(t, srv, "validateaddress", `[42]`, &res)
	assert.False(t, res.IsValid)
}

func TestRPCBadRequests(t *testing.T) {
	srv := initTestServer(t)

	resp, code := doRPCCall(t, srv, `{"jsonrpc": "2.0", "id": 1`)
	requireErrorCode(t, resp, http.StatusBadRequest, response.ParseErrorCode, code)

	resp, code = callMethod(t, srv, "frobnicate", "[]")
	requireErrorCode(t, resp, http.StatusMethodNotAllowed, response.MethodNotFoundCode, code)

	resp, code = callMethod(t, srv, "contribute", "[]")
	requireErrorCode(t, resp, http.StatusUnprocessableEntity, response.InvalidParamsCode, code)

	req := httptest.NewRequest("GET", "http://127.0.0.1:20332/", nil)
	w := httptest.NewRecorder()
	srv.requestHandler(w, req)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	requireErrorCode(t, resp, http.StatusUnprocessableEntity, response.InvalidParamsCode, w.Code)
}
