package payu

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey  = "gtKFFx"
	testSalt = "eCwWELxi"
)

func testGateway() *Gateway {
	return New(Config{
		Key:        testKey,
		Salt:       testSalt,
		ActionURL:  "https://test.payu.in/_payment",
		SuccessURL: "https://mw.example.com/callbacks/payu/success",
		FailureURL: "https://mw.example.com/callbacks/payu/failure",
	})
}

func testRequest() Request {
	return Request{
		TxnID:       "INV501-abc",
		AmountCents: 24200,
		ProductInfo: "VPS Start",
		FirstName:   "Jan",
		Email:       "jan@example.com",
		UDF:         [5]string{"501", "12"},
	}
}

func successForm() url.Values {
	return url.Values{
		"key":         {testKey},
		"txnid":       {"INV501-abc"},
		"mihpayid":    {"403993715521"},
		"status":      {"success"},
		"amount":      {"242.00"},
		"productinfo": {"VPS Start"},
		"firstname":   {"Jan"},
		"email":       {"jan@example.com"},
		"udf1":        {"501"},
		"udf2":        {"12"},
		"hash":        {"bb2b352b5b3d6b4b143d1ca078cac5e83101e5b3a8b03de32920626c983c2240ed579dac770a7e48aa61ce36f6a306809ec8267f13e4b9270825eb896ba245f3"},
	}
}

func TestRequestHash(t *testing.T) {
	got := RequestHash(testKey, testSalt, testRequest())
	assert.Equal(t, "b9d2846b50d94eced310901c3e1600a119b8a7b5ad440fcac2c6706976c2adb9b4e74b6596949836c799dec7b1a14300e8cfb9e4e7603bbc5d74122904fe37b6", got)
}

func TestResponseHashWithAdditionalCharges(t *testing.T) {
	r := &Response{
		Status: "success", TxnID: "INV501-abc", Amount: "242.00", ProductInfo: "VPS Start",
		FirstName: "Jan", Email: "jan@example.com", UDF: [5]string{"501", "12"},
		AdditionalCharges: "10.00",
	}
	assert.Equal(t, "b5f4ee05bd3b3a298588c6fa7e055d7309f9d09b2089c1f07a00d75cfc7d306f584702f9932ed515e45243ed064f1a313e566dacefbf4fbf21bf406e5e432d94",
		ResponseHash(testKey, testSalt, r))
}

func TestCheckout(t *testing.T) {
	co, err := testGateway().Checkout(testRequest())
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, co.Method)
	assert.Equal(t, "https://test.payu.in/_payment", co.URL)
	assert.Equal(t, "501", co.InvoiceID)
	assert.Equal(t, "242.00", co.Fields["amount"])
	assert.Equal(t, "501", co.Fields["udf1"])
	assert.Equal(t, "", co.Fields["udf5"])
	assert.Equal(t, RequestHash(testKey, testSalt, testRequest()), co.Fields["hash"])
	assert.Equal(t, "https://mw.example.com/callbacks/payu/failure", co.Fields["furl"])
}

func TestCheckoutValidation(t *testing.T) {
	r := testRequest()
	r.Email = ""
	_, err := testGateway().Checkout(r)
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = New(Config{}).Checkout(testRequest())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestParseResponse(t *testing.T) {
	resp, err := testGateway().ParseResponse(successForm())
	require.NoError(t, err)

	assert.True(t, resp.Success())
	assert.Equal(t, int64(24200), resp.AmountCents)
	assert.Equal(t, "501", resp.InvoiceID())
	assert.Equal(t, "12", resp.OrderID())
	assert.Equal(t, "403993715521", resp.MihPayID)
}

func TestParseResponseRejectsTampering(t *testing.T) {
	form := successForm()
	form.Set("amount", "1.00")
	_, err := testGateway().ParseResponse(form)
	assert.ErrorIs(t, err, ErrHashMismatch)

	form = successForm()
	form.Set("key", "other")
	_, err = testGateway().ParseResponse(form)
	assert.ErrorIs(t, err, ErrKeyMismatch)

	form = successForm()
	form.Del("hash")
	_, err = testGateway().ParseResponse(form)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestSignResponseRoundTrip(t *testing.T) {
	g := testGateway()
	form := successForm()
	form.Del("hash")
	form.Set("status", "failure")
	g.SignResponse(form)

	resp, err := g.ParseResponse(form)
	require.NoError(t, err)
	assert.False(t, resp.Success())
}

func TestNewTxnID(t *testing.T) {
	id := NewTxnID("501")
	assert.LessOrEqual(t, len(id), 25)
	assert.Contains(t, id, "INV501-")
	assert.NotEqual(t, id, NewTxnID("501"))
}
