// Package payu builds PayU hosted-checkout forms and verifies the response
// PayU posts back to the success/failure URLs.
package payu

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// UDF slots as this middleware uses them.
const (
	UDFInvoiceID = 0
	UDFOrderID   = 1
)

// RequestHash signs an outgoing payment request:
// sha512(key|txnid|amount|productinfo|firstname|email|udf1|...|udf5||||||salt).
func RequestHash(key, salt string, r Request) string {
	parts := []string{key, r.TxnID, r.Amount(), r.ProductInfo, r.FirstName, r.Email}
	parts = append(parts, r.UDF[:]...)
	parts = append(parts, "", "", "", "", "", salt)
	return sum(parts)
}

// ResponseHash is the reverse hash PayU sends back:
// sha512([additionalCharges|]salt|status||||||udf5|...|udf1|email|firstname|productinfo|amount|txnid|key).
func ResponseHash(key, salt string, r *Response) string {
	var parts []string
	if r.AdditionalCharges != "" {
		parts = append(parts, r.AdditionalCharges)
	}
	parts = append(parts, salt, r.Status, "", "", "", "", "")
	for i := len(r.UDF) - 1; i >= 0; i-- {
		parts = append(parts, r.UDF[i])
	}
	parts = append(parts, r.Email, r.FirstName, r.ProductInfo, r.Amount, r.TxnID, key)
	return sum(parts)
}

func sum(parts []string) string {
	h := sha512.Sum512([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
