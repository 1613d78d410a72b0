package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInitiateCharge(t *testing.T) {
	var gotAuth string
	var gotReq ChargeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments" {
			t.Error("Unexpected path:", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(ChargeResponse{
			Success: true, Status: "QUEUED", Reference: "REF9", CheckoutRequestID: "ws_CO_1",
		})
	}))
	defer srv.Close()

	client := NewClientWithURL(srv.URL)
	resp, err := client.InitiateCharge(context.Background(), "Basic abc", ChargeRequest{
		Amount: 50, PhoneNumber: "0712345678", ChannelID: 42, Provider: "m-pesa",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.CheckoutRequestID != "ws_CO_1" {
		t.Error("Unexpected response:", resp)
	}
	if gotAuth != "Basic abc" {
		t.Error("Token not forwarded, got", gotAuth)
	}
	if gotReq.Amount != 50 || gotReq.Provider != "m-pesa" {
		t.Error("Request body mangled:", gotReq)
	}
}

func TestInitiateChargeNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClientWithURL(srv.URL).InitiateCharge(context.Background(), "bad", ChargeRequest{})
	if err == nil {
		t.Error("Expected error for 401 response")
	}
}
