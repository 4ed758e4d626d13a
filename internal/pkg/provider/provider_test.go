package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLNbitsCreateCharge(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/payments", r.URL.Path)
		assert.Equal(t, "invoice-key", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"payment_hash":"abc123","payment_request":"lnbc10u1xyz"}`))
	}))
	defer srv.Close()

	l := &LNbits{BaseURL: srv.URL, InvoiceKey: "invoice-key", WebhookURL: "https://example.com/hook", HTTPClient: srv.Client()}
	charge, err := l.CreateCharge(context.Background(), 1000, "coffee", map[string]any{"order": "1"})
	require.NoError(t, err)

	assert.Equal(t, "abc123", charge.ID)
	assert.Equal(t, "lnbc10u1xyz", charge.Invoice)
	assert.Equal(t, int64(1000), charge.AmountSats)
	assert.Equal(t, false, got["out"])
	assert.Equal(t, float64(1000), got["amount"])
	assert.Equal(t, "coffee", got["memo"])
	assert.Equal(t, "https://example.com/hook", got["webhook"])
}

func TestLNbitsGetCharge(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "paid", body: `{"paid":true,"details":{"status":"success","amount":21000}}`, want: "PAID"},
		{name: "pending", body: `{"paid":false,"details":{"status":"pending","amount":21000}}`, want: "PENDING"},
		{name: "failed", body: `{"paid":false,"details":{"status":"failed"}}`, want: "FAILED"},
		{name: "no status", body: `{"paid":false}`, want: "PENDING"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/payments/hash-1", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			l := &LNbits{BaseURL: srv.URL, InvoiceKey: "k", HTTPClient: srv.Client()}
			st, err := l.GetCharge(context.Background(), "hash-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.Status)
		})
	}
}

func TestLNbitsPayInvoiceUsesAdminKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "admin-key", r.Header.Get("X-Api-Key"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["out"])
		assert.Equal(t, "lnbc1pay", body["bolt11"])
		_, _ = w.Write([]byte(`{"payment_hash":"out-1"}`))
	}))
	defer srv.Close()

	l := &LNbits{BaseURL: srv.URL, InvoiceKey: "k", AdminKey: "admin-key", HTTPClient: srv.Client()}
	out, err := l.PayInvoice(context.Background(), "lnbc1pay")
	require.NoError(t, err)
	assert.Equal(t, "out-1", out.Ref)
	assert.Equal(t, "PAID", out.Status)
}

func TestLNbitsDecodeInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/payments/decode", r.URL.Path)
		assert.Equal(t, "invoice-key", r.Header.Get("X-Api-Key"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "lnbc25u1decode", body["data"])
		_, _ = w.Write([]byte(`{"payment_hash":"dec-1","amount_msat":2500000}`))
	}))
	defer srv.Close()

	l := &LNbits{BaseURL: srv.URL, InvoiceKey: "invoice-key", AdminKey: "admin-key", HTTPClient: srv.Client()}
	decoded, err := l.DecodeInvoice(context.Background(), "lnbc25u1decode")
	require.NoError(t, err)
	assert.Equal(t, int64(2500000), decoded.AmountMsat)
	assert.Equal(t, "dec-1", decoded.PaymentHash)

	_, err = (&LNbits{BaseURL: srv.URL}).DecodeInvoice(context.Background(), "lnbc25u1decode")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestHRPAmountMsat(t *testing.T) {
	tests := []struct {
		invoice string
		want    int64
		wantErr bool
	}{
		{invoice: "lnbc1pvjluezpp5", want: 0},
		{invoice: "lnbc2500u1pvjluez", want: 250_000_000},
		{invoice: "lnbc20m1pvjluez", want: 2_000_000_000},
		{invoice: "lntb1500n1qqqsyqcyq5", want: 150_000},
		{invoice: "lnbcrt200n1pwithdraw", want: 20_000},
		{invoice: "lnbc10p1pvjluez", want: 1},
		{invoice: "LNBC1U1PVJLUEZ", want: 100_000},
		{invoice: "lnbc2btc1pvjluez", wantErr: true},
		{invoice: "lnbc15p1pvjluez", wantErr: true},
		{invoice: "lnbc0u1pvjluez", wantErr: true},
		{invoice: "bc1qxyz", wantErr: true},
		{invoice: "ln1xyz", wantErr: true},
		{invoice: "lnbc99999999999999999999m1x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.invoice, func(t *testing.T) {
			got, err := hrpAmountMsat(tt.invoice)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSandboxDecodesOwnInvoices(t *testing.T) {
	s := NewSandbox("lnbits")
	ctx := context.Background()

	charge, err := s.CreateCharge(ctx, 21, "tip", nil)
	require.NoError(t, err)
	decoded, err := s.DecodeInvoice(ctx, charge.Invoice)
	require.NoError(t, err)
	assert.Equal(t, int64(21_000), decoded.AmountMsat)

	_, err = s.DecodeInvoice(ctx, "not-an-invoice")
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
}

func TestLNbitsErrors(t *testing.T) {
	_, err := (&LNbits{}).CreateCharge(context.Background(), 1, "", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = (&LNbits{BaseURL: "http://x", InvoiceKey: "k"}).PayInvoice(context.Background(), "lnbc")
	assert.ErrorIs(t, err, ErrNotConfigured)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream down`))
	}))
	defer srv.Close()

	l := &LNbits{BaseURL: srv.URL, InvoiceKey: "k", HTTPClient: srv.Client()}
	_, err = l.GetCharge(context.Background(), "h")
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
	assert.Equal(t, "upstream down", perr.Body)
}

func TestOpenNodeCreateAndGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "on-key", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/charges":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "A-7", body["order_id"])
			assert.Equal(t, false, body["auto_settle"])
			_, _ = w.Write([]byte(`{"data":{"id":"ch_1","status":"unpaid","amount":500,"lightning_invoice":{"payreq":"lnbc5u1on"}}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/charge/ch_1":
			_, _ = w.Write([]byte(`{"data":{"id":"ch_1","status":"paid","amount":500}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	o := &OpenNode{APIKey: "on-key", APIBaseURL: srv.URL, HTTPClient: srv.Client()}
	charge, err := o.CreateCharge(context.Background(), 500, "ticket", map[string]any{"order_id": "A-7"})
	require.NoError(t, err)
	assert.Equal(t, "ch_1", charge.ID)
	assert.Equal(t, "lnbc5u1on", charge.Invoice)

	st, err := o.GetCharge(context.Background(), "ch_1")
	require.NoError(t, err)
	assert.Equal(t, "PAID", st.Status)
	assert.Equal(t, int64(500), st.AmountSats)
}

func TestCapabilities(t *testing.T) {
	_, ok := PayerOf(&OpenNode{})
	assert.False(t, ok, "opennode cannot pay invoices")
	_, ok = QuerierOf(&OpenNode{})
	assert.True(t, ok)

	_, ok = DecoderOf(&OpenNode{})
	assert.False(t, ok)

	_, ok = PayerOf(&LNbits{})
	assert.True(t, ok)
	_, ok = DecoderOf(&LNbits{})
	assert.True(t, ok)

	lnbitsSandbox, err := New("lnbits", true)
	require.NoError(t, err)
	_, ok = PayerOf(lnbitsSandbox)
	assert.True(t, ok)
	_, ok = DecoderOf(lnbitsSandbox)
	assert.True(t, ok)

	openNodeSandbox, err := New("opennode", true)
	require.NoError(t, err)
	_, ok = PayerOf(openNodeSandbox)
	assert.False(t, ok)
	_, ok = QuerierOf(openNodeSandbox)
	assert.True(t, ok)

	_, err = New("stripe", false)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestSandboxDeterministic(t *testing.T) {
	a := NewSandbox("lnbits")
	b := NewSandbox("lnbits")
	ctx := context.Background()

	ca, err := a.CreateCharge(ctx, 100, "x", nil)
	require.NoError(t, err)
	cb, err := b.CreateCharge(ctx, 100, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, ca.ID, cb.ID)
	assert.Equal(t, ca.Invoice, cb.Invoice)

	next, err := a.CreateCharge(ctx, 100, "x", nil)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, next.ID, "sequence makes repeated charges distinct")

	st, err := a.GetCharge(ctx, ca.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", st.Status)

	require.NoError(t, a.MarkPaid(ca.ID))
	st, err = a.GetCharge(ctx, ca.ID)
	require.NoError(t, err)
	assert.Equal(t, "PAID", st.Status)

	_, err = a.GetCharge(ctx, "missing")
	assert.Error(t, err)

	sb, ok := SandboxOf(&PayingSandbox{Sandbox: a})
	require.True(t, ok)
	assert.Same(t, a, sb)
}
