package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/ManuelReschke/SatsFox/internal/pkg/env"
)

const defaultOpenNodeAPIBaseURL = "https://api.opennode.com"

// OpenNode creates and reads charges through the OpenNode API. It cannot pay
// invoices.
type OpenNode struct {
	APIKey      string
	APIBaseURL  string
	CallbackURL string

	HTTPClient *http.Client
}

type openNodeChargeRequest struct {
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	Description string         `json:"description"`
	CallbackURL string         `json:"callback_url,omitempty"`
	OrderID     string         `json:"order_id,omitempty"`
	AutoSettle  bool           `json:"auto_settle"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type openNodeCharge struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	LightningInvoice struct {
		PayReq string `json:"payreq"`
	} `json:"lightning_invoice"`
}

type openNodeResponse struct {
	Data *openNodeCharge `json:"data"`
}

// NewOpenNodeFromEnv reads OPENNODE_* settings.
func NewOpenNodeFromEnv() *OpenNode {
	callback := strings.TrimSpace(env.GetEnv("OPENNODE_CALLBACK_URL", ""))
	if callback == "" {
		if base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/"); base != "" {
			callback = base + "/api/v1/webhooks/" + models.PaymentProviderOpenNode
		}
	}
	return &OpenNode{
		APIKey:      strings.TrimSpace(env.GetEnv("OPENNODE_API_KEY", "")),
		APIBaseURL:  strings.TrimRight(strings.TrimSpace(env.GetEnv("OPENNODE_API_BASE_URL", defaultOpenNodeAPIBaseURL)), "/"),
		CallbackURL: callback,
		HTTPClient:  newHTTPClient(),
	}
}

func (o *OpenNode) Name() string {
	return models.PaymentProviderOpenNode
}

func (o *OpenNode) client() *http.Client {
	if o.HTTPClient == nil {
		o.HTTPClient = newHTTPClient()
	}
	return o.HTTPClient
}

func (o *OpenNode) CreateCharge(ctx context.Context, amountSats int64, description string, metadata map[string]any) (*Charge, error) {
	if o.APIKey == "" {
		return nil, fmt.Errorf("OPENNODE_API_KEY: %w", ErrNotConfigured)
	}

	req := openNodeChargeRequest{
		Amount:      amountSats,
		Currency:    "BTC",
		Description: description,
		CallbackURL: o.CallbackURL,
		AutoSettle:  false,
		Metadata:    metadata,
	}
	if orderID, ok := metadata["order_id"].(string); ok {
		req.OrderID = orderID
	}

	var out openNodeResponse
	err := doJSON(ctx, o.client(), o.Name(), "create charge", http.MethodPost, o.APIBaseURL+"/v1/charges",
		map[string]string{"Authorization": o.APIKey}, req, &out)
	if err != nil {
		return nil, err
	}
	if out.Data == nil || out.Data.ID == "" || out.Data.LightningInvoice.PayReq == "" {
		return nil, &Error{Provider: o.Name(), Op: "create charge", Err: fmt.Errorf("response missing id or lightning_invoice")}
	}
	return &Charge{ID: out.Data.ID, Invoice: out.Data.LightningInvoice.PayReq, AmountSats: amountSats}, nil
}

func (o *OpenNode) GetCharge(ctx context.Context, ref string) (*ChargeStatus, error) {
	if o.APIKey == "" {
		return nil, fmt.Errorf("OPENNODE_API_KEY: %w", ErrNotConfigured)
	}

	var out openNodeResponse
	err := doJSON(ctx, o.client(), o.Name(), "get charge", http.MethodGet,
		o.APIBaseURL+"/v1/charge/"+url.PathEscape(ref),
		map[string]string{"Authorization": o.APIKey}, nil, &out)
	if err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, &Error{Provider: o.Name(), Op: "get charge", Err: fmt.Errorf("response missing data")}
	}
	return &ChargeStatus{Status: models.NormalizeStatus(out.Data.Status), AmountSats: out.Data.Amount}, nil
}
