package payments

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
	"github.com/rs/zerolog/log"
)

// omiseAPI is the base URL every charge and source operation targets.
const omiseAPI = "https://api.omise.co"

// OmiseGateway creates a payment source and a charge against it. Sources that
// need user authorization return the gateway's authorize URI as the redirect.
//
// omise.Client keeps its request context on the client itself, so every call
// builds its own client rather than sharing one across requests.
type OmiseGateway struct {
	publicKey   string
	secretKey   string
	apiEndpoint string
	sourceType  string
	returnURL   string
}

type OmiseConfig struct {
	PublicKey  string
	SecretKey  string
	SourceType string
	ReturnURL  string
	// APIEndpoint replaces the gateway base URL when set.
	APIEndpoint string
}

func NewOmiseGateway(cfg OmiseConfig) (*OmiseGateway, error) {
	if _, err := omise.NewClient(cfg.PublicKey, cfg.SecretKey); err != nil {
		return nil, fmt.Errorf("create omise client: %w", err)
	}
	sourceType := cfg.SourceType
	if sourceType == "" {
		sourceType = "promptpay"
	}
	return &OmiseGateway{
		publicKey:   cfg.PublicKey,
		secretKey:   cfg.SecretKey,
		apiEndpoint: strings.TrimRight(cfg.APIEndpoint, "/"),
		sourceType:  sourceType,
		returnURL:   cfg.ReturnURL,
	}, nil
}

func (g *OmiseGateway) newClient(ctx context.Context) (*omise.Client, error) {
	client, err := omise.NewClient(g.publicKey, g.secretKey)
	if err != nil {
		return nil, fmt.Errorf("create omise client: %w", err)
	}
	if g.apiEndpoint != "" {
		client.Endpoints[omiseAPI] = g.apiEndpoint
	}
	client.WithContext(ctx)
	return client, nil
}

func (g *OmiseGateway) CreatePayment(ctx context.Context, req Request) (Session, error) {
	if req.AmountCents <= 0 {
		return Session{}, fmt.Errorf("amount must be positive")
	}
	currency := strings.ToLower(req.Currency)
	client, err := g.newClient(ctx)
	if err != nil {
		return Session{}, err
	}

	source := &omise.Source{}
	if err := client.Do(source, &operations.CreateSource{
		Type:     g.sourceType,
		Amount:   req.AmountCents,
		Currency: currency,
	}); err != nil {
		return Session{}, fmt.Errorf("create omise source: %w", err)
	}

	charge := &omise.Charge{}
	if err := client.Do(charge, &operations.CreateCharge{
		Amount:      req.AmountCents,
		Currency:    currency,
		Source:      source.ID,
		ReturnURI:   g.returnURL,
		Description: req.Description,
		Metadata:    map[string]any{"booking_id": strconv.FormatInt(req.BookingID, 10)},
	}); err != nil {
		return Session{}, fmt.Errorf("create omise charge: %w", err)
	}

	log.Ctx(ctx).Info().
		Int64("booking_id", req.BookingID).
		Str("charge_id", charge.ID).
		Str("charge_status", string(charge.Status)).
		Msg("Created payment charge")

	return Session{ExternalID: charge.ID, RedirectURL: charge.AuthorizeURI}, nil
}

func (g *OmiseGateway) GetPaymentStatus(ctx context.Context, externalID string) (Status, error) {
	client, err := g.newClient(ctx)
	if err != nil {
		return "", err
	}
	charge := &omise.Charge{}
	if err := client.Do(charge, &operations.RetrieveCharge{ChargeID: externalID}); err != nil {
		return "", fmt.Errorf("retrieve omise charge %s: %w", externalID, err)
	}
	return MapChargeStatus(string(charge.Status)), nil
}

// MapChargeStatus folds gateway charge states into the three states the
// booking lifecycle consumes.
func MapChargeStatus(status string) Status {
	switch strings.ToLower(status) {
	case "successful":
		return StatusPaid
	case "failed", "expired", "reversed":
		return StatusFailed
	default:
		return StatusPending
	}
}
