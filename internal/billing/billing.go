// Package billing optionally forwards usage records to Stripe metered
// subscription items, so the audit log can drive real invoicing. The
// exporter is wired only when a Stripe key is configured; the cost
// governor never depends on it.
package billing

import (
	"fmt"
	"log"

	stripe "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"

	"design-proxy/pkg/models"
)

// Exporter reports prompt and completion token quantities against two
// metered subscription items.
type Exporter struct {
	api              *client.API
	promptItemID     string
	completionItemID string
}

// NewExporter builds an exporter over the given Stripe API key and the
// subscription items metering prompt and completion tokens.
func NewExporter(apiKey, promptItemID, completionItemID string) (*Exporter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("stripe API key is required")
	}
	if promptItemID == "" || completionItemID == "" {
		return nil, fmt.Errorf("both metered subscription item IDs are required")
	}

	api := &client.API{}
	api.Init(apiKey, nil)

	return &Exporter{
		api:              api,
		promptItemID:     promptItemID,
		completionItemID: completionItemID,
	}, nil
}

// ExportRecord reports one usage record. Token quantities of zero are
// skipped; Stripe rejects empty increments.
func (e *Exporter) ExportRecord(record models.UsageRecord) error {
	timestamp := record.Timestamp.Unix()

	if record.PromptTokens > 0 {
		if err := e.report(e.promptItemID, int64(record.PromptTokens), timestamp); err != nil {
			return fmt.Errorf("report prompt tokens: %w", err)
		}
	}
	if record.CompletionTokens > 0 {
		if err := e.report(e.completionItemID, int64(record.CompletionTokens), timestamp); err != nil {
			return fmt.Errorf("report completion tokens: %w", err)
		}
	}

	log.Printf("exported usage record %s to billing (%d tokens)", record.ID, record.TotalTokens)
	return nil
}

func (e *Exporter) report(itemID string, quantity, timestamp int64) error {
	_, err := e.api.UsageRecords.New(&stripe.UsageRecordParams{
		SubscriptionItem: stripe.String(itemID),
		Quantity:         stripe.Int64(quantity),
		Timestamp:        stripe.Int64(timestamp),
		Action:           stripe.String(stripe.UsageRecordActionIncrement),
	})
	return err
}
