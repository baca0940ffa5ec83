package http

import (
	"time"

	"github.com/morebnyemba/smart-contracts-escrow/internal/domain"
	"github.com/morebnyemba/smart-contracts-escrow/internal/notification"
)

// Money renders as a decimal string with two places everywhere; floats never
// cross the API boundary.

type createTransactionRequest struct {
	SellerID    string                   `json:"seller_id"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Milestones  []createMilestoneRequest `json:"milestones"`
}

type createMilestoneRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Value       string `json:"value"`
}

type fundRequest struct {
	Amount string `json:"amount"`
}

type submitWorkRequest struct {
	SubmissionDetails string `json:"submission_details"`
}

type requestRevisionRequest struct {
	Reason string `json:"reason"`
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

type ledgerResponse struct {
	Held      string `json:"held"`
	Released  string `json:"released"`
	Refunded  string `json:"refunded"`
	Available string `json:"available"`
}

type milestoneResponse struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Value             string `json:"value"`
	Status            string `json:"status"`
	SubmissionDetails string `json:"submission_details"`
	RevisionReason    string `json:"revision_reason"`
	Position          int    `json:"position"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

type transactionResponse struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	BuyerID     string              `json:"buyer_id"`
	SellerID    string              `json:"seller_id"`
	TotalValue  string              `json:"total_value"`
	Status      string              `json:"status"`
	Ledger      ledgerResponse      `json:"ledger"`
	Milestones  []milestoneResponse `json:"milestones"`
	CreatedAt   string              `json:"created_at"`
	UpdatedAt   string              `json:"updated_at"`
}

type listResponse[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

type notificationResponse struct {
	ID               string  `json:"id"`
	NotificationType string  `json:"notification_type"`
	Message          string  `json:"message"`
	Transaction      string  `json:"transaction"`
	Milestone        *string `json:"milestone"`
	IsRead           bool    `json:"is_read"`
	CreatedAt        string  `json:"created_at"`
}

type unreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

type markAllReadResponse struct {
	Updated int `json:"updated"`
}

func toTransactionResponse(t *domain.Transaction) transactionResponse {
	milestones := make([]milestoneResponse, 0, len(t.Milestones))

	for _, m := range t.Milestones {
		milestones = append(milestones, milestoneResponse{
			ID:                m.ID.String(),
			Title:             m.Title,
			Description:       m.Description,
			Value:             m.Value.StringFixed(2),
			Status:            string(m.Status),
			SubmissionDetails: m.SubmissionDetails,
			RevisionReason:    m.RevisionReason,
			Position:          m.Position,
			CreatedAt:         m.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:         m.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	return transactionResponse{
		ID:          t.ID.String(),
		Title:       t.Title,
		Description: t.Description,
		BuyerID:     t.BuyerID,
		SellerID:    t.SellerID,
		TotalValue:  t.TotalValue.StringFixed(2),
		Status:      string(t.Status()),
		Ledger: ledgerResponse{
			Held:      t.Ledger.Held.StringFixed(2),
			Released:  t.Ledger.Released.StringFixed(2),
			Refunded:  t.Ledger.Refunded.StringFixed(2),
			Available: t.Ledger.Available().StringFixed(2),
		},
		Milestones: milestones,
		CreatedAt:  t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toNotificationResponse(n *notification.Notification) notificationResponse {
	var milestone *string

	if n.MilestoneID != nil {
		s := n.MilestoneID.String()
		milestone = &s
	}

	return notificationResponse{
		ID:               n.ID.String(),
		NotificationType: string(n.Type),
		Message:          n.Message,
		Transaction:      n.TransactionID.String(),
		Milestone:        milestone,
		IsRead:           n.IsRead,
		CreatedAt:        n.CreatedAt.UTC().Format(time.RFC3339),
	}
}
