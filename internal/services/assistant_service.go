package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

const maxQuestionLength = 2000

// AssistantModel is the language model behind the assistant. GeminiService implements it.
type AssistantModel interface {
	Ask(ctx context.Context, systemInstruction, question string) (string, error)
	IdentifyCard(ctx context.Context, image []byte, ocrText, knownYear string) (CardIdentity, error)
}

// AssistantService answers collector questions from a snapshot of the user's own data.
type AssistantService struct {
	db         *gorm.DB
	model      AssistantModel
	thresholds CmvStateThresholds
	now        func() time.Time
}

// NewAssistantService creates the assistant
func NewAssistantService(db *gorm.DB, model AssistantModel, th CmvStateThresholds) *AssistantService {
	return &AssistantService{db: db, model: model, thresholds: th, now: time.Now}
}

// Context loads the user's collection, watchlist and recent searches into a snapshot.
func (s *AssistantService) Context(ctx context.Context, userID string) (UserAIContext, error) {
	db := s.db.WithContext(ctx)

	var items []models.CollectionItem
	if err := db.Where("user_id = ?", userID).Find(&items).Error; err != nil {
		return UserAIContext{}, fmt.Errorf("load collection: %w", err)
	}
	var watchlist []models.WatchlistItem
	if err := db.Where("user_id = ?", userID).Find(&watchlist).Error; err != nil {
		return UserAIContext{}, fmt.Errorf("load watchlist: %w", err)
	}
	var searches []models.SearchLog
	err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(aiContextRecentSearches).
		Find(&searches).Error
	if err != nil {
		return UserAIContext{}, fmt.Errorf("load searches: %w", err)
	}

	return BuildUserAIContext(items, watchlist, searches, s.now(), s.thresholds), nil
}

// Ask answers a question about the given snapshot.
func (s *AssistantService) Ask(ctx context.Context, snapshot UserAIContext, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question is required", ErrInvalidRequest)
	}
	if len(question) > maxQuestionLength {
		return "", fmt.Errorf("%w: question longer than %d characters", ErrInvalidRequest, maxQuestionLength)
	}

	system, err := assistantInstruction(snapshot)
	if err != nil {
		return "", err
	}
	answer, err := s.model.Ask(ctx, system, question)
	if err != nil {
		log.Printf("Assistant: model call failed: %v", err)
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// IdentifyCard resolves a card photo to a normalized identity.
func (s *AssistantService) IdentifyCard(ctx context.Context, image []byte, knownYear string) (CardIdentity, error) {
	return s.model.IdentifyCard(ctx, image, "", knownYear)
}

func assistantInstruction(snapshot UserAIContext) (string, error) {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode assistant context: %w", err)
	}

	var b strings.Builder
	b.WriteString(assistantPrompt)
	b.WriteString("\n")
	if snapshot.CollectionEmpty {
		b.WriteString("The user's collection is EMPTY. Say so if asked about their cards.\n")
	}
	if snapshot.WatchlistEmpty {
		b.WriteString("The user's watchlist is EMPTY.\n")
	}
	if snapshot.NoRecentSearches {
		b.WriteString("The user has NO recent searches.\n")
	}
	if snapshot.CardsAwaitingCmv > 0 {
		fmt.Fprintf(&b, "%d card(s) are still waiting for a market value; do not guess their value.\n", snapshot.CardsAwaitingCmv)
	}
	b.WriteString("\nUSER DATA (JSON):\n")
	b.Write(data)
	return b.String(), nil
}

const assistantPrompt = `You are a sports card market assistant inside a collection tracker.

Rules:
- Only discuss cards, prices and searches that appear in USER DATA below.
- Never invent cards, sales, or prices. A null value means unknown.
- Market values (cmv) come from recent sold listings; display_value falls back to cost basis.
- If the data cannot answer the question, say what is missing.
- Keep answers short and concrete. Quote dollar amounts with two decimals.`
