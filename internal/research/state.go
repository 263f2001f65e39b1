// Package research runs the conversation-scoped brief pipeline.
package research

import "github.com/ashureev/brieflab/internal/domain"

// Stage names a pipeline state.
type Stage string

const (
	StageInit              Stage = "init"
	StageContextRecall     Stage = "context_recall"
	StageEvidenceRetrieval Stage = "evidence_retrieval"
	StageBriefGeneration   Stage = "brief_generation"
	StagePersisted         Stage = "persisted"
)

// Request is the caller's input to Pipeline.Run.
type Request struct {
	Topic          string `json:"topic"`
	FollowUp       bool   `json:"follow_up"`
	ConversationID string `json:"conversation_id"`
	Owner          string `json:"-"`
	MaxSources     int    `json:"max_sources"`
}

// RequestState is threaded through the stages. Each stage receives the
// previous value and returns a new one; no two requests share a state.
type RequestState struct {
	Topic        string
	FollowUp     bool
	Conversation domain.ConversationKey
	MaxSources   int
	PriorContext string
	Evidence     []domain.Evidence
	Brief        *domain.Brief
}

func newRequestState(req Request) RequestState {
	return RequestState{
		Topic:        req.Topic,
		FollowUp:     req.FollowUp,
		Conversation: domain.ConversationKey{Owner: req.Owner, ID: req.ConversationID},
		MaxSources:   req.MaxSources,
	}
}

// RetrievalQuery is the search query for the state's topic and prior context.
func (s RequestState) RetrievalQuery() string {
	if s.PriorContext == "" {
		return s.Topic
	}
	return s.Topic + " context: " + s.PriorContext
}
