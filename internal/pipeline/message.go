// Package pipeline owns the unit-of-work message union, the stage transition
// policy, and the dispatch of stage-start messages.
package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/storyloom/storyloom/internal/models"
)

// Kind doubles as the asynq task type name.
type Kind string

const (
	KindParseFile       Kind = "pipeline:parse_file"
	KindAnalyzeContent  Kind = "pipeline:analyze_content"
	KindAnalyzeProject  Kind = "pipeline:analyze_project"
	KindCurateProject   Kind = "pipeline:curate_project"
	KindWriteNarrative  Kind = "pipeline:write_narrative"
	KindWriteProject    Kind = "pipeline:write_project"
	KindBuildAndPublish Kind = "pipeline:build_and_publish"
)

// AllKinds is used by the worker to verify every kind has a handler.
var AllKinds = []Kind{
	KindParseFile,
	KindAnalyzeContent,
	KindAnalyzeProject,
	KindCurateProject,
	KindWriteNarrative,
	KindWriteProject,
	KindBuildAndPublish,
}

// Body is the sealed payload union. Variants carry only identifiers; workers
// re-derive everything else from durable storage, since a message may be
// redelivered after the underlying rows changed.
type Body interface {
	Kind() Kind
	Stage() models.Stage
}

type ParseFile struct {
	FileID string `json:"fileId"`
}

type AnalyzeContent struct {
	ContentID string `json:"contentId"`
}

type AnalyzeProject struct{}

type CurateProject struct{}

type WriteNarrative struct {
	ContentID string `json:"contentId"`
}

type WriteProject struct{}

type BuildAndPublish struct{}

func (ParseFile) Kind() Kind       { return KindParseFile }
func (AnalyzeContent) Kind() Kind  { return KindAnalyzeContent }
func (AnalyzeProject) Kind() Kind  { return KindAnalyzeProject }
func (CurateProject) Kind() Kind   { return KindCurateProject }
func (WriteNarrative) Kind() Kind  { return KindWriteNarrative }
func (WriteProject) Kind() Kind    { return KindWriteProject }
func (BuildAndPublish) Kind() Kind { return KindBuildAndPublish }

func (ParseFile) Stage() models.Stage       { return models.StageParse }
func (AnalyzeContent) Stage() models.Stage  { return models.StageAnalyze }
func (AnalyzeProject) Stage() models.Stage  { return models.StageAnalyze }
func (CurateProject) Stage() models.Stage   { return models.StageCurate }
func (WriteNarrative) Stage() models.Stage  { return models.StageWrite }
func (WriteProject) Stage() models.Stage    { return models.StageWrite }
func (BuildAndPublish) Stage() models.Stage { return models.StageBuild }

// Message is one immutable unit of work. Generation tags the project
// generation the message belongs to; workers drop messages from a stale
// generation without touching state.
type Message struct {
	ID         string
	ProjectID  string
	Generation uint64
	EnqueuedAt time.Time
	Body       Body
}

// NewMessage builds an enqueueable message for the given body.
func NewMessage(projectID string, generation uint64, body Body) Message {
	return Message{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		Generation: generation,
		EnqueuedAt: time.Now().UTC(),
		Body:       body,
	}
}

type wireMessage struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	ProjectID  string          `json:"projectId"`
	Generation uint64          `json:"generation"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON flattens the union into a kind-tagged envelope.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Body == nil {
		return nil, fmt.Errorf("message %s has no body", m.ID)
	}
	payload, err := json.Marshal(m.Body)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(wireMessage{
		ID:         m.ID,
		Kind:       m.Body.Kind(),
		ProjectID:  m.ProjectID,
		Generation: m.Generation,
		EnqueuedAt: m.EnqueuedAt,
		Payload:    payload,
	})
}

// UnmarshalJSON rebuilds the proper variant from the kind tag.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	var body Body
	switch w.Kind {
	case KindParseFile:
		body = &ParseFile{}
	case KindAnalyzeContent:
		body = &AnalyzeContent{}
	case KindAnalyzeProject:
		body = &AnalyzeProject{}
	case KindCurateProject:
		body = &CurateProject{}
	case KindWriteNarrative:
		body = &WriteNarrative{}
	case KindWriteProject:
		body = &WriteProject{}
	case KindBuildAndPublish:
		body = &BuildAndPublish{}
	default:
		return fmt.Errorf("unknown message kind %q", w.Kind)
	}
	if len(w.Payload) > 0 {
		if err := json.Unmarshal(w.Payload, body); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", w.Kind, err)
		}
	}

	m.ID = w.ID
	m.ProjectID = w.ProjectID
	m.Generation = w.Generation
	m.EnqueuedAt = w.EnqueuedAt

	switch b := body.(type) {
	case *ParseFile:
		m.Body = *b
	case *AnalyzeContent:
		m.Body = *b
	case *AnalyzeProject:
		m.Body = *b
	case *CurateProject:
		m.Body = *b
	case *WriteNarrative:
		m.Body = *b
	case *WriteProject:
		m.Body = *b
	case *BuildAndPublish:
		m.Body = *b
	}
	return nil
}
