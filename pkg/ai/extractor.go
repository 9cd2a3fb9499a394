package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"
)

// DefaultEntityTypes is used when an Extractor is built without types.
var DefaultEntityTypes = []string{
	"ORGANIZATION", "PERSON", "LOCATION", "CONCEPT", "CREATIVE_WORK", "DATE", "PRODUCT", "EVENT",
}

type extractEntity struct {
	EntityName        string `json:"entity_name" jsonschema_description:"Name of the entity as written in the text"`
	EntityType        string `json:"entity_type" jsonschema_description:"One of the provided entity types"`
	EntityDescription string `json:"entity_description" jsonschema_description:"Everything the text states about the entity"`
}

type extractRelationship struct {
	SourceEntity            string `json:"source_entity" jsonschema_description:"Name of the source entity, as listed in entities"`
	TargetEntity            string `json:"target_entity" jsonschema_description:"Name of the target entity, as listed in entities"`
	RelationshipType        string `json:"relationship_type" jsonschema_description:"Short verb phrase in UPPER_SNAKE_CASE"`
	RelationshipDescription string `json:"relationship_description" jsonschema_description:"How the text connects source and target"`
	ShortName               string `json:"short_name" jsonschema_description:"Two to four lowercase words naming the relationship"`
}

type extractResponse struct {
	Entities      []extractEntity       `json:"entities" jsonschema_description:"Entities identified in the text"`
	Relationships []extractRelationship `json:"relationships" jsonschema_description:"Relationships identified in the text"`
}

// Extractor pulls entities and relationships out of text with a
// schema-constrained completion.
type Extractor struct {
	client       GraphAIClient
	systemPrompt string
	opts         []GenerateOption
}

type NewExtractorParams struct {
	Client      GraphAIClient
	EntityTypes []string
	Options     []GenerateOption
}

func NewExtractor(params NewExtractorParams) *Extractor {
	types := params.EntityTypes
	if len(types) == 0 {
		types = DefaultEntityTypes
	}
	joined := strings.Join(types, ",")
	return &Extractor{
		client:       params.Client,
		systemPrompt: fmt.Sprintf(ExtractPrompt, joined, joined),
		opts:         params.Options,
	}
}

// Extract returns the entities and relationships found in text. Output the
// model got wrong yields an empty Extraction and no error; transport errors
// are returned.
func (e *Extractor) Extract(ctx context.Context, text string) (common.Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return common.Extraction{}, nil
	}

	var res extractResponse
	opts := append([]GenerateOption{WithSystemPrompts(e.systemPrompt)}, e.opts...)
	err := e.client.GenerateCompletionWithFormat(
		ctx,
		"extract_entities_and_relationships",
		"Extract entities and relationships from a passage of text.",
		text,
		&res,
		opts...,
	)
	if err != nil {
		if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrEmptyResponse) {
			logger.Warn("[Extract] Discarding unusable model output", "err", err)
			return common.Extraction{}, nil
		}
		return common.Extraction{}, err
	}

	return toExtraction(res), nil
}

func toExtraction(res extractResponse) common.Extraction {
	out := common.Extraction{
		Entities:      make([]common.ExtractedEntity, 0, len(res.Entities)),
		Relationships: make([]common.ExtractedRelationship, 0, len(res.Relationships)),
	}
	for _, ent := range res.Entities {
		name := strings.TrimSpace(ent.EntityName)
		if name == "" {
			continue
		}
		out.Entities = append(out.Entities, common.ExtractedEntity{
			ID:          name,
			Type:        strings.TrimSpace(ent.EntityType),
			Description: strings.TrimSpace(ent.EntityDescription),
		})
	}
	for _, rel := range res.Relationships {
		src := strings.TrimSpace(rel.SourceEntity)
		tgt := strings.TrimSpace(rel.TargetEntity)
		if src == "" || tgt == "" {
			continue
		}
		out.Relationships = append(out.Relationships, common.ExtractedRelationship{
			Source:      src,
			Target:      tgt,
			Type:        NormalizeRelationType(rel.RelationshipType),
			Description: strings.TrimSpace(rel.RelationshipDescription),
			ShortName:   strings.TrimSpace(rel.ShortName),
		})
	}
	return out
}

// NormalizeRelationType upper-cases t and joins its words with underscores.
// An empty type becomes RELATED_TO.
func NormalizeRelationType(t string) string {
	t = strings.Join(strings.Fields(t), "_")
	if t == "" {
		return "RELATED_TO"
	}
	return strings.ToUpper(t)
}
