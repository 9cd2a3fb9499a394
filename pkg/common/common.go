// Package common holds the vertex, edge and job types shared by the pipeline,
// the stores and the AI services.
package common

import (
	"fmt"
	"slices"
)

// VertexType names a vertex collection in the graph. The same names are used
// for vector indexes, so an embedding of an Entity lives in the "Entity" index.
type VertexType string

const (
	VertexDocument       VertexType = "Document"
	VertexContent        VertexType = "Content"
	VertexChunk          VertexType = "DocumentChunk"
	VertexEntity         VertexType = "Entity"
	VertexEntityType     VertexType = "EntityType"
	VertexResolvedEntity VertexType = "ResolvedEntity"
	VertexRelationship   VertexType = "Relationship"
	VertexCommunity      VertexType = "Community"
)

// VertexTypes lists every vertex type in reporting order.
var VertexTypes = []VertexType{
	VertexDocument,
	VertexContent,
	VertexChunk,
	VertexEntity,
	VertexEntityType,
	VertexResolvedEntity,
	VertexRelationship,
	VertexCommunity,
}

// EmbeddedTypes are the vertex types that carry an embedding index.
var EmbeddedTypes = []VertexType{
	VertexDocument,
	VertexChunk,
	VertexEntity,
	VertexRelationship,
	VertexCommunity,
}

func (t VertexType) Valid() bool { return slices.Contains(VertexTypes, t) }

type EdgeType string

const (
	EdgeHasChild             EdgeType = "HAS_CHILD"
	EdgeHasContent           EdgeType = "HAS_CONTENT"
	EdgeIsAfter              EdgeType = "IS_AFTER"
	EdgeContainsEntity       EdgeType = "CONTAINS_ENTITY"
	EdgeIsHeadOf             EdgeType = "IS_HEAD_OF"
	EdgeHasTail              EdgeType = "HAS_TAIL"
	EdgeMentionsRelationship EdgeType = "MENTIONS_RELATIONSHIP"
	EdgeRelationship         EdgeType = "RELATIONSHIP"
	EdgeResolvesTo           EdgeType = "RESOLVES_TO"
	EdgeEntityHasType        EdgeType = "ENTITY_HAS_TYPE"
	EdgeInCommunity          EdgeType = "IN_COMMUNITY"
)

// CooccurrenceRelation is the relation_type of RELATIONSHIP edges between
// entities extracted from the same chunk.
const CooccurrenceRelation = "DOC_CHUNK_COOCCURRENCE"

// Attribute keys used across stores.
const (
	AttrDescription  = "description"
	AttrIteration    = "iteration"
	AttrIndex        = "idx"
	AttrText         = "text"
	AttrCType        = "ctype"
	AttrRelationType = "relation_type"
	AttrShortName    = "short_name"
	AttrEntityType   = "entity_type"
)

// Attributes is the attribute map of a vertex or edge. Values must be JSON
// encodable.
type Attributes map[string]any

// Strings reads key as a list of strings. A single string becomes a
// one-element list.
func (a Attributes) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

func (a Attributes) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
	return ""
}

// Int reads numeric attributes regardless of whether they came back from
// JSON (float64) or were set in process (int).
func (a Attributes) Int(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	}
	return 0
}

type Vertex struct {
	Type       VertexType `json:"type"`
	ID         string     `json:"id"`
	Attributes Attributes `json:"attributes"`
	Processed  bool       `json:"processed"`
}

// Content is the raw text of a Document or chunk. CType optionally names the
// chunker that should split it.
type Content struct {
	Text  string `json:"text"`
	CType string `json:"ctype,omitempty"`
}

// Document is one unit of work for the chunk stage.
type Document struct {
	ID    string
	Text  string
	CType string
}

// EmbedJob asks the embed stage to embed Text and store it under ID in Index.
type EmbedJob struct {
	ID    string
	Text  string
	Index VertexType
}

// ExtractJob asks the extract stage to pull entities out of Text, linking
// them to the vertex SourceID.
type ExtractJob struct {
	Text       string
	SourceID   string
	SourceType VertexType
}

type ExtractedEntity struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type ExtractedRelationship struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Type        string `json:"type"`
	Description string `json:"description"`
	ShortName   string `json:"short_name"`
}

type Extraction struct {
	Entities      []ExtractedEntity
	Relationships []ExtractedRelationship
}

func (e Extraction) Empty() bool {
	return len(e.Entities) == 0 && len(e.Relationships) == 0
}

// RelationshipID is the id of the vertex that reifies a relationship.
func RelationshipID(source, relType, target string) string {
	return source + ":" + relType + ":" + target
}

// ChunkID is the deterministic id of the n-th chunk of a document.
func ChunkID(docID string, n int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, n)
}

// Step names a derived part of a sync pass that has to complete once the
// data it depends on changed. Pending steps are retried on later passes.
type Step string

const (
	StepResolvedRelationships Step = "resolved_relationships"
	StepCommunities           Step = "communities"
)

// ClusteringParams parameterizes one clustering pass. Iteration 1 clusters
// resolved entities; iteration i>1 clusters the communities of layer i-1.
type ClusteringParams struct {
	Iteration  int
	Resolution float64
}

type VertexStatus struct {
	Type        VertexType `json:"type"`
	Total       int64      `json:"total"`
	Processed   int64      `json:"processed"`
	Unprocessed int64      `json:"unprocessed"`
}

// VectorEntry is one stored embedding. PK is unique per entry, VertexID is
// not: duplicate entries for one vertex are what the cleanup pass removes.
type VectorEntry struct {
	PK       int64
	VertexID string
}

// VectorFilter selects embeddings for removal. Entries matching either list
// are removed.
type VectorFilter struct {
	VertexIDs []string
	PKs       []int64
}

func (f VectorFilter) Empty() bool {
	return len(f.VertexIDs) == 0 && len(f.PKs) == 0
}

// Scanned reports whether the consistency driver looks for unprocessed
// vertices of this type. Vertices of every other type are created processed.
func (t VertexType) Scanned() bool {
	return t == VertexDocument || t == VertexEntity
}
