package common

import "fmt"

// MutationKind tags the variant held by a Mutation.
type MutationKind int

const (
	MutationVertexUpsert MutationKind = iota
	MutationEdgeUpsert
	MutationRemoval
	MutationMarkProcessed
)

func (k MutationKind) String() string {
	switch k {
	case MutationVertexUpsert:
		return "vertex_upsert"
	case MutationEdgeUpsert:
		return "edge_upsert"
	case MutationRemoval:
		return "removal"
	case MutationMarkProcessed:
		return "mark_processed"
	}
	return fmt.Sprintf("mutation(%d)", int(k))
}

// Mutation is one graph write queued for the upsert stage. Which fields are
// meaningful depends on Kind:
//
//	VertexUpsert   VertexType, ID, Attributes
//	EdgeUpsert     VertexType, ID (source), Edge, TargetType, TargetID, Attributes
//	Removal        VertexType, ID
//	MarkProcessed  VertexType, IDs
//
// OnApplied, when set, is called once with the store's result.
type Mutation struct {
	Kind       MutationKind
	VertexType VertexType
	ID         string
	Attributes Attributes

	Edge       EdgeType
	TargetType VertexType
	TargetID   string

	IDs []string

	OnApplied func(error)
}

func VertexUpsert(vtype VertexType, id string, attrs Attributes) Mutation {
	return Mutation{Kind: MutationVertexUpsert, VertexType: vtype, ID: id, Attributes: attrs}
}

func EdgeUpsert(srcType VertexType, srcID string, edge EdgeType, tgtType VertexType, tgtID string, attrs Attributes) Mutation {
	return Mutation{
		Kind:       MutationEdgeUpsert,
		VertexType: srcType,
		ID:         srcID,
		Edge:       edge,
		TargetType: tgtType,
		TargetID:   tgtID,
		Attributes: attrs,
	}
}

func Removal(vtype VertexType, id string) Mutation {
	return Mutation{Kind: MutationRemoval, VertexType: vtype, ID: id}
}

func MarkProcessed(vtype VertexType, ids ...string) Mutation {
	return Mutation{Kind: MutationMarkProcessed, VertexType: vtype, IDs: ids}
}

// Subject names the mutation target for logs and failure reports.
func (m Mutation) Subject() string {
	switch m.Kind {
	case MutationEdgeUpsert:
		return fmt.Sprintf("%s:%s-%s->%s:%s", m.VertexType, m.ID, m.Edge, m.TargetType, m.TargetID)
	case MutationMarkProcessed:
		return fmt.Sprintf("%s:%v", m.VertexType, m.IDs)
	}
	return fmt.Sprintf("%s:%s", m.VertexType, m.ID)
}
