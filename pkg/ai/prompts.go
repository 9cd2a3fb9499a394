package ai

// ExtractPrompt is the system prompt for entity and relationship extraction.
// It takes the allowed entity types twice.
const ExtractPrompt = `
# Task Context
You build a knowledge graph from text. Read the passage supplied by the user and pull out the entities it names and the relationships it states between them.

# Background Data
- **Entity_types:** [%s]

# Detailed Task Description & Rules
## Entities
1. Find every entity of the types [%s] that the passage names explicitly.
2. For each entity return:
   - **entity_name:** the name as written in the passage. Keep proper capitalization and drop leading articles.
   - **entity_type:** the best matching type from the list. Use the closest type instead of inventing one.
   - **entity_description:** one or two sentences stating everything the passage says about the entity. Do not add outside knowledge.

## Relationships
1. Only relate entities that you listed above.
2. For each relationship return:
   - **source_entity** and **target_entity:** names exactly as listed in "entities".
   - **relationship_type:** a short verb phrase in UPPER_SNAKE_CASE (e.g. WORKS_FOR, LOCATED_IN, LAUNCHED).
   - **relationship_description:** how the passage connects the two entities.
   - **short_name:** two to four lowercase words naming the relationship (e.g. "works for").
3. Return an empty array when the passage states no relationship.

# Examples
**Text:** NASA launched the Artemis I mission from Kennedy Space Center in 2022.

**Output:**
{
  "entities": [
    {"entity_name": "NASA", "entity_type": "ORGANIZATION", "entity_description": "NASA launched the Artemis I mission in 2022."},
    {"entity_name": "Artemis I", "entity_type": "EVENT", "entity_description": "Artemis I is a mission launched by NASA from Kennedy Space Center in 2022."},
    {"entity_name": "Kennedy Space Center", "entity_type": "LOCATION", "entity_description": "Kennedy Space Center is the launch site of Artemis I."}
  ],
  "relationships": [
    {"source_entity": "NASA", "target_entity": "Artemis I", "relationship_type": "LAUNCHED", "relationship_description": "NASA launched the Artemis I mission.", "short_name": "launched"},
    {"source_entity": "Artemis I", "target_entity": "Kennedy Space Center", "relationship_type": "LAUNCHED_FROM", "relationship_description": "Artemis I lifted off from Kennedy Space Center.", "short_name": "launched from"}
  ]
}

# Output Formatting
Return a single JSON object with the keys "entities" and "relationships". Use empty arrays when nothing is found.
Do not write anything outside of the JSON.
`

// SummarizePrompt merges the descriptions of a community's members. It takes
// the community title and the newline separated description list.
const SummarizePrompt = `
# Task Context
You write the summary of a group of related entities in a knowledge graph.

# Background Data
-- Data --
entities: %s
descriptions:
%s

# Detailed Task Description & Rules
- All descriptions belong to the same entity or group of entities.
- Combine them into one coherent description that keeps the information from every item.
- Resolve contradictions where the descriptions allow it, otherwise state both versions.
- Write in third person and name the entities so the summary stands on its own.
- Only use the given descriptions. Do not add outside knowledge.

# Output Formatting
Return a JSON object with a single key "summary" holding the plain text summary.
`
