package llm

import (
	"fmt"
)

// DefaultExtractionInputChars is how much document text the extraction prompt carries
const DefaultExtractionInputChars = 4000

const extractionSystem = "You extract compliance structure from policy documents and reply with JSON only."

const answerSystem = "You answer questions using only the supplied knowledge graph context."

// BuildExtractionPrompt asks for the policy_sections/entities/relationships
// JSON for the first maxChars characters of text
func BuildExtractionPrompt(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultExtractionInputChars
	}
	runes := []rune(text)
	if len(runes) > maxChars {
		text = string(runes[:maxChars])
	}

	return fmt.Sprintf(`Analyze this policy document and extract ALL compliance requirements, entities, and relationships.

DOCUMENT:
%s

Return ONLY this JSON format with ALL sections and requirements:
{
  "policy_sections": [
    {
      "id": "section_1",
      "title": "Section Title",
      "content": "Section content summary",
      "requirements": [
        {
          "id": "req_1.1",
          "text": "Full requirement text",
          "full_reference": "Section 1.1",
          "compliance_type": "data_storage|encryption|processing|sharing|audit"
        }
      ]
    }
  ],
  "entities": [
    {
      "id": "entity_1",
      "text": "Entity Name",
      "type": "DATA|SERVER|PERSON|SYSTEM|PROCESS",
      "description": "Entity description"
    }
  ],
  "relationships": [
    {
      "from": "source_id",
      "to": "target_id",
      "relationship": "relationship_type",
      "text": "Relationship description"
    }
  ]
}

IMPORTANT: Extract ALL requirements from ALL sections. Focus on compliance requirements.

Return ONLY the JSON, no other text:`, text)
}

// BuildAnswerPrompt wraps the graph context block and the question
func BuildAnswerPrompt(question, graphContext string) string {
	return fmt.Sprintf(`Based on the following knowledge graph structure, answer the question concisely and accurately.

KNOWLEDGE GRAPH CONTEXT:
%s

QUESTION: %s

Provide a clear answer based only on the information in the knowledge graph context.

ANSWER: `, graphContext, question)
}

// ExtractionRequest builds the completion request for an extraction call
func ExtractionRequest(text string, maxChars, maxTokens int) CompletionRequest {
	return CompletionRequest{
		Prompt:      BuildExtractionPrompt(text, maxChars),
		System:      extractionSystem,
		MaxTokens:   maxTokens,
		Temperature: DefaultTemperature,
		JSON:        true,
	}
}
