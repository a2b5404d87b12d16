package agent

import "github.com/michibiki-ai/michibiki/internal/llm"

// Response schemas for the three stages. These are the provider-facing
// contracts; the validate methods on the output structs enforce the parts a
// schema cannot express (ranges, cross-field rules).

func signalSchema() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"name":        {Type: "string"},
			"value":       {Type: "number"},
			"description": {Type: "string"},
		},
		Required: []string{"name", "value", "description"},
	}
}

func analysisSchema() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"root_cause": {
				Type: "string",
				Enum: []string{"competitive_pressure", "creative_fatigue", "audience_saturation", "compound", "none"},
			},
			"confidence":           {Type: "number", Description: "Diagnosis confidence in [0, 1]."},
			"primary_signals":      {Type: "array", Items: signalSchema()},
			"secondary_signals":    {Type: "array", Items: signalSchema()},
			"key_observation":      {Type: "string"},
			"correlation":          {Type: "string"},
			"supporting_evidence":  {Type: "array", Items: &llm.Schema{Type: "string"}},
			"alternate_hypotheses": {Type: "array", Items: &llm.Schema{Type: "string"}},
		},
		Required: []string{"root_cause", "confidence", "primary_signals", "key_observation"},
	}
}

func recommendationSchema() *llm.Schema {
	workflowEnum := []string{
		"BID_ADJUSTMENT", "CREATIVE_REFRESH", "AUDIENCE_EXPANSION",
		"BUDGET_REALLOCATION", "PAUSE_CAMPAIGN", "CONTINUE_MONITORING",
	}
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"workflow":         {Type: "string", Enum: workflowEnum},
			"confidence":       {Type: "number", Description: "Recommendation confidence in [0, 1]."},
			"risk":             {Type: "string", Enum: []string{"low", "medium", "high"}},
			"reasoning":        {Type: "string"},
			"specific_actions": {Type: "array", Items: &llm.Schema{Type: "string"}},
			"expected_impact":  {Type: "string"},
			"timeline":         {Type: "string"},
			"success_criteria": {Type: "array", Items: &llm.Schema{Type: "string"}},
			"alternatives": {
				Type: "array",
				Items: &llm.Schema{
					Type: "object",
					Properties: map[string]*llm.Schema{
						"workflow":         {Type: "string", Enum: workflowEnum},
						"confidence":       {Type: "number"},
						"rejection_reason": {Type: "string"},
					},
					Required: []string{"workflow", "rejection_reason"},
				},
			},
		},
		Required: []string{"workflow", "confidence", "risk", "reasoning", "specific_actions"},
	}
}

func critiqueSchema() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"verdict": {Type: "string", Enum: []string{"pass", "fail"}},
			"issues":  {Type: "array", Items: &llm.Schema{Type: "string"}},
		},
		Required: []string{"verdict", "issues"},
	}
}
