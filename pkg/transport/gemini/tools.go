package gemini

import "google.golang.org/genai"

// toolDeclarations describes the widget tool surface exposed to the model.
// The argument schemas mirror the validated variants in pkg/session; the
// model can still send malformed values, so the session re-validates at the
// boundary.
func toolDeclarations() []*genai.Tool {
	return []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "breathing_exercise",
				Description: "Show a guided breathing exercise card.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"technique": {
							Type:        genai.TypeString,
							Description: "Breathing technique, e.g. box or 4-7-8.",
						},
						"duration_sec": {
							Type:        genai.TypeInteger,
							Description: "Exercise length in seconds.",
						},
					},
					Required: []string{"technique", "duration_sec"},
				},
			},
			{
				Name:        "journal_prompt",
				Description: "Show a journaling prompt and save it to the user's journal.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"prompt": {
							Type:        genai.TypeString,
							Description: "The journaling question to pose.",
						},
					},
					Required: []string{"prompt"},
				},
			},
			{
				Name:        "stress_gauge",
				Description: "Show the user's current estimated stress level.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"level": {
							Type: genai.TypeString,
							Enum: []string{"low", "moderate", "high"},
						},
						"score": {
							Type:        genai.TypeNumber,
							Description: "Stress score between 0 and 1.",
						},
					},
					Required: []string{"level", "score"},
				},
			},
			{
				Name:        "quick_actions",
				Description: "Show a set of tappable follow-up actions.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"actions": {
							Type:  genai.TypeArray,
							Items: &genai.Schema{Type: genai.TypeString},
						},
					},
					Required: []string{"actions"},
				},
			},
			{
				Name:        "schedule_activity",
				Description: "Suggest scheduling a wellbeing activity on the user's calendar.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"title": {Type: genai.TypeString},
						"date": {
							Type:        genai.TypeString,
							Description: "Calendar date in YYYY-MM-DD form.",
						},
						"time": {
							Type:        genai.TypeString,
							Description: "Wall-clock time in HH:MM form.",
						},
					},
					Required: []string{"title", "date"},
				},
			},
			{
				Name:        silenceTool,
				Description: "Choose not to reply, leaving space for the user. Use when the user asks for quiet or is mid-thought.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"reason": {
							Type:        genai.TypeString,
							Description: "Why silence was chosen.",
						},
					},
				},
			},
		},
	}}
}
