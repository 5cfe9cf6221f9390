package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WidgetKind identifies one of the known tool-call variants. Unknown tool
// names are rejected at the boundary rather than carried as loose payloads.
type WidgetKind string

const (
	WidgetBreathingExercise WidgetKind = "breathing_exercise"
	WidgetJournalPrompt     WidgetKind = "journal_prompt"
	WidgetStressGauge       WidgetKind = "stress_gauge"
	WidgetQuickActions      WidgetKind = "quick_actions"
	WidgetScheduleActivity  WidgetKind = "schedule_activity"
)

// WidgetStatus tracks the optimistic-insert lifecycle.
type WidgetStatus string

const (
	// WidgetPending means the widget is shown but not yet persisted.
	WidgetPending WidgetStatus = "pending"
	// WidgetConfirmed means the storage write succeeded.
	WidgetConfirmed WidgetStatus = "confirmed"
	// WidgetFailed means validation or the storage write failed. The widget
	// stays visible with the error attached.
	WidgetFailed WidgetStatus = "failed"
)

// WidgetArgs is implemented by each variant's validated argument struct.
type WidgetArgs interface {
	// Kind returns the variant this argument struct belongs to.
	Kind() WidgetKind
	// Validate rejects malformed arguments before any persistence attempt.
	Validate() error
}

// Widget is one tool-call card in the session.
type Widget struct {
	ID        string       `json:"id"`
	ToolID    string       `json:"tool_id,omitempty"`
	Kind      WidgetKind   `json:"kind"`
	Status    WidgetStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
	Args      WidgetArgs   `json:"args,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// BreathingExerciseArgs configures a guided breathing card.
type BreathingExerciseArgs struct {
	// Technique is e.g. "box" or "4-7-8".
	Technique   string `json:"technique"`
	DurationSec int    `json:"duration_sec"`
}

func (a *BreathingExerciseArgs) Kind() WidgetKind { return WidgetBreathingExercise }

func (a *BreathingExerciseArgs) Validate() error {
	if strings.TrimSpace(a.Technique) == "" {
		return fmt.Errorf("technique is required")
	}
	if a.DurationSec <= 0 || a.DurationSec > 3600 {
		return fmt.Errorf("duration_sec out of range: %d", a.DurationSec)
	}
	return nil
}

// JournalPromptArgs configures a journaling card.
type JournalPromptArgs struct {
	Prompt string `json:"prompt"`
}

func (a *JournalPromptArgs) Kind() WidgetKind { return WidgetJournalPrompt }

func (a *JournalPromptArgs) Validate() error {
	if strings.TrimSpace(a.Prompt) == "" {
		return fmt.Errorf("prompt is required")
	}
	return nil
}

// StressGaugeArgs configures a stress-level readout card.
type StressGaugeArgs struct {
	// Level is one of "low", "moderate", "high".
	Level string  `json:"level"`
	Score float64 `json:"score"`
}

func (a *StressGaugeArgs) Kind() WidgetKind { return WidgetStressGauge }

func (a *StressGaugeArgs) Validate() error {
	switch a.Level {
	case "low", "moderate", "high":
	default:
		return fmt.Errorf("unknown stress level %q", a.Level)
	}
	if a.Score < 0 || a.Score > 1 {
		return fmt.Errorf("score out of range: %v", a.Score)
	}
	return nil
}

// QuickActionsArgs configures a card of tappable follow-up actions.
type QuickActionsArgs struct {
	Actions []string `json:"actions"`
}

func (a *QuickActionsArgs) Kind() WidgetKind { return WidgetQuickActions }

func (a *QuickActionsArgs) Validate() error {
	if len(a.Actions) == 0 {
		return fmt.Errorf("at least one action is required")
	}
	for i, action := range a.Actions {
		if strings.TrimSpace(action) == "" {
			return fmt.Errorf("action %d is empty", i)
		}
	}
	return nil
}

// ScheduleActivityArgs configures a calendar suggestion card.
type ScheduleActivityArgs struct {
	Title string `json:"title"`
	// Date is a calendar date in YYYY-MM-DD form.
	Date string `json:"date"`
	// Time is a wall-clock time in HH:MM form.
	Time string `json:"time"`
}

func (a *ScheduleActivityArgs) Kind() WidgetKind { return WidgetScheduleActivity }

func (a *ScheduleActivityArgs) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if _, err := time.Parse("2006-01-02", a.Date); err != nil {
		return fmt.Errorf("invalid date/time: %q is not a valid date", a.Date)
	}
	if a.Time != "" {
		if _, err := time.Parse("15:04", a.Time); err != nil {
			return fmt.Errorf("invalid date/time: %q is not a valid time", a.Time)
		}
	}
	return nil
}

// When returns the scheduled moment in the given location.
func (a *ScheduleActivityArgs) When(loc *time.Location) (time.Time, error) {
	layout, value := "2006-01-02", a.Date
	if a.Time != "" {
		layout, value = "2006-01-02 15:04", a.Date+" "+a.Time
	}
	return time.ParseInLocation(layout, value, loc)
}

// ParseWidgetArgs decodes and validates a tool call's raw arguments into the
// variant struct for its tool name. A nil error means the arguments are safe
// to act on and persist.
func ParseWidgetArgs(name string, raw json.RawMessage) (WidgetArgs, error) {
	var args WidgetArgs
	switch WidgetKind(name) {
	case WidgetBreathingExercise:
		args = &BreathingExerciseArgs{}
	case WidgetJournalPrompt:
		args = &JournalPromptArgs{}
	case WidgetStressGauge:
		args = &StressGaugeArgs{}
	case WidgetQuickActions:
		args = &QuickActionsArgs{}
	case WidgetScheduleActivity:
		args = &ScheduleActivityArgs{}
	default:
		return nil, fmt.Errorf("unknown tool %q", name)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, args); err != nil {
			return nil, fmt.Errorf("decode %s arguments: %w", name, err)
		}
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}
	return args, nil
}
