package quota

import "github.com/mivahub/mivahub-backend/pkg/enums"

// Usage types tracked by the quota store.
const (
	UsageUploads          = "uploads"
	UsageAIMessages       = "ai_messages_per_day"
	UsageMaterialSearches = "material_searches_per_day"
	UsageQuizzes          = "quizzes_per_week"
	UsageFlashcardSets    = "flashcard_sets_per_week"
	UsagePracticeProblems = "practice_problems_per_week"
	UsageExams            = "exams_per_month"
	UsageStudyGuides      = "study_guides_per_week"
)

// Rule binds an action to the counter it draws from.
type Rule struct {
	UsageType  string           `json:"usage_type"`
	PeriodType enums.PeriodType `json:"period_type"`
}

var actionRules = map[string]Rule{
	"upload_material": {UsageUploads, enums.PeriodDaily},

	"ask_study_question":     {UsageAIMessages, enums.PeriodDaily},
	"explain_concept_deeply": {UsageAIMessages, enums.PeriodDaily},
	"compare_concepts":       {UsageAIMessages, enums.PeriodDaily},
	"get_learning_path":      {UsageAIMessages, enums.PeriodDaily},

	"search_course_content": {UsageMaterialSearches, enums.PeriodDaily},
	"summarize_material":    {UsageMaterialSearches, enums.PeriodDaily},

	"generate_quiz":               {UsageQuizzes, enums.PeriodWeekly},
	"create_flashcards":           {UsageFlashcardSets, enums.PeriodWeekly},
	"convert_notes_to_flashcards": {UsageFlashcardSets, enums.PeriodWeekly},
	"generate_practice_problems":  {UsagePracticeProblems, enums.PeriodWeekly},
	"generate_study_guide":        {UsageStudyGuides, enums.PeriodWeekly},

	"generate_exam_simulator": {UsageExams, enums.PeriodMonthly},
	"submit_exam_answers":     {UsageExams, enums.PeriodMonthly},
}

// RuleForAction returns the counter an action draws from. Actions without a
// rule (course browsing and the like) are not metered.
func RuleForAction(action string) (Rule, bool) {
	rule, ok := actionRules[action]
	return rule, ok
}

// TrackedRules lists every distinct counter the catalog references, in a
// stable order.
func TrackedRules() []Rule {
	return []Rule{
		{UsageUploads, enums.PeriodDaily},
		{UsageAIMessages, enums.PeriodDaily},
		{UsageMaterialSearches, enums.PeriodDaily},
		{UsageQuizzes, enums.PeriodWeekly},
		{UsageFlashcardSets, enums.PeriodWeekly},
		{UsagePracticeProblems, enums.PeriodWeekly},
		{UsageStudyGuides, enums.PeriodWeekly},
		{UsageExams, enums.PeriodMonthly},
	}
}
