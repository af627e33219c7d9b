package catalog

import "strings"

// TriviaQuestion is static quiz content.
type TriviaQuestion struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"-"`
	Explanation   string   `json:"-"`
	Category      string   `json:"category"`
	Difficulty    string   `json:"difficulty"`
	AgeGroup      string   `json:"age_group"`
	Gems          int      `json:"gem_reward"`
}

// TriviaFilter narrows question selection. Empty fields match everything.
type TriviaFilter struct {
	Difficulty string
	Category   string
	AgeGroup   string
}

// Matches reports whether q passes the filter. Comparison is case-insensitive;
// questions tagged for age group "all" match every age group.
func (f TriviaFilter) Matches(q TriviaQuestion) bool {
	if f.Difficulty != "" && !strings.EqualFold(f.Difficulty, q.Difficulty) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(f.Category, q.Category) {
		return false
	}
	if f.AgeGroup != "" && q.AgeGroup != "all" && !strings.EqualFold(f.AgeGroup, q.AgeGroup) {
		return false
	}
	return true
}

// Questions returns every question passing the filter, in bank order.
func Questions(filter TriviaFilter) []TriviaQuestion {
	out := make([]TriviaQuestion, 0, len(triviaBank))
	for _, q := range triviaBank {
		if filter.Matches(q) {
			out = append(out, q.clone())
		}
	}
	return out
}

// LookupQuestion finds a question by id.
func LookupQuestion(id string) (TriviaQuestion, bool) {
	for _, q := range triviaBank {
		if q.ID == id {
			return q.clone(), true
		}
	}
	return TriviaQuestion{}, false
}

func (q TriviaQuestion) clone() TriviaQuestion {
	q.Options = append([]string(nil), q.Options...)
	return q
}

var triviaBank = []TriviaQuestion{
	{
		ID: "tq-001", Prompt: "How many minutes of moderate activity per week do health guidelines recommend for adults?",
		Options: []string{"60", "90", "150", "300"}, CorrectOption: 2,
		Explanation: "Most guidelines recommend at least 150 minutes of moderate aerobic activity each week.",
		Category:    "exercise", Difficulty: "easy", AgeGroup: "adult", Gems: 10,
	},
	{
		ID: "tq-002", Prompt: "Which macronutrient is the body's main building block for muscle repair?",
		Options: []string{"Carbohydrates", "Protein", "Fat", "Fibre"}, CorrectOption: 1,
		Explanation: "Protein supplies the amino acids used to repair and build muscle tissue.",
		Category:    "nutrition", Difficulty: "easy", AgeGroup: "all", Gems: 10,
	},
	{
		ID: "tq-003", Prompt: "Roughly what share of an adult's body weight is water?",
		Options: []string{"About 30%", "About 45%", "About 60%", "About 80%"}, CorrectOption: 2,
		Explanation: "Water makes up around 60% of an adult's body weight.",
		Category:    "hydration", Difficulty: "easy", AgeGroup: "all", Gems: 10,
	},
	{
		ID: "tq-004", Prompt: "Which muscle group do squats primarily target?",
		Options: []string{"Biceps", "Quadriceps and glutes", "Deltoids", "Forearms"}, CorrectOption: 1,
		Explanation: "Squats load the quadriceps and glutes the most, with hamstrings assisting.",
		Category:    "exercise", Difficulty: "easy", AgeGroup: "all", Gems: 10,
	},
	{
		ID: "tq-005", Prompt: "How many hours of sleep per night are recommended for most teenagers?",
		Options: []string{"5-6", "6-7", "8-10", "11-12"}, CorrectOption: 2,
		Explanation: "Teenagers need about 8 to 10 hours of sleep for recovery and growth.",
		Category:    "recovery", Difficulty: "medium", AgeGroup: "teen", Gems: 15,
	},
	{
		ID: "tq-006", Prompt: "What does HIIT stand for?",
		Options: []string{"High Intensity Interval Training", "Heavy Isometric Isolation Training", "Heart Intensity Index Test", "High Impact Insulin Training"}, CorrectOption: 0,
		Explanation: "HIIT alternates short bursts of intense work with recovery periods.",
		Category:    "exercise", Difficulty: "easy", AgeGroup: "all", Gems: 10,
	},
	{
		ID: "tq-007", Prompt: "How many calories does one gram of fat provide?",
		Options: []string{"4", "7", "9", "12"}, CorrectOption: 2,
		Explanation: "Fat provides about 9 kcal per gram, more than twice protein or carbohydrate.",
		Category:    "nutrition", Difficulty: "medium", AgeGroup: "all", Gems: 15,
	},
	{
		ID: "tq-008", Prompt: "Which energy system powers an all-out 10 second sprint?",
		Options: []string{"Aerobic", "Phosphagen (ATP-PC)", "Ketone", "Lactic only"}, CorrectOption: 1,
		Explanation: "Stored ATP and creatine phosphate fuel maximal efforts of roughly 10 seconds.",
		Category:    "science", Difficulty: "hard", AgeGroup: "adult", Gems: 20,
	},
	{
		ID: "tq-009", Prompt: "What is a safe resting heart rate range for most adults?",
		Options: []string{"30-50 bpm", "60-100 bpm", "110-130 bpm", "140-160 bpm"}, CorrectOption: 1,
		Explanation: "A resting heart rate between 60 and 100 bpm is considered normal for adults.",
		Category:    "science", Difficulty: "medium", AgeGroup: "adult", Gems: 15,
	},
	{
		ID: "tq-010", Prompt: "Which vitamin does your skin produce when exposed to sunlight?",
		Options: []string{"Vitamin A", "Vitamin C", "Vitamin D", "Vitamin K"}, CorrectOption: 2,
		Explanation: "UVB exposure lets the skin synthesise vitamin D.",
		Category:    "nutrition", Difficulty: "easy", AgeGroup: "all", Gems: 10,
	},
	{
		ID: "tq-011", Prompt: "Delayed onset muscle soreness usually peaks how long after a workout?",
		Options: []string{"1-2 hours", "6-8 hours", "24-72 hours", "5-7 days"}, CorrectOption: 2,
		Explanation: "DOMS typically peaks between one and three days after unfamiliar exercise.",
		Category:    "recovery", Difficulty: "medium", AgeGroup: "all", Gems: 15,
	},
	{
		ID: "tq-012", Prompt: "What is the term for the muscle lengthening phase of a rep?",
		Options: []string{"Concentric", "Isometric", "Eccentric", "Plyometric"}, CorrectOption: 2,
		Explanation: "The eccentric phase is when the muscle lengthens under load, like lowering into a squat.",
		Category:    "science", Difficulty: "hard", AgeGroup: "all", Gems: 20,
	},
	{
		ID: "tq-013", Prompt: "How much water should kids aim to drink during an hour of active play?",
		Options: []string{"None until it ends", "Small sips every 15-20 minutes", "One large bottle at the start", "Only sports drinks"}, CorrectOption: 1,
		Explanation: "Regular small drinks keep kids hydrated without upsetting their stomach.",
		Category:    "hydration", Difficulty: "easy", AgeGroup: "kids", Gems: 10,
	},
	{
		ID: "tq-014", Prompt: "VO2 max measures which capacity?",
		Options: []string{"Maximum muscle strength", "Maximum oxygen uptake", "Maximum heart rate", "Maximum lung volume"}, CorrectOption: 1,
		Explanation: "VO2 max is the highest rate at which the body can take in and use oxygen.",
		Category:    "science", Difficulty: "hard", AgeGroup: "adult", Gems: 20,
	},
	{
		ID: "tq-015", Prompt: "Which is the best choice for a pre-workout snack about an hour before training?",
		Options: []string{"A large fried meal", "A banana with yoghurt", "Nothing but coffee", "A bag of crisps"}, CorrectOption: 1,
		Explanation: "Easily digested carbohydrate with a little protein fuels training without discomfort.",
		Category:    "nutrition", Difficulty: "medium", AgeGroup: "all", Gems: 15,
	},
}
