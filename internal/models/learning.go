package models

// LessonStatus is the display state of a lesson
type LessonStatus string

const (
	LessonLocked     LessonStatus = "locked"
	LessonInProgress LessonStatus = "in_progress"
	LessonCompleted  LessonStatus = "completed"
)

// LessonCompletion is a child's raw completion record for one lesson.
// The zero value means "not completed, 0% progress".
type LessonCompletion struct {
	LessonID        string `json:"lessonId"`
	Completed       bool   `json:"completed"`
	ProgressPercent int    `json:"progress"`
}

// Lesson is one entry in a module's ordered sequence
type Lesson struct {
	ID       string       `json:"id"`
	ModuleID string       `json:"moduleId"`
	Position int          `json:"position"`
	Title    string       `json:"title"`
	Icon     string       `json:"icon"`
	Status   LessonStatus `json:"status,omitempty"`
	Progress int          `json:"progress"`
}

// Module is an ordered group of lessons for one subject and grade.
// CompletedLessons and TotalLessons are derived, never stored.
type Module struct {
	ID               string   `json:"id"`
	Subject          Subject  `json:"subject"`
	Grade            int      `json:"grade"`
	Position         int      `json:"position"`
	Title            string   `json:"title"`
	Icon             string   `json:"icon"`
	Lessons          []Lesson `json:"lessons"`
	CompletedLessons int      `json:"completedLessons"`
	TotalLessons     int      `json:"totalLessons"`
	ProgressPercent  int      `json:"progressPercent"`
}

// SubjectOverview is the module list for one subject with its rollup
type SubjectOverview struct {
	Subject         Subject  `json:"subject"`
	Grade           int      `json:"grade"`
	Modules         []Module `json:"modules"`
	ProgressPercent int      `json:"overallProgress"`
}
