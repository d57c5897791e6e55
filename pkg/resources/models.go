// Package resources holds the typed resource models and wires one live cache
// per subscribable resource type.
package resources

import "time"

// Label tags tasks inside a workspace.
type Label struct {
	UUID  string `json:"uuid"`
	Name  string `json:"name"`
	Color int    `json:"color"`
}

// TeamMember is a user with a role in a workspace.
type TeamMember struct {
	UUID    string `json:"uuid"`
	Email   string `json:"email"`
	Name    string `json:"preferred_name,omitempty"`
	Role    string `json:"role"`
	Picture string `json:"profile_picture,omitempty"`
}

// ProjectRef is the short form of a project listed in a workspace.
type ProjectRef struct {
	UUID     string     `json:"uuid"`
	Title    string     `json:"title"`
	Archived *time.Time `json:"archived,omitempty"`
}

// Workspace is the top-level container.
type Workspace struct {
	UUID        string       `json:"uuid"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Projects    []ProjectRef `json:"projects"`
	Labels      []Label      `json:"labels"`
	TeamMembers []TeamMember `json:"team_members"`
	Created     time.Time    `json:"created"`
	Modified    time.Time    `json:"modified"`
}

// SubTask is a checklist item of a task.
type SubTask struct {
	UUID  string `json:"uuid"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
	Order int    `json:"_order"`
}

// TaskRef is the short form of a task listed in a section.
type TaskRef struct {
	UUID     string      `json:"uuid"`
	Title    string      `json:"title"`
	Number   int         `json:"number"`
	Assignee *TeamMember `json:"assignee,omitempty"`
	Labels   []Label     `json:"labels"`
}

// Section groups tasks inside a project.
type Section struct {
	UUID  string    `json:"uuid"`
	Title string    `json:"title"`
	Order int       `json:"_order"`
	Tasks []TaskRef `json:"tasks"`
}

// Project holds the sections of one board.
type Project struct {
	UUID        string     `json:"uuid"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Due         *time.Time `json:"due_date,omitempty"`
	Archived    *time.Time `json:"archived,omitempty"`
	Workspace   string     `json:"workspace"`
	Sections    []Section  `json:"sections"`
}

// Task is a card with its sub tasks.
type Task struct {
	UUID        string      `json:"uuid"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Number      int         `json:"number"`
	Due         *time.Time  `json:"due_date,omitempty"`
	Section     string      `json:"section"`
	Assignee    *TeamMember `json:"assignee,omitempty"`
	Labels      []Label     `json:"labels"`
	SubTasks    []SubTask   `json:"sub_tasks"`
}

// Progress returns the share of finished sub tasks, or -1 without any.
func (t Task) Progress() float64 {
	if len(t.SubTasks) == 0 {
		return -1
	}
	done := 0
	for _, st := range t.SubTasks {
		if st.Done {
			done++
		}
	}
	return float64(done) / float64(len(t.SubTasks))
}
