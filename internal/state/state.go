// Package state holds the durable registry of projects, runs, tasks, and
// inbox items, and the atomic persistence protocol for it.
package state

import "time"

// ProjectStatus is the lifecycle state of a registered project.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
)

// Project is a registered repository the harness supervises runs for.
type Project struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	RepoPath      string        `json:"repo_path"`
	Status        ProjectStatus `json:"status"`
	LastTouchedAt time.Time     `json:"last_touched_at"`
}

// RunState is the registry's view of a run.
type RunState string

const (
	RunCreated  RunState = "created"
	RunRunning  RunState = "running"
	RunFinished RunState = "finished"
	// RunParked means the run's worktree disappeared; the run stays parked
	// until reconciliation or cleanup resolves it.
	RunParked  RunState = "parked"
	RunMissing RunState = "missing"
)

// Run is one isolated unit of agent work: a worktree plus a branch.
type Run struct {
	ID           string    `json:"id"`
	RunName      string    `json:"run_name"`
	ProjectID    string    `json:"project_id"`
	WorktreePath string    `json:"worktree_path"`
	BranchName   string    `json:"branch_name"`
	State        RunState  `json:"state"`
	LastCommand  string    `json:"last_command,omitempty"`
	LastResult   string    `json:"last_result,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Task is a registry-level task, typically created by promoting an inbox
// item. Everything except Passes is frozen at creation, so Description and
// AcceptanceCriteria must be populated then.
type Task struct {
	ID                 string    `json:"id"`
	ProjectID          string    `json:"project_id"`
	Title              string    `json:"title"`
	Category           string    `json:"category"`
	Description        string    `json:"description"`
	AcceptanceCriteria []string  `json:"acceptance_criteria"`
	Passes             bool      `json:"passes"`
	CreatedAt          time.Time `json:"created_at"`
}

// TriageStatus is the triage decision on an inbox item.
type TriageStatus string

const (
	TriageNone      TriageStatus = ""
	TriagePromoted  TriageStatus = "promoted"
	TriageDismissed TriageStatus = "dismissed"
)

// InboxItem is a captured thought awaiting triage. Dismissed items stay in
// the registry for log visibility.
type InboxItem struct {
	ID           string       `json:"id"`
	Text         string       `json:"text"`
	CreatedAt    time.Time    `json:"created_at"`
	TriageStatus TriageStatus `json:"triage_status,omitempty"`
}

// State is the full registry document.
type State struct {
	Projects       []Project   `json:"projects"`
	Runs           []Run       `json:"runs"`
	Tasks          []Task      `json:"tasks"`
	Inbox          []InboxItem `json:"inbox"`
	FocusProjectID string      `json:"focus_project_id,omitempty"`
}

// Empty returns a fresh State with no entries.
func Empty() *State {
	return &State{}
}

// ProjectByID returns the project with the given id, or nil.
func (s *State) ProjectByID(id string) *Project {
	for i := range s.Projects {
		if s.Projects[i].ID == id {
			return &s.Projects[i]
		}
	}
	return nil
}

// ProjectByName returns the project with the given name, or nil.
func (s *State) ProjectByName(name string) *Project {
	for i := range s.Projects {
		if s.Projects[i].Name == name {
			return &s.Projects[i]
		}
	}
	return nil
}

// ProjectByRepoPath returns the project registered at repoPath, or nil.
func (s *State) ProjectByRepoPath(repoPath string) *Project {
	for i := range s.Projects {
		if s.Projects[i].RepoPath == repoPath {
			return &s.Projects[i]
		}
	}
	return nil
}

// FocusProject returns the focus project, or nil if none is set.
func (s *State) FocusProject() *Project {
	if s.FocusProjectID == "" {
		return nil
	}
	return s.ProjectByID(s.FocusProjectID)
}

// RunByName returns the run with the given name, or nil. Run names are
// unique per project; when projectID is empty the first match wins.
func (s *State) RunByName(projectID, runName string) *Run {
	for i := range s.Runs {
		if s.Runs[i].RunName != runName {
			continue
		}
		if projectID == "" || s.Runs[i].ProjectID == projectID {
			return &s.Runs[i]
		}
	}
	return nil
}

// RunsForProject returns the runs belonging to a project, registry order.
func (s *State) RunsForProject(projectID string) []Run {
	var runs []Run
	for _, r := range s.Runs {
		if r.ProjectID == projectID {
			runs = append(runs, r)
		}
	}
	return runs
}

// RemoveRun deletes a run from the registry by id. Returns true if removed.
func (s *State) RemoveRun(id string) bool {
	for i := range s.Runs {
		if s.Runs[i].ID == id {
			s.Runs = append(s.Runs[:i], s.Runs[i+1:]...)
			return true
		}
	}
	return false
}

// InboxItemByID returns the inbox item with the given id, or nil.
func (s *State) InboxItemByID(id string) *InboxItem {
	for i := range s.Inbox {
		if s.Inbox[i].ID == id {
			return &s.Inbox[i]
		}
	}
	return nil
}
