package cmd

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/internal/hub"
	"github.com/projectify/live/pkg/protocol"
	"github.com/projectify/live/pkg/resources"
)

// seedDemo stores a small demo workspace with one project and two tasks and
// returns the resources it created.
func seedDemo(h *hub.Hub, now time.Time, logger *logrus.Entry) ([]protocol.Resource, error) {
	wsID, projectID, sectionID := uuid.NewString(), uuid.NewString(), uuid.NewString()
	owner := resources.TeamMember{UUID: uuid.NewString(), Email: "owner@example.com", Name: "Owner", Role: "OWNER"}
	bug := resources.Label{UUID: uuid.NewString(), Name: "bug", Color: 1}

	tasks := []resources.Task{
		{
			UUID: uuid.NewString(), Title: "Wire up live updates", Number: 1, Section: sectionID,
			Assignee: &owner, Labels: []resources.Label{},
			SubTasks: []resources.SubTask{
				{UUID: uuid.NewString(), Title: "Subscribe", Done: true},
				{UUID: uuid.NewString(), Title: "Handle gone", Order: 1},
			},
		},
		{
			UUID: uuid.NewString(), Title: "Fix reconnect flicker", Number: 2, Section: sectionID,
			Labels: []resources.Label{bug}, SubTasks: []resources.SubTask{},
		},
	}
	refs := make([]resources.TaskRef, 0, len(tasks))
	for _, t := range tasks {
		refs = append(refs, resources.TaskRef{UUID: t.UUID, Title: t.Title, Number: t.Number, Assignee: t.Assignee, Labels: t.Labels})
	}

	docs := map[protocol.Resource]interface{}{
		{Type: protocol.ResourceWorkspace, UUID: wsID}: resources.Workspace{
			UUID: wsID, Title: "Demo workspace",
			Projects:    []resources.ProjectRef{{UUID: projectID, Title: "Launch"}},
			Labels:      []resources.Label{bug},
			TeamMembers: []resources.TeamMember{owner},
			Created:     now, Modified: now,
		},
		{Type: protocol.ResourceProject, UUID: projectID}: resources.Project{
			UUID: projectID, Title: "Launch", Workspace: wsID,
			Sections: []resources.Section{{UUID: sectionID, Title: "Doing", Tasks: refs}},
		},
	}
	for _, t := range tasks {
		docs[protocol.Resource{Type: protocol.ResourceTask, UUID: t.UUID}] = t
	}

	created := make([]protocol.Resource, 0, len(docs))
	for res, doc := range docs {
		content, err := json.Marshal(doc)
		if err != nil {
			return created, errors.Wrap(err, errors.ErrCodeInternal, "failed to encode seed document")
		}
		if err := h.Publish(res, content); err != nil {
			return created, err
		}
		created = append(created, res)
	}
	logger.WithField("resources", len(created)).Info("Seeded demo data")
	return created, nil
}
