// seed inserts development sample data through the services, so memberships and change history
// look like real usage. Idempotent: skips everything if the owner account already exists.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"pmt/backend/internal/audit"
	"pmt/backend/internal/config"
	"pmt/backend/internal/db"
	"pmt/backend/internal/logging"
	"pmt/backend/internal/platform/apperr"
	projectdomain "pmt/backend/internal/project/domain"
	projectservice "pmt/backend/internal/project/service"
	"pmt/backend/internal/security"
	"pmt/backend/internal/store"
	taskdomain "pmt/backend/internal/task/domain"
	taskservice "pmt/backend/internal/task/service"
	userservice "pmt/backend/internal/user/service"
)

const (
	devPassword   = "password123"
	ownerEmail    = "owner@example.com"
	memberEmail   = "member@example.com"
	observerEmail = "observer@example.com"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, closer := logging.New(logging.Options{Level: cfg.LogLevel, Service: "pmt-seed"})
	defer closer.Close()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db")
	}
	defer conn.Close()

	if err := seed(ctx, store.NewPostgres(conn), cfg.BcryptCost, log); err != nil {
		log.WithError(err).Fatal("seed failed")
	}
}

func seed(ctx context.Context, st store.Store, bcryptCost int, log logrus.FieldLogger) error {
	_, err := st.Repos().Users.GetByEmail(ctx, ownerEmail)
	switch {
	case err == nil:
		log.Infof("seed already applied (%s exists), skipping", ownerEmail)
		return nil
	case !errors.Is(err, apperr.ErrNotFound):
		return fmt.Errorf("seed check: %w", err)
	}

	users := userservice.New(st.Repos().Users, security.NewHasher(bcryptCost), nil, nil, log)
	projects := projectservice.New(st, nil, log)
	tasks := taskservice.NewManager(st, nil, audit.NewRecorder(log, nil), nil, log)

	owner, err := users.Register(ctx, ownerEmail, "owner", devPassword)
	if err != nil {
		return fmt.Errorf("register owner: %w", err)
	}
	member, err := users.Register(ctx, memberEmail, "member", devPassword)
	if err != nil {
		return fmt.Errorf("register member: %w", err)
	}
	if _, err := users.Register(ctx, observerEmail, "observer", devPassword); err != nil {
		return fmt.Errorf("register observer: %w", err)
	}

	today := taskdomain.Date(time.Now())
	p, err := projects.CreateProject(ctx, projectdomain.Project{
		Name:        "Website relaunch",
		Description: "Sample project created by cmd/seed",
		StartDate:   today,
	}, owner.ID)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	for _, email := range []string{memberEmail, observerEmail} {
		if _, err := projects.AddMember(ctx, p.ID, email, owner.ID); err != nil {
			return fmt.Errorf("add member %s: %w", email, err)
		}
	}
	observer, err := st.Repos().Users.GetByEmail(ctx, observerEmail)
	if err != nil {
		return fmt.Errorf("load observer: %w", err)
	}
	if _, err := projects.AssignRole(ctx, p.ID, observer.ID, "OBSERVER", owner.ID); err != nil {
		return fmt.Errorf("assign observer role: %w", err)
	}

	samples := []struct {
		name     string
		priority taskdomain.Priority
		due      int
	}{
		{"Draft sitemap", taskdomain.PriorityHigh, 7},
		{"Pick colour palette", taskdomain.PriorityMedium, 14},
		{"Write launch post", taskdomain.PriorityLow, 30},
	}
	var created []*taskdomain.View
	for _, s := range samples {
		v, err := tasks.CreateTask(ctx, taskdomain.Task{
			Name:        s.name,
			Description: s.name + " for the relaunch",
			DueDate:     today.AddDate(0, 0, s.due),
			Priority:    s.priority,
		}, p.ID, owner.ID)
		if err != nil {
			return fmt.Errorf("create task %q: %w", s.name, err)
		}
		created = append(created, v)
	}

	// Give the first task some history.
	first := created[0]
	if _, err := tasks.AssignTask(ctx, first.ID, p.ID, member.ID, owner.ID); err != nil {
		return fmt.Errorf("assign task: %w", err)
	}
	if _, err := tasks.ChangeStatus(ctx, first.ID, p.ID, member.ID, string(taskdomain.StatusInProgress)); err != nil {
		return fmt.Errorf("change status: %w", err)
	}
	if _, err := tasks.ChangeStatus(ctx, first.ID, p.ID, observer.ID, string(taskdomain.StatusDone)); err != nil {
		return fmt.Errorf("change status: %w", err)
	}

	log.WithField("project_id", p.ID).Info("seed completed")
	fmt.Printf("Logins (password %q): %s, %s, %s\n", devPassword, ownerEmail, memberEmail, observerEmail)
	return nil
}
