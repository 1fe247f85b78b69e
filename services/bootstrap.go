package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/camden-git/parentsgallery/models"
	"github.com/camden-git/parentsgallery/repository"
)

const (
	defaultBlogTitle   = "Welcome"
	defaultBlogContent = "Photos of our events are published in the gallery."
)

// Bootstrap seeds an empty database with the admin account and a first blog
// post. It only ever runs from a single process at startup.
func Bootstrap(ctx context.Context, users *repository.Repository[models.User, *models.User], blogs *repository.Repository[models.Blog, *models.Blog], adminUsername, adminPassword string, log logrus.FieldLogger) error {
	hash, err := models.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	_, added, err := users.AddIfEmpty(ctx, &models.User{Username: adminUsername, PasswordHash: hash, Role: models.RoleAdmin})
	if err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	if added {
		log.WithField("username", adminUsername).Info("created admin user")
	}

	_, added, err = blogs.AddIfEmpty(ctx, &models.Blog{
		Title:   defaultBlogTitle,
		Content: defaultBlogContent,
		Author:  adminUsername,
		Status:  models.StatusPublished,
	})
	if err != nil {
		return fmt.Errorf("failed to seed blog: %w", err)
	}
	if added {
		log.Info("created default blog post")
	}
	return nil
}
