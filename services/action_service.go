package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/camden-git/parentsgallery/models"
	"github.com/camden-git/parentsgallery/repository"
)

// ActionService is the store behind the action routes. A gallery-typed action
// owns one gallery, created with the action or on conversion from simple and
// deleted with the action.
type ActionService struct {
	actions   *repository.Repository[models.Action, *models.Action]
	galleries repository.Store[models.Gallery]
	log       logrus.FieldLogger
}

func NewActionService(actions *repository.Repository[models.Action, *models.Action], galleries repository.Store[models.Gallery], log logrus.FieldLogger) *ActionService {
	return &ActionService{actions: actions, galleries: galleries, log: log}
}

var _ repository.Store[models.Action] = (*ActionService)(nil)

func (s *ActionService) All(ctx context.Context, where map[string]any, order string) ([]models.Action, error) {
	return s.actions.All(ctx, where, order)
}

func (s *ActionService) Get(ctx context.Context, id uint) (*models.Action, error) {
	return s.actions.Get(ctx, id)
}

func (s *ActionService) Latest(ctx context.Context) (*models.Action, error) {
	return s.actions.Latest(ctx)
}

func (s *ActionService) createOwnedGallery(ctx context.Context, name, description string) (*models.Gallery, error) {
	g, err := s.galleries.Add(ctx, &models.Gallery{Name: name, Description: description, Status: models.StatusDraft})
	if err != nil {
		return nil, fmt.Errorf("failed to create gallery for action %q: %w", name, err)
	}
	return g, nil
}

func (s *ActionService) Add(ctx context.Context, a *models.Action) (*models.Action, error) {
	if a.Type == "" {
		a.Type = models.ActionSimple
	}
	if a.Status == "" {
		a.Status = models.ActionPending
	}
	a.GalleryID = nil

	var owned *models.Gallery
	if a.Type == models.ActionGallery {
		g, err := s.createOwnedGallery(ctx, a.Name, a.Description)
		if err != nil {
			return nil, err
		}
		owned = g
		a.GalleryID = &g.ID
	}

	saved, err := s.actions.Add(ctx, a)
	if err != nil {
		if owned != nil {
			if _, derr := s.galleries.DeleteByID(context.WithoutCancel(ctx), owned.ID); derr != nil {
				s.log.WithError(derr).WithField("gallery_id", owned.ID).Error("failed to remove gallery of unsaved action")
			}
		}
		return nil, err
	}
	return saved, nil
}

// Edit applies changes and keeps the owned gallery in step: converting from
// simple to gallery creates one, renaming renames it, converting back to
// simple detaches it without deleting it. A gallery action whose gallery was
// deleted keeps a null galleryId.
func (s *ActionService) Edit(ctx context.Context, id uint, changes map[string]any) (*models.Action, error) {
	existing, err := s.actions.Get(ctx, id)
	if err != nil || existing == nil {
		return nil, err
	}
	delete(changes, "gallery_id")

	newType := existing.Type
	if t, ok := changes["type"]; ok {
		newType = models.ActionType(fmt.Sprint(t))
	}
	newName := existing.Name
	if n, ok := changes["name"].(string); ok {
		newName = n
	}

	var created *models.Gallery
	switch {
	case existing.Type == models.ActionSimple && newType == models.ActionGallery:
		g, err := s.createOwnedGallery(ctx, newName, existing.Description)
		if err != nil {
			return nil, err
		}
		created = g
		changes["gallery_id"] = g.ID
	case newType == models.ActionGallery && existing.GalleryID != nil && newName != existing.Name:
		if _, err := s.galleries.Edit(ctx, *existing.GalleryID, map[string]any{"name": newName}); err != nil {
			return nil, fmt.Errorf("failed to rename gallery of action %d: %w", id, err)
		}
	case newType == models.ActionSimple && existing.GalleryID != nil:
		changes["gallery_id"] = nil
	}

	updated, err := s.actions.Edit(ctx, id, changes)
	if err != nil && created != nil {
		if _, derr := s.galleries.DeleteByID(context.WithoutCancel(ctx), created.ID); derr != nil {
			s.log.WithError(derr).WithField("gallery_id", created.ID).Error("failed to remove gallery of unsaved conversion")
		}
	}
	return updated, err
}

// DeleteByID removes the action and, for gallery actions, the owned gallery.
func (s *ActionService) DeleteByID(ctx context.Context, id uint) (bool, error) {
	existing, err := s.actions.Get(ctx, id)
	if err != nil || existing == nil {
		return false, err
	}

	removed, err := s.actions.DeleteByID(ctx, id)
	if err != nil || !removed {
		return removed, err
	}

	if existing.Type == models.ActionGallery && existing.GalleryID != nil {
		if _, err := s.galleries.DeleteByID(ctx, *existing.GalleryID); err != nil {
			return true, fmt.Errorf("action %d deleted but its gallery %d was not: %w", id, *existing.GalleryID, err)
		}
	}
	return true, nil
}
