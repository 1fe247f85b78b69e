package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/camden-git/parentsgallery/models"
	"github.com/camden-git/parentsgallery/repository"
)

// Create and edit schemas. Edit schemas use pointers so that only the
// supplied fields become column changes.

type userCreate struct {
	Username string      `json:"username" validate:"required,min=3,max=64"`
	Password string      `json:"password" validate:"required,min=8,max=72"`
	Role     models.Role `json:"role" validate:"omitempty,oneof=admin user"`
}

type userEdit struct {
	Username *string      `json:"username" validate:"omitempty,min=3,max=64"`
	Password *string      `json:"password" validate:"omitempty,min=8,max=72"`
	Role     *models.Role `json:"role" validate:"omitempty,oneof=admin user"`
}

type blogCreate struct {
	Title   string               `json:"title" validate:"required,max=200"`
	Content string               `json:"content"`
	Author  string               `json:"author" validate:"max=100"`
	Status  models.PublishStatus `json:"status" validate:"omitempty,oneof=draft published archived"`
}

type blogEdit struct {
	Title   *string               `json:"title" validate:"omitempty,min=1,max=200"`
	Content *string               `json:"content"`
	Author  *string               `json:"author" validate:"omitempty,max=100"`
	Status  *models.PublishStatus `json:"status" validate:"omitempty,oneof=draft published archived"`
}

type galleryCreate struct {
	Name        string               `json:"name" validate:"required,max=200"`
	Description string               `json:"description" validate:"max=5000"`
	Status      models.PublishStatus `json:"status" validate:"omitempty,oneof=draft published archived"`
	Password    string               `json:"password" validate:"omitempty,min=4,max=72"`
}

type galleryEdit struct {
	Name        *string               `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string               `json:"description" validate:"omitempty,max=5000"`
	Status      *models.PublishStatus `json:"status" validate:"omitempty,oneof=draft published archived"`
}

type actionCreate struct {
	Name        string              `json:"name" validate:"required,max=200"`
	Description string              `json:"description" validate:"max=5000"`
	Type        models.ActionType   `json:"type" validate:"omitempty,oneof=simple gallery"`
	Status      models.ActionStatus `json:"status" validate:"omitempty,oneof=pending in-progress completed"`
}

type actionEdit struct {
	Name        *string              `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string              `json:"description" validate:"omitempty,max=5000"`
	Type        *models.ActionType   `json:"type" validate:"omitempty,oneof=simple gallery"`
	Status      *models.ActionStatus `json:"status" validate:"omitempty,oneof=pending in-progress completed"`
}

// changeSet collects the non-nil fields of an edit body.
type changeSet map[string]any

func setIf[V any](c changeSet, column string, v *V) {
	if v != nil {
		c[column] = *v
	}
}

func NewUserModule(users repository.Store[models.User], log logrus.FieldLogger, readGuard func(http.Handler) http.Handler) *CRUDModule[models.User, userCreate, userEdit] {
	return &CRUDModule[models.User, userCreate, userEdit]{
		Name:  "user",
		Store: users,
		ToDTO: func(u *models.User) any { return models.ToUserDTO(u) },
		Create: func(_ context.Context, in *userCreate) (*models.User, error) {
			hash, err := models.HashPassword(in.Password)
			if err != nil {
				return nil, err
			}
			role := in.Role
			if role == "" {
				role = models.RoleUser
			}
			return &models.User{Username: in.Username, PasswordHash: hash, Role: role}, nil
		},
		Changes: func(in *userEdit) (map[string]any, error) {
			c := changeSet{}
			setIf(c, "username", in.Username)
			setIf(c, "role", in.Role)
			if in.Password != nil {
				hash, err := models.HashPassword(*in.Password)
				if err != nil {
					return nil, err
				}
				c["password"] = hash
			}
			return c, nil
		},
		ReadGuard: readGuard,
		Filters:   map[string]string{"role": "role"},
		Paginate:  true,
		Log:       log,
	}
}

func NewBlogModule(blogs repository.Store[models.Blog], log logrus.FieldLogger) *CRUDModule[models.Blog, blogCreate, blogEdit] {
	return &CRUDModule[models.Blog, blogCreate, blogEdit]{
		Name:  "blog",
		Store: blogs,
		ToDTO: func(b *models.Blog) any { return models.ToBlogDTO(b) },
		Create: func(_ context.Context, in *blogCreate) (*models.Blog, error) {
			status := in.Status
			if status == "" {
				status = models.StatusDraft
			}
			return &models.Blog{Title: in.Title, Content: in.Content, Author: in.Author, Status: status}, nil
		},
		Changes: func(in *blogEdit) (map[string]any, error) {
			c := changeSet{}
			setIf(c, "title", in.Title)
			setIf(c, "content", in.Content)
			setIf(c, "author", in.Author)
			setIf(c, "status", in.Status)
			return c, nil
		},
		Filters:  map[string]string{"status": "status"},
		Paginate: true,
		Log:      log,
	}
}

func NewGalleryModule(galleries repository.Store[models.Gallery], log logrus.FieldLogger, itemGuard func(http.Handler) http.Handler) *CRUDModule[models.Gallery, galleryCreate, galleryEdit] {
	return &CRUDModule[models.Gallery, galleryCreate, galleryEdit]{
		Name:  "gallery",
		Store: galleries,
		ToDTO: func(g *models.Gallery) any { return models.ToGalleryDTO(g) },
		Create: func(_ context.Context, in *galleryCreate) (*models.Gallery, error) {
			g := &models.Gallery{Name: in.Name, Description: in.Description, Status: in.Status}
			if g.Status == "" {
				g.Status = models.StatusDraft
			}
			if in.Password != "" {
				hash, err := models.HashPassword(in.Password)
				if err != nil {
					return nil, err
				}
				g.PasswordHash = &hash
			}
			return g, nil
		},
		Changes: func(in *galleryEdit) (map[string]any, error) {
			c := changeSet{}
			setIf(c, "name", in.Name)
			setIf(c, "description", in.Description)
			setIf(c, "status", in.Status)
			return c, nil
		},
		ItemGuard: itemGuard,
		Filters:   map[string]string{"status": "status"},
		Paginate:  true,
		Log:       log,
	}
}

func NewActionModule(actions repository.Store[models.Action], log logrus.FieldLogger) *CRUDModule[models.Action, actionCreate, actionEdit] {
	return &CRUDModule[models.Action, actionCreate, actionEdit]{
		Name:  "action",
		Store: actions,
		ToDTO: func(a *models.Action) any { return models.ToActionDTO(a) },
		Create: func(_ context.Context, in *actionCreate) (*models.Action, error) {
			return &models.Action{Name: in.Name, Description: in.Description, Type: in.Type, Status: in.Status}, nil
		},
		Changes: func(in *actionEdit) (map[string]any, error) {
			c := changeSet{}
			setIf(c, "name", in.Name)
			setIf(c, "description", in.Description)
			setIf(c, "type", in.Type)
			setIf(c, "status", in.Status)
			return c, nil
		},
		Filters:  map[string]string{"status": "status", "type": "type"},
		Paginate: true,
		Log:      log,
	}
}
