package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/Clark-Hu/moviedeck/internal/docstore"
	"github.com/Clark-Hu/moviedeck/internal/domain"
)

const (
	fieldUsername    = "username"
	fieldBio         = "bio"
	fieldAvatarIndex = "avatarIndex"

	maxUsernameLen = 64
	maxBioLen      = 500
)

// ProfilesRepository keeps one profile document per user.
type ProfilesRepository struct {
	store      docstore.Store
	collection string
	maxAvatar  int
	locks      *keyedMutex
	logger     *log.Logger
}

// ProfileUpdate lists the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Username    *string
	Bio         *string
	AvatarIndex *int
}

// ProfileID is the document id of the profile created for userID.
func ProfileID(userID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("moviedeck:profile:"+userID)).String()
}

// Get returns the profile of user, creating a default one on first access.
func (r *ProfilesRepository) Get(ctx context.Context, user *domain.User) (domain.Profile, error) {
	return r.ensure(ctx, user, "")
}

// Ensure creates the sign-up profile of user with bio unless one exists.
func (r *ProfilesRepository) Ensure(ctx context.Context, user *domain.User, bio string) (domain.Profile, error) {
	return r.ensure(ctx, user, bio)
}

func (r *ProfilesRepository) ensure(ctx context.Context, user *domain.User, bio string) (domain.Profile, error) {
	if user == nil || user.ID == "" {
		return domain.Profile{}, ErrUnauthenticated
	}

	unlock := r.locks.Lock(user.ID)
	defer unlock()

	if doc, found, err := r.find(ctx, user.ID); err != nil {
		return domain.Profile{}, err
	} else if found {
		return profileFromDocument(doc), nil
	}

	doc, err := r.store.Create(ctx, r.collection, ProfileID(user.ID), map[string]any{
		fieldUserID:      user.ID,
		fieldUsername:    user.Name,
		fieldBio:         bio,
		fieldAvatarIndex: 0,
	}, docstore.OwnerPermissions(user.ID))
	if err == nil {
		r.logger.Debug("profile created", "user", user.ID)
		return profileFromDocument(doc), nil
	}
	if !errors.Is(err, docstore.ErrConflict) {
		return domain.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	doc, err = r.store.Get(ctx, r.collection, ProfileID(user.ID))
	if err != nil {
		return domain.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return profileFromDocument(doc), nil
}

// Update applies p to the profile of user, creating the profile first if needed.
func (r *ProfilesRepository) Update(ctx context.Context, user *domain.User, p ProfileUpdate) (domain.Profile, error) {
	if user == nil || user.ID == "" {
		return domain.Profile{}, ErrUnauthenticated
	}
	data, err := r.updateData(p)
	if err != nil {
		return domain.Profile{}, err
	}

	current, err := r.Get(ctx, user)
	if err != nil {
		return domain.Profile{}, err
	}
	if len(data) == 0 {
		return current, nil
	}
	doc, err := r.store.Update(ctx, r.collection, current.ID, data)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return profileFromDocument(doc), nil
}

func (r *ProfilesRepository) updateData(p ProfileUpdate) (map[string]any, error) {
	data := make(map[string]any, 3)
	if p.Username != nil {
		name := strings.TrimSpace(*p.Username)
		if name == "" || utf8.RuneCountInString(name) > maxUsernameLen {
			return nil, fmt.Errorf("%w: username must be 1-%d characters", ErrInvalidInput, maxUsernameLen)
		}
		data[fieldUsername] = name
	}
	if p.Bio != nil {
		bio := strings.TrimSpace(*p.Bio)
		if utf8.RuneCountInString(bio) > maxBioLen {
			return nil, fmt.Errorf("%w: bio exceeds %d characters", ErrInvalidInput, maxBioLen)
		}
		data[fieldBio] = bio
	}
	if p.AvatarIndex != nil {
		idx := *p.AvatarIndex
		if idx < 0 || (r.maxAvatar > 0 && idx >= r.maxAvatar) {
			return nil, fmt.Errorf("%w: avatar index %d out of range", ErrInvalidInput, idx)
		}
		data[fieldAvatarIndex] = idx
	}
	return data, nil
}

func (r *ProfilesRepository) find(ctx context.Context, userID string) (docstore.Document, bool, error) {
	res, err := r.store.List(ctx, r.collection, docstore.Eq(fieldUserID, userID), docstore.Limit{N: 1})
	if err != nil {
		return docstore.Document{}, false, fmt.Errorf("find profile: %w", err)
	}
	if len(res.Documents) == 0 {
		return docstore.Document{}, false, nil
	}
	return res.Documents[0], true, nil
}

func profileFromDocument(doc docstore.Document) domain.Profile {
	avatar, _ := doc.Int(fieldAvatarIndex)
	return domain.Profile{
		ID:          doc.ID,
		UserID:      doc.String(fieldUserID),
		Username:    doc.String(fieldUsername),
		Bio:         doc.String(fieldBio),
		AvatarIndex: int(avatar),
		UpdatedAt:   doc.UpdatedAt,
	}
}
