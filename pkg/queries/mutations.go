package queries

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"krishismart/models"
	"krishismart/pkg/remote"
)

// AdvisoryInput is the writable part of an advisory. A nil IsActive means active.
type AdvisoryInput struct {
	Title           string  `json:"title" binding:"required"`
	TitleRegional   *string `json:"title_regional"`
	Content         string  `json:"content" binding:"required"`
	ContentRegional *string `json:"content_regional"`
	Category        *string `json:"category"`
	Season          *string `json:"season"`
	IsActive        *bool   `json:"is_active"`
}

// Nullable is a patch field for a nullable column. It is left alone when the
// field is absent from the JSON body, and cleared when it is sent as null.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// SetTo returns a Nullable that writes v.
func SetTo[T any](v T) Nullable[T] { return Nullable[T]{Set: true, Value: &v} }

// Null returns a Nullable that clears the column.
func Null[T any]() Nullable[T] { return Nullable[T]{Set: true} }

func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// AdvisoryPatch changes only the fields it carries. Nullable columns can be
// cleared with an explicit null.
type AdvisoryPatch struct {
	Title           *string          `json:"title"`
	TitleRegional   Nullable[string] `json:"title_regional"`
	Content         *string          `json:"content"`
	ContentRegional Nullable[string] `json:"content_regional"`
	Category        Nullable[string] `json:"category"`
	Season          Nullable[string] `json:"season"`
	IsActive        *bool            `json:"is_active"`
}

func (p AdvisoryPatch) columns() map[string]any {
	m := map[string]any{}
	setIf(m, "title", p.Title)
	setNullable(m, "title_regional", p.TitleRegional)
	setIf(m, "content", p.Content)
	setNullable(m, "content_regional", p.ContentRegional)
	setNullable(m, "category", p.Category)
	setNullable(m, "season", p.Season)
	setIf(m, "is_active", p.IsActive)
	return m
}

// ProfilePatch is the part of a profile its owner may change.
type ProfilePatch struct {
	FullName           *string   `json:"full_name"`
	Phone              *string   `json:"phone"`
	Location           *string   `json:"location"`
	FarmSize           *string   `json:"farm_size"`
	PrimaryCrops       *[]string `json:"primary_crops"`
	LanguagePreference *string   `json:"language_preference"`
}

func (p ProfilePatch) columns() map[string]any {
	m := map[string]any{}
	setIf(m, "full_name", p.FullName)
	setIf(m, "phone", p.Phone)
	setIf(m, "location", p.Location)
	setIf(m, "farm_size", p.FarmSize)
	setIf(m, "primary_crops", p.PrimaryCrops)
	setIf(m, "language_preference", p.LanguagePreference)
	return m
}

func setIf[T any](m map[string]any, col string, v *T) {
	if v != nil {
		m[col] = *v
	}
}

func setNullable[T any](m map[string]any, col string, v Nullable[T]) {
	if v.Set {
		m[col] = v.Value
	}
}

// CreateAdvisory stores a new advisory authored by the signed-in user.
func (s *Store) CreateAdvisory(ctx context.Context, us UserSource, in AdvisoryInput) (*models.Advisory, error) {
	uid := userID(us)
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: title and content are required", ErrInvalidInput)
	}
	row := &models.Advisory{
		Title:           in.Title,
		TitleRegional:   in.TitleRegional,
		Content:         in.Content,
		ContentRegional: in.ContentRegional,
		Category:        in.Category,
		Season:          in.Season,
		IsActive:        in.IsActive == nil || *in.IsActive,
		CreatedBy:       &uid,
	}
	if err := s.rc.Insert(ctx, tableAdvisories, row); err != nil {
		return nil, err
	}
	s.cache.Invalidate(advisoriesKey())
	return row, nil
}

func (s *Store) UpdateAdvisory(ctx context.Context, id string, patch AdvisoryPatch) (*models.Advisory, error) {
	var row models.Advisory
	if err := s.rc.Update(ctx, tableAdvisories, patch.columns(), &row, remote.Eq("id", id)); err != nil {
		return nil, err
	}
	s.cache.Invalidate(advisoriesKey())
	return &row, nil
}

func (s *Store) DeleteAdvisory(ctx context.Context, id string) error {
	if err := s.rc.Delete(ctx, tableAdvisories, &models.Advisory{}, remote.Eq("id", id)); err != nil {
		return err
	}
	s.cache.Invalidate(advisoriesKey())
	return nil
}

// CreateCropAnalysis stores in for the signed-in user. Any id or user id on in is ignored.
func (s *Store) CreateCropAnalysis(ctx context.Context, us UserSource, in models.CropAnalysis) (*models.CropAnalysis, error) {
	uid := userID(us)
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	row := in
	row.ID = ""
	row.UserID = uid
	if err := s.rc.Insert(ctx, tableCropAnalyses, &row); err != nil {
		return nil, err
	}
	s.cache.Invalidate(cropAnalysesKey(uid))
	return &row, nil
}

// DeleteCropAnalysis removes one of the signed-in user's analyses. Another
// user's id is reported as remote.ErrNotFound.
func (s *Store) DeleteCropAnalysis(ctx context.Context, us UserSource, id string) error {
	uid := userID(us)
	if uid == "" {
		return ErrNotAuthenticated
	}
	err := s.rc.Delete(ctx, tableCropAnalyses, &models.CropAnalysis{}, remote.Eq("id", id), remote.Eq("user_id", uid))
	if err != nil {
		return err
	}
	s.cache.Invalidate(cropAnalysesKey(uid))
	return nil
}

func (s *Store) CreateResidueRecommendation(ctx context.Context, us UserSource, in models.ResidueRecommendation) (*models.ResidueRecommendation, error) {
	uid := userID(us)
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	row := in
	row.ID = ""
	row.UserID = uid
	if err := s.rc.Insert(ctx, tableResidueRecommendations, &row); err != nil {
		return nil, err
	}
	s.cache.Invalidate(residueKey(uid))
	return &row, nil
}

func (s *Store) DeleteResidueRecommendation(ctx context.Context, us UserSource, id string) error {
	uid := userID(us)
	if uid == "" {
		return ErrNotAuthenticated
	}
	err := s.rc.Delete(ctx, tableResidueRecommendations, &models.ResidueRecommendation{}, remote.Eq("id", id), remote.Eq("user_id", uid))
	if err != nil {
		return err
	}
	s.cache.Invalidate(residueKey(uid))
	return nil
}

// UpdateProfile applies patch to the signed-in user's own profile.
func (s *Store) UpdateProfile(ctx context.Context, us UserSource, patch ProfilePatch) (*models.Profile, error) {
	uid := userID(us)
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	var row models.Profile
	if err := s.rc.Update(ctx, tableProfiles, patch.columns(), &row, remote.Eq("user_id", uid)); err != nil {
		return nil, err
	}
	s.cache.Invalidate(profileKey(uid))
	return &row, nil
}
