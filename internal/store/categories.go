package store

import (
	"fmt"
	"strings"

	"github.com/voyagen/streamshelf/internal/models"
)

// ValidateCategories checks that every parent reference names a top-level category
// of the same set. With one level of nesting, cycles cannot occur.
func ValidateCategories(cats []models.Category) error {
	byID := make(map[string]models.Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}
	for _, c := range cats {
		if c.ParentID == nil {
			continue
		}
		parent, ok := byID[*c.ParentID]
		switch {
		case !ok:
			return fmt.Errorf("%w: category %s: parent %s not in playlist", ErrInvalidParent, c.ID, *c.ParentID)
		case parent.ID == c.ID:
			return fmt.Errorf("%w: category %s is its own parent", ErrInvalidParent, c.ID)
		case parent.ParentID != nil:
			return fmt.Errorf("%w: category %s: parent %s is nested", ErrInvalidParent, c.ID, parent.ID)
		}
	}
	return nil
}

// SanitizeCategories clears parent references that ValidateCategories would reject
// and returns how many were cleared. Remote panels are not trusted to be consistent.
func SanitizeCategories(cats []models.Category) int {
	byID := make(map[string]*models.Category, len(cats))
	for i := range cats {
		byID[cats[i].ID] = &cats[i]
	}
	cleared := 0
	for i := range cats {
		c := &cats[i]
		if c.ParentID == nil {
			continue
		}
		parent, ok := byID[*c.ParentID]
		if !ok || parent == c {
			c.ParentID = nil
			cleared++
		}
	}
	// Grandchildren move to the top level.
	for i := range cats {
		c := &cats[i]
		if c.ParentID == nil {
			continue
		}
		if byID[*c.ParentID].ParentID != nil {
			c.ParentID = nil
			cleared++
		}
	}
	return cleared
}

// categoryKey is the Category primary key for a playlist-local category id.
// Channels and the models only ever carry the local id.
func categoryKey(playlistID, localID string) string {
	return playlistID + ":" + localID
}

func localCategoryIDs(cats []models.Category) {
	for i := range cats {
		prefix := categoryKey(cats[i].PlaylistID, "")
		cats[i].ID = strings.TrimPrefix(cats[i].ID, prefix)
		if cats[i].ParentID != nil {
			parent := strings.TrimPrefix(*cats[i].ParentID, prefix)
			cats[i].ParentID = &parent
		}
	}
}
