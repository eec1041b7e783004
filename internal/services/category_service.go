package services

import (
	"errors"

	"gorm.io/gorm"

	apperrors "budgetkit/internal/errors"
	"budgetkit/internal/models"
	"budgetkit/internal/pagination"
)

// categoryService manages a user's category tree. Budgets with subcategory
// rollup read the tree through DescendantIDs.
type categoryService struct {
	db *gorm.DB
}

// NewCategoryService creates a new CategoryServicer.
func NewCategoryService(db *gorm.DB) CategoryServicer {
	return &categoryService{db: db}
}

// CreateCategory creates a category, optionally under a parent of the same type.
func (s *categoryService) CreateCategory(userID string, in CategoryInput) (*models.Category, error) {
	if in.Name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category name is required")
	}
	if err := s.ensureNameFree(userID, in.Name, ""); err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		if _, err := s.parentFor(userID, *in.ParentID, in.Type); err != nil {
			return nil, err
		}
	}

	category := &models.Category{
		UserID:      userID,
		Name:        in.Name,
		Type:        in.Type,
		Description: in.Description,
		Icon:        in.Icon,
		Color:       in.Color,
		ParentID:    in.ParentID,
	}
	if err := s.db.Create(category).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return category, nil
}

// ensureNameFree rejects a name already used by another of the user's categories.
func (s *categoryService) ensureNameFree(userID, name, exceptID string) error {
	q := s.db.Model(&models.Category{}).Where("user_id = ? AND name = ?", userID, name)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "category with this name already exists")
	}
	return nil
}

// parentFor loads the prospective parent and checks it can hold a child of
// the given type.
func (s *categoryService) parentFor(userID, parentID string, childType models.CategoryType) (*models.Category, error) {
	var parent models.Category
	if err := s.db.Where("id = ? AND user_id = ?", parentID, userID).First(&parent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WithMessage(apperrors.ErrCategoryNotFound, "parent category not found")
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if parent.Type != childType {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "parent category must be of type "+string(childType))
	}
	return &parent, nil
}

// ListCategories returns a page of the user's categories, ordered by name.
func (s *categoryService) ListCategories(userID string, filter CategoryFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error) {
	if filter.TopLevel && filter.ParentID != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "parent_id and top_level cannot be combined")
	}
	page.Defaults()

	q := s.db.Model(&models.Category{}).Where("user_id = ?", userID)
	if filter.Type != nil {
		q = q.Where("type = ?", *filter.Type)
	}
	switch {
	case filter.TopLevel:
		q = q.Where("parent_id IS NULL")
	case filter.ParentID != nil:
		q = q.Where("parent_id = ?", *filter.ParentID)
	}

	var totalItems int64
	if err := q.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var categories []models.Category
	if err := q.Order("name ASC").Scopes(pagination.Paginate(page)).Find(&categories).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(categories, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetCategoryByID retrieves one of the user's categories.
func (s *categoryService) GetCategoryByID(userID, categoryID string) (*models.Category, error) {
	var category models.Category
	if err := s.db.Where("id = ? AND user_id = ?", categoryID, userID).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCategoryNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &category, nil
}

// UpdateCategory applies the set fields of update. Moving a category under
// itself or one of its descendants is rejected.
func (s *categoryService) UpdateCategory(userID, categoryID string, update CategoryUpdate) (*models.Category, error) {
	category, err := s.GetCategoryByID(userID, categoryID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if update.Name != nil {
		if *update.Name == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category name is required")
		}
		if err := s.ensureNameFree(userID, *update.Name, categoryID); err != nil {
			return nil, err
		}
		updates["name"] = *update.Name
	}
	if update.Description != nil {
		updates["description"] = *update.Description
	}
	if update.Icon != nil {
		updates["icon"] = *update.Icon
	}
	if update.Color != nil {
		updates["color"] = *update.Color
	}
	if update.ParentID != nil {
		if *update.ParentID == "" {
			updates["parent_id"] = nil
		} else {
			if err := s.checkMove(userID, category, *update.ParentID); err != nil {
				return nil, err
			}
			updates["parent_id"] = *update.ParentID
		}
	}

	if len(updates) == 0 {
		return category, nil
	}
	if err := s.db.Model(category).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return s.GetCategoryByID(userID, categoryID)
}

func (s *categoryService) checkMove(userID string, category *models.Category, parentID string) error {
	if parentID == category.ID {
		return apperrors.ErrSelfParentCategory
	}
	if _, err := s.parentFor(userID, parentID, category.Type); err != nil {
		return err
	}
	descendants, err := s.DescendantIDs(userID, category.ID)
	if err != nil {
		return err
	}
	for _, id := range descendants {
		if id == parentID {
			return apperrors.ErrCategoryCycle
		}
	}
	return nil
}

// DeleteCategory soft-deletes a leaf category no budget points at.
// Transactions keep their reference to it for history.
func (s *categoryService) DeleteCategory(userID, categoryID string) error {
	category, err := s.GetCategoryByID(userID, categoryID)
	if err != nil {
		return err
	}

	var childCount int64
	if err := s.db.Model(&models.Category{}).Where("parent_id = ?", categoryID).Count(&childCount).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if childCount > 0 {
		return apperrors.ErrCategoryHasChildren
	}

	var budgetCount int64
	if err := s.db.Model(&models.Budget{}).Where("category_id = ?", categoryID).Count(&budgetCount).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if budgetCount > 0 {
		return apperrors.ErrCategoryInUse
	}

	if err := s.db.Delete(category).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// DescendantIDs returns the IDs of every category below categoryID in the
// user's category tree, breadth first. The category itself is not included.
func (s *categoryService) DescendantIDs(userID, categoryID string) ([]string, error) {
	var result []string
	seen := map[string]bool{categoryID: true}
	frontier := []string{categoryID}
	for len(frontier) > 0 {
		var children []string
		if err := s.db.Model(&models.Category{}).
			Where("user_id = ? AND parent_id IN ?", userID, frontier).
			Pluck("id", &children).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		frontier = frontier[:0]
		for _, id := range children {
			if seen[id] {
				continue
			}
			seen[id] = true
			result = append(result, id)
			frontier = append(frontier, id)
		}
	}
	return result, nil
}
