package repositories

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"trade-market/internal/apperrors"
)

// ErrPairConflict is returned when a conversation for the same unordered pair
// was created concurrently. Callers repeat the lookup.
var ErrPairConflict = errors.New("conversation pair already exists")

const conversationPairIndex = "conversations_pair_idx"

func translatePQ(err error, entity string) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code.Name() {
	case "foreign_key_violation":
		return fmt.Errorf("%s references a missing row (%s): %w", entity, pqErr.Constraint, apperrors.ErrNotFound)
	case "unique_violation":
		if pqErr.Constraint == conversationPairIndex {
			return ErrPairConflict
		}
	case "check_violation", "not_null_violation":
		return apperrors.NewValidationError(entity, pqErr.Message)
	}
	return err
}
