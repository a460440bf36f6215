package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/carecircle/carecircle/pkg/errors"
)

var (
	// ErrNotAuthorized indicates the actor lacks the role required for a membership mutation.
	ErrNotAuthorized = apperrors.New("NOT_AUTHORIZED", "Only an admin can perform this action", http.StatusForbidden)
	// ErrUserNotFound indicates the invited email does not belong to a registered profile.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "No registered user with that email", http.StatusNotFound)
	// ErrAlreadyMember signals an active or pending membership already exists for the pair.
	ErrAlreadyMember = apperrors.New("ALREADY_MEMBER", "User is already a member of this care circle", http.StatusConflict)
	// ErrCannotModifySelf rejects admins editing their own membership permissions.
	ErrCannotModifySelf = apperrors.New("CANNOT_MODIFY_SELF", "You cannot modify your own membership", http.StatusBadRequest)
	// ErrLastAdminProtected rejects removal of the only active admin of a care circle.
	ErrLastAdminProtected = apperrors.New("LAST_ADMIN_PROTECTED", "Cannot remove the last admin of a care circle", http.StatusConflict)
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate") ||
		strings.Contains(lower, "constraint")
}
