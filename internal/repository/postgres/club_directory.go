package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"clubing-chat/internal/domain"
)

// ClubDirectory reads club existence and membership from the club tables.
type ClubDirectory struct {
	db *sql.DB
}

func NewClubDirectory(db *sql.DB) *ClubDirectory {
	return &ClubDirectory{db: db}
}

func (d *ClubDirectory) Exists(ctx context.Context, clubID domain.ClubID) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM clubs WHERE id = $1)`, int64(clubID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up club: %w", err)
	}
	return exists, nil
}

func (d *ClubDirectory) IsMember(ctx context.Context, clubID domain.ClubID, memberID domain.MemberID) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM club_members
			WHERE club_id = $1 AND member_id = $2
		)
	`
	var exists bool
	if err := d.db.QueryRowContext(ctx, query, int64(clubID), string(memberID)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check club membership: %w", err)
	}
	return exists, nil
}
