// Package coupon selects and consumes discount coupons. Selection runs
// inside the same transaction that freezes the ride fare, with the coupon
// rows locked, so concurrent rides of one rider can never spend the same
// coupon twice.
package coupon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

const (
	// SignupCode is the signup-campaign coupon granted to every new user.
	// It is consumed preferentially on the rider's first ride.
	SignupCode     = "CP_NEW2024"
	SignupDiscount = 3000

	InvitationDiscount = 1500
	RewardDiscount     = 1000
	invitationCap      = 3
)

// ErrInvitationUnavailable covers both an unknown invitation code and one
// that reached its redemption cap.
var ErrInvitationUnavailable = errors.New("invitation code cannot be used")

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// choose applies the allocation order: the signup coupon wins on the
// rider's first ride, otherwise the oldest unused coupon is next in line.
func choose(firstRide bool, signup, oldest *models.Coupon) *models.Coupon {
	if firstRide && signup != nil {
		return signup
	}
	return oldest
}

// AllocateForRide picks a coupon for the ride per policy, marks it used_by
// the ride, and returns its discount. Zero means no coupon was available.
// Must run inside the ride-creation transaction; both lookups lock the row.
func AllocateForRide(ctx context.Context, tx *sql.Tx, userID, rideID string, firstRide bool) (int, error) {
	var signup *models.Coupon
	if firstRide {
		c, err := queryCoupon(ctx, tx,
			`SELECT user_id, code, discount, used_by, created_at FROM coupons WHERE user_id = $1 AND code = $2 AND used_by IS NULL FOR UPDATE`,
			userID, SignupCode)
		if err != nil {
			return 0, err
		}
		signup = c
	}
	var oldest *models.Coupon
	if signup == nil {
		c, err := queryCoupon(ctx, tx,
			`SELECT user_id, code, discount, used_by, created_at FROM coupons WHERE user_id = $1 AND used_by IS NULL ORDER BY created_at LIMIT 1 FOR UPDATE`,
			userID)
		if err != nil {
			return 0, err
		}
		oldest = c
	}

	c := choose(firstRide, signup, oldest)
	if c == nil {
		return 0, nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE coupons SET used_by = $1 WHERE user_id = $2 AND code = $3`,
		rideID, c.UserID, c.Code); err != nil {
		return 0, fmt.Errorf("consume coupon: %w", err)
	}
	return c.Discount, nil
}

// DiscountForRide returns the discount of the coupon already bound to the
// ride, or zero when none is. Re-entrant calls for an existing ride must
// never consume a second coupon.
func DiscountForRide(ctx context.Context, q DBTX, rideID string) (int, error) {
	c, err := queryCoupon(ctx, q,
		`SELECT user_id, code, discount, used_by, created_at FROM coupons WHERE used_by = $1`, rideID)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, nil
	}
	return c.Discount, nil
}

// PreviewDiscount reports the discount the rider's next ride would get,
// without consuming or locking anything. Used by the fare estimate.
func PreviewDiscount(ctx context.Context, q DBTX, userID string, firstRide bool) (int, error) {
	var signup *models.Coupon
	if firstRide {
		c, err := queryCoupon(ctx, q,
			`SELECT user_id, code, discount, used_by, created_at FROM coupons WHERE user_id = $1 AND code = $2 AND used_by IS NULL`,
			userID, SignupCode)
		if err != nil {
			return 0, err
		}
		signup = c
	}
	var oldest *models.Coupon
	if signup == nil {
		c, err := queryCoupon(ctx, q,
			`SELECT user_id, code, discount, used_by, created_at FROM coupons WHERE user_id = $1 AND used_by IS NULL ORDER BY created_at LIMIT 1`,
			userID)
		if err != nil {
			return 0, err
		}
		oldest = c
	}
	if c := choose(firstRide, signup, oldest); c != nil {
		return c.Discount, nil
	}
	return 0, nil
}

// IssueSignup grants the signup-campaign coupon to a new user.
func IssueSignup(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO coupons (user_id, code, discount) VALUES ($1, $2, $3)`,
		userID, SignupCode, SignupDiscount)
	return err
}

// RedeemInvitation grants the invited user a welcome coupon and the
// inviting user a reward coupon. The per-code redemption count is checked
// under lock and capped.
func RedeemInvitation(ctx context.Context, tx *sql.Tx, invitedUserID, code string) error {
	rows, err := tx.QueryContext(ctx, `SELECT user_id FROM coupons WHERE code = $1 FOR UPDATE`, "INV_"+code)
	if err != nil {
		return err
	}
	redemptions := 0
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return err
		}
		redemptions++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if redemptions >= invitationCap {
		return ErrInvitationUnavailable
	}

	var inviterID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE invitation_code = $1`, code).Scan(&inviterID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvitationUnavailable
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO coupons (user_id, code, discount) VALUES ($1, $2, $3)`,
		invitedUserID, "INV_"+code, InvitationDiscount); err != nil {
		return err
	}
	// the reward code carries a timestamp suffix so repeat redemptions of
	// one invitation grant the inviter distinct coupons
	rewardCode := fmt.Sprintf("RWD_%s_%d", code, time.Now().UnixMilli())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO coupons (user_id, code, discount) VALUES ($1, $2, $3)`,
		inviterID, rewardCode, RewardDiscount); err != nil {
		return err
	}
	return nil
}

func queryCoupon(ctx context.Context, q DBTX, query string, args ...any) (*models.Coupon, error) {
	var c models.Coupon
	var usedBy sql.NullString
	err := q.QueryRowContext(ctx, query, args...).Scan(&c.UserID, &c.Code, &c.Discount, &usedBy, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if usedBy.Valid {
		c.UsedBy = &usedBy.String
	}
	return &c, nil
}
