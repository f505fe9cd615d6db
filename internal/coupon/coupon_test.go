package coupon

import (
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestChoose(t *testing.T) {
	signup := &models.Coupon{Code: SignupCode, Discount: SignupDiscount}
	oldest := &models.Coupon{Code: "INV_abc", Discount: InvitationDiscount}

	cases := []struct {
		name           string
		firstRide      bool
		signup, oldest *models.Coupon
		want           *models.Coupon
	}{
		{"first ride prefers signup coupon", true, signup, nil, signup},
		{"first ride without signup falls back to oldest", true, nil, oldest, oldest},
		{"later ride ignores signup priority", false, nil, oldest, oldest},
		{"no coupons", false, nil, nil, nil},
		{"first ride, nothing unused", true, nil, nil, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := choose(c.firstRide, c.signup, c.oldest); got != c.want {
				t.Fatalf("choose(%v) = %v, want %v", c.firstRide, got, c.want)
			}
		})
	}
}
