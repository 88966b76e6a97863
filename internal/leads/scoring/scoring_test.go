package scoring

import "testing"

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want int
	}{
		{
			name: "bare lead keeps the base score",
			in:   Input{},
			want: 50,
		},
		{
			name: "phone only",
			in:   Input{Phone: "+971501234567"},
			want: 60,
		},
		{
			name: "free mail provider earns nothing",
			in:   Input{Email: "sara@gmail.com"},
			want: 50,
		},
		{
			name: "business email",
			in:   Input{Email: "sara@acme.ae"},
			want: 65,
		},
		{
			name: "small budget",
			in:   Input{BudgetAmount: 5000},
			want: 55,
		},
		{
			name: "mid budget",
			in:   Input{BudgetAmount: 150000},
			want: 65,
		},
		{
			name: "ceo with everything clamps at 100",
			in: Input{
				Phone:        "+971501234567",
				Email:        "sara@acme.ae",
				BudgetAmount: 600000,
				Occupation:   "CEO",
			},
			want: 100, // 50+10+15+20+10 = 105, clamped
		},
		{
			name: "senior title inside a longer occupation",
			in:   Input{Occupation: "Founder & Managing Partner"},
			want: 60,
		},
		{
			name: "malformed email is not a business address",
			in:   Input{Email: "not-an-email"},
			want: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.in); got != tt.want {
				t.Errorf("Score(%+v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
