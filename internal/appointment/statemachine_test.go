package appointment

import "testing"

var allStatuses = []Status{
	StatusScheduled, StatusConfirmed, StatusInProgress,
	StatusCompleted, StatusCancelled, StatusNoShow,
}

func TestCanTransition(t *testing.T) {
	legal := map[[2]Status]bool{
		{StatusScheduled, StatusConfirmed}:  true,
		{StatusScheduled, StatusCancelled}:  true,
		{StatusConfirmed, StatusInProgress}: true,
		{StatusConfirmed, StatusCancelled}:  true,
		{StatusConfirmed, StatusNoShow}:     true,
		{StatusInProgress, StatusCompleted}: true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := legal[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusScheduled, false},
		{StatusConfirmed, false},
		{StatusInProgress, false},
		{StatusCompleted, true},
		{StatusCancelled, true},
		{StatusNoShow, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestNextReturnsCopy(t *testing.T) {
	next := StatusScheduled.Next()
	next[0] = StatusNoShow
	if !CanTransition(StatusScheduled, StatusConfirmed) {
		t.Fatal("mutating Next() result changed the transition table")
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := ParseStatus("CONFIRMED"); err != nil {
		t.Errorf("ParseStatus(CONFIRMED): %v", err)
	}
	for _, bad := range []string{"", "confirmed", "PAID", "DONE"} {
		if _, err := ParseStatus(bad); err == nil {
			t.Errorf("ParseStatus(%q) succeeded", bad)
		}
	}
}

func TestConfirmPayment(t *testing.T) {
	tests := []struct {
		name       string
		status     Status
		wantStatus *Status
	}{
		{"scheduled moves to confirmed", StatusScheduled, ptr(StatusConfirmed)},
		{"confirmed stays", StatusConfirmed, nil},
		{"in progress stays", StatusInProgress, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ConfirmPayment(&Appointment{Status: tt.status, PaymentStatus: PaymentPending})
			if p.PaymentStatus == nil || *p.PaymentStatus != PaymentPaid {
				t.Fatalf("PaymentStatus = %v, want PAID", p.PaymentStatus)
			}
			switch {
			case tt.wantStatus == nil && p.Status != nil:
				t.Errorf("Status = %s, want unchanged", *p.Status)
			case tt.wantStatus != nil && (p.Status == nil || *p.Status != *tt.wantStatus):
				t.Errorf("Status = %v, want %s", p.Status, *tt.wantStatus)
			}
		})
	}
}

func TestPayable(t *testing.T) {
	tests := []struct {
		status  Status
		payment PaymentStatus
		want    bool
	}{
		{StatusScheduled, PaymentPending, true},
		{StatusConfirmed, PaymentPending, true},
		{StatusScheduled, PaymentPaid, false},
		{StatusInProgress, PaymentPending, false},
		{StatusCancelled, PaymentPending, false},
		{StatusConfirmed, PaymentRefunded, false},
	}
	for _, tt := range tests {
		a := Appointment{Status: tt.status, PaymentStatus: tt.payment}
		if got := a.Payable(); got != tt.want {
			t.Errorf("Payable(%s, %s) = %v, want %v", tt.status, tt.payment, got, tt.want)
		}
	}
}

func ptr[T any](v T) *T { return &v }
