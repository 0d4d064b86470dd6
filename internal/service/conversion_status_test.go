package service

import (
	"testing"

	"github.com/convtrack/internal/constants"
)

var allStatuses = []string{
	constants.ConversionStatusInitiated,
	constants.ConversionStatusPending,
	constants.ConversionStatusApproved,
	constants.ConversionStatusDeclined,
	constants.ConversionStatusRefunded,
	constants.ConversionStatusChargeback,
}

func TestNormalizeStatusFirstEventWins(t *testing.T) {
	for _, eventType := range []string{constants.ConversionTypeReg, constants.ConversionTypePurchase} {
		for _, status := range allStatuses {
			if got := NormalizeStatus("", status, eventType); got != status {
				t.Fatalf("first event %s/%s want %s got %s", eventType, status, status, got)
			}
		}
	}
}

func TestNormalizeStatusRules(t *testing.T) {
	cases := []struct {
		prev, next, eventType, want string
	}{
		{"approved", "refunded", "reg", "approved"},
		{"approved", "chargeback", "reg", "approved"},
		{"pending", "refunded", "purchase", "pending"},
		{"approved", "refunded", "purchase", "refunded"},
		{"approved", "chargeback", "rebill", "chargeback"},
		{"declined", "chargeback", "purchase", "declined"},
		{"approved", "initiated", "purchase", "approved"},
		{"approved", "pending", "purchase", "approved"},
		{"pending", "approved", "purchase", "approved"},
		{"approved", "approved", "purchase", "approved"},
		{"approved", "declined", "purchase", "declined"},
		{"refunded", "approved", "purchase", "refunded"},
	}
	for _, tc := range cases {
		if got := NormalizeStatus(tc.prev, tc.next, tc.eventType); got != tc.want {
			t.Fatalf("normalize(%s,%s,%s) want %s got %s", tc.prev, tc.next, tc.eventType, tc.want, got)
		}
	}
}

func TestIsValidTransition(t *testing.T) {
	if !IsValidTransition("approved", "refunded", "purchase") {
		t.Fatalf("approved -> refunded should be valid for purchase")
	}
	if IsValidTransition("approved", "refunded", "reg") {
		t.Fatalf("reg cannot be refunded")
	}
	if IsValidTransition("approved", "pending", "purchase") {
		t.Fatalf("status must not regress")
	}
}

func TestMapExternalStatus(t *testing.T) {
	cases := []struct {
		external, source, want string
	}{
		{"lead", constants.EventSourceTracker, "approved"},
		{"LEAD", constants.EventSourceTracker, "approved"},
		{"unknown-value", constants.EventSourceTracker, "pending"},
		{"trash", constants.EventSourceTracker, "declined"},
		{"hold", constants.EventSourceTracker, "pending"},
		{"succeeded", constants.EventSourcePayment, "approved"},
		{"partially_refunded", constants.EventSourcePayment, "refunded"},
		{"disputed", constants.EventSourcePayment, "chargeback"},
		{"voided", constants.EventSourcePayment, "declined"},
		{"approved", constants.EventSourceFirstParty, "approved"},
		{"sale", constants.EventSourceFirstParty, "pending"},
		{"approved", "mystery", "pending"},
	}
	for _, tc := range cases {
		if got := MapExternalStatus(tc.external, tc.source); got != tc.want {
			t.Fatalf("map(%s,%s) want %s got %s", tc.external, tc.source, tc.want, got)
		}
	}
}
