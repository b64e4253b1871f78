// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

package validation

import (
	"strings"
	"testing"
)

func TestGetValidatorSingleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 == nil {
		t.Fatal("GetValidator() returned nil")
	}
	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
}

type queryParams struct {
	Limit  int    `validate:"min=1,max=2000"`
	Bucket string `validate:"oneof=day hour"`
}

func TestValidateStructValid(t *testing.T) {
	tests := []queryParams{
		{Limit: 1, Bucket: "day"},
		{Limit: 200, Bucket: "hour"},
		{Limit: 2000, Bucket: "day"},
	}

	for _, tt := range tests {
		if err := ValidateStruct(&tt); err != nil {
			t.Errorf("ValidateStruct(%+v) returned unexpected error: %v", tt, err)
		}
	}
}

func TestValidateStructInvalid(t *testing.T) {
	tests := []struct {
		name      string
		input     queryParams
		wantField string
		wantTag   string
	}{
		{"limit zero", queryParams{Limit: 0, Bucket: "day"}, "Limit", "min"},
		{"limit negative", queryParams{Limit: -5, Bucket: "day"}, "Limit", "min"},
		{"limit too high", queryParams{Limit: 2001, Bucket: "day"}, "Limit", "max"},
		{"bucket unknown", queryParams{Limit: 10, Bucket: "week"}, "Bucket", "oneof"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if err == nil {
				t.Fatalf("ValidateStruct(%+v) should have failed", tt.input)
			}
			errs := err.Errors()
			if len(errs) != 1 {
				t.Fatalf("Expected 1 validation error, got %d: %v", len(errs), err)
			}
			if errs[0].Field() != tt.wantField {
				t.Errorf("Field = %s, want %s", errs[0].Field(), tt.wantField)
			}
			if errs[0].Tag() != tt.wantTag {
				t.Errorf("Tag = %s, want %s", errs[0].Tag(), tt.wantTag)
			}
		})
	}
}

func TestValidateStructMessages(t *testing.T) {
	tests := []struct {
		name  string
		input queryParams
		want  string
	}{
		{"oneof lists options", queryParams{Limit: 10, Bucket: "week"}, "Bucket must be one of: day hour"},
		{"min message", queryParams{Limit: 0, Bucket: "day"}, "Limit must be at least 1"},
		{"max message", queryParams{Limit: 9999, Bucket: "day"}, "Limit must be at most 2000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if err == nil {
				t.Fatalf("ValidateStruct(%+v) should have failed", tt.input)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Error() = %q, want it to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidateStructMultipleErrors(t *testing.T) {
	err := ValidateStruct(&queryParams{Limit: 0, Bucket: "week"})
	if err == nil {
		t.Fatal("ValidateStruct should have failed")
	}
	if len(err.Errors()) != 2 {
		t.Fatalf("Expected 2 validation errors, got %d: %v", len(err.Errors()), err)
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("Combined message should join errors with a semicolon: %q", err.Error())
	}
}
