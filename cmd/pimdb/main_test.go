package main

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{input: "", want: slog.LevelInfo},
		{input: "info", want: slog.LevelInfo},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "warn", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseLevel(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseLevel(%q): expected error, got %v", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseLevel(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestDatasetList(t *testing.T) {
	defer func() { datasets = "" }()

	datasets = ""
	names, err := datasetList()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if names != nil {
		t.Errorf("empty flag should mean nil, got %v", names)
	}

	datasets = "title.ratings, name.basics"
	names, err = datasetList()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 || names[0] != "title.ratings" || names[1] != "name.basics" {
		t.Errorf("unexpected names: %v", names)
	}

	datasets = "title.ratings,title.bogus"
	if _, err := datasetList(); err == nil {
		t.Error("expected error for unknown dataset")
	}
}
