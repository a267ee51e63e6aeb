package models

import "testing"

func TestCompareThreatLevel(t *testing.T) {
	tests := []struct {
		name string
		a, b ThreatLevel
		sign int
	}{
		{"critical over high", LevelCritical, LevelHigh, 1},
		{"high over medium", LevelHigh, LevelMedium, 1},
		{"medium over low", LevelMedium, LevelLow, 1},
		{"low over minimal", LevelLow, LevelMinimal, 1},
		{"equal levels", LevelMedium, LevelMedium, 0},
		{"minimal under critical", LevelMinimal, LevelCritical, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompareThreatLevel(tt.a, tt.b)
			switch {
			case tt.sign > 0 && got <= 0:
				t.Errorf("CompareThreatLevel(%s, %s) = %d, want positive", tt.a, tt.b, got)
			case tt.sign < 0 && got >= 0:
				t.Errorf("CompareThreatLevel(%s, %s) = %d, want negative", tt.a, tt.b, got)
			case tt.sign == 0 && got != 0:
				t.Errorf("CompareThreatLevel(%s, %s) = %d, want 0", tt.a, tt.b, got)
			}
		})
	}
}

func TestFileCategoryValid(t *testing.T) {
	for _, c := range []FileCategory{CategoryImage, CategoryPDF, CategoryDocument} {
		if !c.Valid() {
			t.Errorf("expected %s to be valid", c)
		}
	}
	if FileCategory("archive").Valid() {
		t.Error("expected unknown category to be invalid")
	}
}
