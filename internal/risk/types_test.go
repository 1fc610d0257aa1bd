package risk

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
)

func TestLevelOrder(t *testing.T) {
	ordered := []Level{LevelSafe, LevelLow, LevelMedium, LevelHigh, LevelCritical}
	for i := 1; i < len(ordered); i++ {
		if !ordered[i].AtLeast(ordered[i-1]) || ordered[i-1].AtLeast(ordered[i]) {
			t.Fatalf("unexpected order between %s and %s", ordered[i-1], ordered[i])
		}
		if MaxLevel(ordered[i-1], ordered[i]) != ordered[i] {
			t.Fatalf("unexpected max for %s", ordered[i])
		}
	}
}

func TestLevelIsSafe(t *testing.T) {
	cases := map[Level]bool{
		LevelSafe:     true,
		LevelLow:      true,
		LevelMedium:   false,
		LevelHigh:     false,
		LevelCritical: false,
	}
	for level, want := range cases {
		if level.IsSafe() != want {
			t.Fatalf("unexpected IsSafe for %s", level)
		}
		if (CheckResult{Level: level}).IsSafe() != want {
			t.Fatalf("unexpected CheckResult.IsSafe for %s", level)
		}
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel(" HIGH ")
	if err != nil || level != LevelHigh {
		t.Fatalf("unexpected parse: %v %v", level, err)
	}
	if _, err := ParseLevel("severe"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLevelJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Level Level `json:"level"`
	}{Level: LevelCritical})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"level":"critical"}` {
		t.Fatalf("unexpected json: %s", data)
	}

	var decoded struct {
		Level Level `json:"level"`
	}
	if err := json.Unmarshal([]byte(`{"level":"medium"}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Level != LevelMedium {
		t.Fatalf("unexpected level: %s", decoded.Level)
	}
}

func TestParseThreshold(t *testing.T) {
	for _, value := range []string{"low", "Medium", "HIGH"} {
		if _, err := ParseThreshold(value); err != nil {
			t.Fatalf("unexpected error for %s: %v", value, err)
		}
	}
	for _, value := range []string{"safe", "critical", "bogus"} {
		_, err := ParseThreshold(value)
		if !errors.Is(err, ErrConfiguration) {
			t.Fatalf("expected configuration error for %s, got %v", value, err)
		}
	}
}

func TestVerdictLevel(t *testing.T) {
	if VerdictSafe.Level() != LevelSafe || VerdictSuspicious.Level() != LevelMedium || VerdictUnsafe.Level() != LevelHigh {
		t.Fatalf("unexpected verdict mapping")
	}
	if v, ok := ParseVerdict(" unsafe "); !ok || v != VerdictUnsafe {
		t.Fatalf("unexpected verdict parse")
	}
	if _, ok := ParseVerdict("maybe"); ok {
		t.Fatalf("expected unknown verdict")
	}
}

func TestActionFor(t *testing.T) {
	if ActionFor(LevelLow) != ActionAllow || ActionFor(LevelMedium) != ActionSanitize || ActionFor(LevelCritical) != ActionBlock {
		t.Fatalf("unexpected action mapping")
	}
}

func TestCheckResultCategories(t *testing.T) {
	result := CheckResult{Threats: []ThreatSignature{
		{Category: CategoryInstructionOverride},
		{Category: CategorySystemPromptExtraction},
		{Category: CategoryInstructionOverride},
	}}
	categories := result.Categories()
	if len(categories) != 2 || categories[0] != CategoryInstructionOverride || categories[1] != CategorySystemPromptExtraction {
		t.Fatalf("unexpected categories: %+v", categories)
	}
}
