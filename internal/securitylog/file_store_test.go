package securitylog

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

func testEvent(id string, project string, user string, level risk.Level, at time.Time) Event {
	return Event{
		EventID:     id,
		Timestamp:   at,
		EventType:   EventTypeRiskCheck,
		ProjectID:   project,
		UserID:      user,
		RiskLevel:   level,
		Threats:     []risk.Category{risk.CategoryInstructionOverride},
		CheckMethod: risk.MethodPatternOnly,
		Source:      SourceUserMessage,
	}
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer file.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("invalid json line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, line)
	}
	return lines
}

func TestFileStoreAppendWritesBothStreams(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := time.Date(2026, 1, 2, 3, 4, 5, 123000000, time.UTC)
	if err := store.Append(context.Background(), testEvent("e1", "p1", "u1", risk.LevelCritical, now)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	global := readLines(t, filepath.Join(dir, "security_events.log"))
	project := readLines(t, filepath.Join(dir, "projects", "p1", "security_events.log"))
	if len(global) != 1 || len(project) != 1 {
		t.Fatalf("expected one line per stream, got %d/%d", len(global), len(project))
	}
	if global[0]["context"] != "global" || project[0]["context"] != "project" {
		t.Fatalf("unexpected context: %v / %v", global[0]["context"], project[0]["context"])
	}
	if global[0]["risk_level"] != "critical" || global[0]["timestamp"] != "2026-01-02T03:04:05.123Z" {
		t.Fatalf("unexpected line: %v", global[0])
	}
	threats, ok := global[0]["threats"].([]any)
	if !ok || len(threats) != 1 || threats[0] != "instruction_override" {
		t.Fatalf("unexpected threats: %v", global[0]["threats"])
	}
}

func TestFileStoreRejectsInvalidProjectID(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir, nil)

	for _, projectID := range []string{"..", ".", "../escape", "a/b", strings.Repeat("x", 129)} {
		err := store.Append(context.Background(), testEvent("e", projectID, "u", risk.LevelHigh, time.Now()))
		if !errors.Is(err, risk.ErrLogWrite) {
			t.Fatalf("expected ErrLogWrite for %q, got %v", projectID, err)
		}
	}

	if lines := readLines(t, filepath.Join(dir, "security_events.log")); len(lines) != 5 {
		t.Fatalf("expected global-only writes, got %d", len(lines))
	}
	if _, err := os.Stat(filepath.Join(dir, "escape")); !os.IsNotExist(err) {
		t.Fatalf("expected no traversal outside projects dir")
	}
}

func TestFileStoreConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Append(context.Background(), testEvent("e", "p1", "u", risk.LevelLow, time.Now()))
		}()
	}
	wg.Wait()

	if lines := readLines(t, filepath.Join(dir, "projects", "p1", "security_events.log")); len(lines) != 50 {
		t.Fatalf("expected 50 intact lines, got %d", len(lines))
	}
}

func TestFileStoreRecentNewestFirst(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir, nil)
	base := time.Now().UTC()

	levels := []risk.Level{risk.LevelLow, risk.LevelHigh, risk.LevelMedium, risk.LevelCritical, risk.LevelHigh}
	for i, level := range levels {
		event := testEvent(string(rune('a'+i)), "p1", "u", level, base.Add(time.Duration(i)*time.Second))
		if err := store.Append(context.Background(), event); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	events, err := store.Recent(context.Background(), Query{ProjectID: "p1", Limit: 2, MinRisk: risk.LevelHigh})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 || events[0].EventID != "e" || events[1].EventID != "d" {
		t.Fatalf("unexpected events: %+v", events)
	}

	all, err := store.Recent(context.Background(), Query{Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 5 || all[0].EventID != "e" || all[4].EventID != "a" || all[0].Context != ScopeGlobal {
		t.Fatalf("unexpected global events: %+v", all)
	}
}

func TestFileStoreSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir, nil)
	if err := store.Append(context.Background(), testEvent("a", "p1", "u", risk.LevelHigh, time.Now())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	file, err := os.OpenFile(filepath.Join(dir, "security_events.log"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = file.WriteString("{not json\n")
	_ = file.Close()

	skipped, err := store.scan(filepath.Join(dir, "security_events.log"), func(Event) {})
	if err != nil || skipped != 1 {
		t.Fatalf("expected one skipped line, got %d (%v)", skipped, err)
	}
	events, err := store.Recent(context.Background(), Query{})
	if err != nil || len(events) != 1 {
		t.Fatalf("expected one valid event, got %d (%v)", len(events), err)
	}
}

func TestFileStoreRecentMissingFile(t *testing.T) {
	store, _ := NewFileStore(t.TempDir(), nil)
	events, err := store.Recent(context.Background(), Query{ProjectID: "nobody"})
	if err != nil || len(events) != 0 {
		t.Fatalf("expected empty result, got %v (%v)", events, err)
	}
	if _, err := store.Recent(context.Background(), Query{ProjectID: ".."}); err == nil {
		t.Fatalf("expected error for invalid project id")
	}
}

func TestNewFileStoreEmptyDir(t *testing.T) {
	if _, err := NewFileStore("", nil); !errors.Is(err, risk.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
